package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KV layers RLP encoding on top of a Database so protocol components can
// persist typed records without caring about the wire format. It satisfies the
// narrow Storage interfaces declared by the message, registry and gateway
// packages.
type KV struct {
	db Database
}

// NewKV wraps the provided database.
func NewKV(db Database) *KV {
	return &KV{db: db}
}

// KVGet decodes the value stored at key into out. It returns false when the
// key has never been written.
func (kv *KV) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := kv.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it at key.
func (kv *KV) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return kv.db.Put(key, raw)
}

// KVDelete removes the value stored at key. Missing keys are ignored.
func (kv *KV) KVDelete(key []byte) error {
	return kv.db.Delete(key)
}

// KVAppend appends a raw byte value to the RLP list stored at key, creating
// the list when absent.
func (kv *KV) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := kv.KVGet(key, &list); err != nil {
		return err
	}
	list = append(list, value)
	return kv.KVPut(key, list)
}

// KVGetList decodes the RLP list stored at key into out. Absent keys leave out
// untouched.
func (kv *KV) KVGetList(key []byte, out interface{}) error {
	_, err := kv.KVGet(key, out)
	return err
}
