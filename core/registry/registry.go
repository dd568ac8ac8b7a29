package registry

import (
	"errors"
	"fmt"
	"math/big"

	"crossgate/core/message"
)

var (
	ErrNonceMismatch = errors.New("registry: supplied nonce does not match next nonce")
	ErrProcessActive = errors.New("registry: account already has an active process")
	ErrNoRecord      = errors.New("registry: no record for message hash")
)

// Storage abstracts the persistence required by a process registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Process points at an account's in-flight message. The nonce is duplicated
// here so the next nonce can be computed without loading the message.
type Process struct {
	MessageHash [32]byte
	Nonce       uint64
}

// TransferRecord is the domain payload associated with a message hash: the
// staked/redeemed amount, who receives it, and the facilitator (or original
// sender) entitled to bounty refunds.
type TransferRecord struct {
	Amount      *big.Int
	Beneficiary [20]byte
	Facilitator [20]byte
}

// Clone returns a deep copy of the record.
func (r *TransferRecord) Clone() *TransferRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Registry enforces the one-active-transfer-per-account invariant for one
// message box side (outbox or inbox) and owns the transfer payload records.
// Each endpoint holds two registries, one per side, sharing a store under
// distinct prefixes.
type Registry struct {
	store         Storage
	processPrefix []byte
	recordPrefix  []byte
}

// New creates a registry persisting under the given side label ("out"/"in").
func New(store Storage, side string) *Registry {
	return &Registry{
		store:         store,
		processPrefix: []byte("reg/" + side + "/proc/"),
		recordPrefix:  []byte("reg/" + side + "/rec/"),
	}
}

func (r *Registry) processKey(account [20]byte) []byte {
	buf := make([]byte, len(r.processPrefix)+20)
	copy(buf, r.processPrefix)
	copy(buf[len(r.processPrefix):], account[:])
	return buf
}

func (r *Registry) recordKey(hash [32]byte) []byte {
	buf := make([]byte, len(r.recordPrefix)+32)
	copy(buf, r.recordPrefix)
	copy(buf[len(r.recordPrefix):], hash[:])
	return buf
}

// Active returns the account's in-flight process, if any.
func (r *Registry) Active(account [20]byte) (*Process, bool, error) {
	proc := new(Process)
	ok, err := r.store.KVGet(r.processKey(account), proc)
	if err != nil || !ok {
		return nil, false, err
	}
	return proc, true, nil
}

// NextNonce returns 0 for accounts with no process history, otherwise the
// previous message nonce plus one.
func (r *Registry) NextNonce(account [20]byte) (uint64, error) {
	proc, ok, err := r.Active(account)
	if err != nil || !ok {
		return 0, err
	}
	return proc.Nonce + 1, nil
}

// Record returns the transfer payload stored for a message hash.
func (r *Registry) Record(hash [32]byte) (*TransferRecord, error) {
	rec := new(TransferRecord)
	ok, err := r.store.KVGet(r.recordKey(hash), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoRecord
	}
	return rec, nil
}

// Initiate registers a new process for account under strict nonce sequencing.
// The previous message, when present, must be terminal in the relevant box
// before it can be superseded. The new record is written and the active
// pointer swapped before the superseded record is deleted, so no intermediate
// state ever shows the account without a record.
func (r *Registry) Initiate(account [20]byte, nonce uint64, newHash [32]byte, rec *TransferRecord, status func([32]byte) message.Status) error {
	next, err := r.NextNonce(account)
	if err != nil {
		return err
	}
	if nonce != next {
		return fmt.Errorf("%w: supplied %d, want %d", ErrNonceMismatch, nonce, next)
	}
	prev, hasPrev, err := r.Active(account)
	if err != nil {
		return err
	}
	if hasPrev && !status(prev.MessageHash).Terminal() {
		return fmt.Errorf("%w: message %x is %s", ErrProcessActive, prev.MessageHash[:8], status(prev.MessageHash))
	}
	// Messages without a value payload (the link handshake) still occupy the
	// account's process slot; store an empty record for them.
	if rec == nil {
		rec = &TransferRecord{Amount: big.NewInt(0)}
	}
	if err := r.store.KVPut(r.recordKey(newHash), rec.Clone()); err != nil {
		return err
	}
	if err := r.store.KVPut(r.processKey(account), &Process{MessageHash: newHash, Nonce: nonce}); err != nil {
		return err
	}
	if hasPrev {
		if err := r.store.KVDelete(r.recordKey(prev.MessageHash)); err != nil {
			return err
		}
	}
	return nil
}

// Precheck verifies nonce sequencing and prior-process terminality without
// mutating anything, so callers can fail before moving funds.
func (r *Registry) Precheck(account [20]byte, nonce uint64, status func([32]byte) message.Status) error {
	next, err := r.NextNonce(account)
	if err != nil {
		return err
	}
	if nonce != next {
		return fmt.Errorf("%w: supplied %d, want %d", ErrNonceMismatch, nonce, next)
	}
	prev, hasPrev, err := r.Active(account)
	if err != nil {
		return err
	}
	if hasPrev && !status(prev.MessageHash).Terminal() {
		return fmt.Errorf("%w: message %x is %s", ErrProcessActive, prev.MessageHash[:8], status(prev.MessageHash))
	}
	return nil
}
