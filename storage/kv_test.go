package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Amount *big.Int
	Owner  [20]byte
}

func TestKVRoundTrip(t *testing.T) {
	kv := NewKV(NewMemDB())

	in := &payload{Amount: big.NewInt(42), Owner: [20]byte{0x01}}
	require.NoError(t, kv.KVPut([]byte("k"), in))

	out := new(payload)
	ok, err := kv.KVGet([]byte("k"), out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), out.Amount.Int64())
	require.Equal(t, in.Owner, out.Owner)
}

func TestKVGetMissing(t *testing.T) {
	kv := NewKV(NewMemDB())
	out := new(payload)
	ok, err := kv.KVGet([]byte("missing"), out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVDelete(t *testing.T) {
	kv := NewKV(NewMemDB())
	require.NoError(t, kv.KVPut([]byte("k"), uint64(7)))
	require.NoError(t, kv.KVDelete([]byte("k")))

	var out uint64
	ok, err := kv.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVAppendMaintainsList(t *testing.T) {
	kv := NewKV(NewMemDB())
	require.NoError(t, kv.KVAppend([]byte("list"), []byte{0x01}))
	require.NoError(t, kv.KVAppend([]byte("list"), []byte{0x02}))

	var items [][]byte
	require.NoError(t, kv.KVGetList([]byte("list"), &items))
	require.Equal(t, [][]byte{{0x01}, {0x02}}, items)
}

func TestKVGetListEmpty(t *testing.T) {
	kv := NewKV(NewMemDB())
	var items [][]byte
	require.NoError(t, kv.KVGetList([]byte("nothing"), &items))
	require.Empty(t, items)
}

func TestMemDBDefensiveCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte{0x01, 0x02}
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 0xff

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, got)
}

func TestMemDBNotFound(t *testing.T) {
	db := NewMemDB()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKVOverLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	kv := NewKV(db)
	require.NoError(t, kv.KVPut([]byte("k"), &payload{Amount: big.NewInt(9), Owner: [20]byte{0x03}}))

	out := new(payload)
	ok, err := kv.KVGet([]byte("k"), out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(9), out.Amount.Int64())
}
