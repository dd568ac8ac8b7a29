package message

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"crossgate/storage"
)

func newTestBox(t *testing.T) (*Box, *storage.KV) {
	t.Helper()
	kv := storage.NewKV(storage.NewMemDB())
	box, err := NewBox(kv)
	require.NoError(t, err)
	return box, kv
}

func TestDeclareAndFastProgress(t *testing.T) {
	box, _ := newTestBox(t)
	secret := [32]byte{0xaa}
	msg := testMessage()

	hash, err := box.Declare(msg)
	require.NoError(t, err)
	require.Equal(t, StatusDeclared, box.OutboxStatus(hash))

	require.NoError(t, box.ProgressOutbox(hash, secret))
	require.Equal(t, StatusProgressed, box.OutboxStatus(hash))
}

func TestDeclareRejectsDuplicate(t *testing.T) {
	box, _ := newTestBox(t)
	msg := testMessage()
	_, err := box.Declare(msg)
	require.NoError(t, err)
	_, err = box.Declare(msg)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProgressOutboxWrongSecretLeavesStateUntouched(t *testing.T) {
	box, _ := newTestBox(t)
	msg := testMessage()
	hash, err := box.Declare(msg)
	require.NoError(t, err)

	err = box.ProgressOutbox(hash, [32]byte{0xde, 0xad})
	require.ErrorIs(t, err, ErrWrongSecret)
	require.Equal(t, StatusDeclared, box.OutboxStatus(hash))

	// A later attempt with the right secret still succeeds.
	require.NoError(t, box.ProgressOutbox(hash, [32]byte{0xaa}))
}

func TestProgressUnknownMessage(t *testing.T) {
	box, _ := newTestBox(t)
	err := box.ProgressOutbox([32]byte{0x01}, [32]byte{0xaa})
	require.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDeclareRevocationRequiresDeclared(t *testing.T) {
	box, _ := newTestBox(t)
	msg := testMessage()
	hash, err := box.Declare(msg)
	require.NoError(t, err)

	require.NoError(t, box.DeclareRevocation(hash))
	require.Equal(t, StatusDeclaredRevocation, box.OutboxStatus(hash))

	// Progressed messages cannot be revoked anymore.
	box2, _ := newTestBox(t)
	hash2, err := box2.Declare(testMessage())
	require.NoError(t, err)
	require.NoError(t, box2.ProgressOutbox(hash2, [32]byte{0xaa}))
	require.ErrorIs(t, box2.DeclareRevocation(hash2), ErrInvalidTransition)
}

func TestRevocationBlocksFastProgress(t *testing.T) {
	box, _ := newTestBox(t)
	hash, err := box.Declare(testMessage())
	require.NoError(t, err)
	require.NoError(t, box.DeclareRevocation(hash))

	err = box.ProgressOutbox(hash, [32]byte{0xaa})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordGasConsumedSetOnce(t *testing.T) {
	box, _ := newTestBox(t)
	hash, err := box.Declare(testMessage())
	require.NoError(t, err)

	require.NoError(t, box.RecordGasConsumed(hash, big.NewInt(120_000)))
	msg, ok := box.Message(hash)
	require.True(t, ok)
	require.Equal(t, int64(120_000), msg.GasConsumed.Int64())

	require.Error(t, box.RecordGasConsumed(hash, big.NewInt(1)))
}

func TestBoxReloadsFromStorage(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	box, err := NewBox(kv)
	require.NoError(t, err)

	hash, err := box.Declare(testMessage())
	require.NoError(t, err)
	require.NoError(t, box.DeclareRevocation(hash))

	reloaded, err := NewBox(kv)
	require.NoError(t, err)
	require.Equal(t, StatusDeclaredRevocation, reloaded.OutboxStatus(hash))
	msg, ok := reloaded.Message(hash)
	require.True(t, ok)
	require.Equal(t, testMessage().Hash(), msg.Hash())
}

func TestStateSnapshotsBothBoxes(t *testing.T) {
	box, _ := newTestBox(t)
	hash, err := box.Declare(testMessage())
	require.NoError(t, err)

	state := box.State()
	require.Equal(t, StatusDeclared, state.Outbox[hash])
	require.Empty(t, state.Inbox)

	// The snapshot is detached from the live box.
	state.Outbox[hash] = StatusRevoked
	require.Equal(t, StatusDeclared, box.OutboxStatus(hash))
}
