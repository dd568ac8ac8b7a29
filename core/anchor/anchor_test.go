package anchor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnchorStateRoot(t *testing.T) {
	reg := NewRootRegistry()
	root := [32]byte{0x01}

	require.NoError(t, reg.AnchorStateRoot(10, root))

	got, ok := reg.StateRoot(10)
	require.True(t, ok)
	require.Equal(t, root, got)

	_, ok = reg.StateRoot(11)
	require.False(t, ok)
}

func TestAnchorRejectsZeroRoot(t *testing.T) {
	reg := NewRootRegistry()
	require.ErrorIs(t, reg.AnchorStateRoot(1, [32]byte{}), ErrZeroRoot)
}

func TestAnchorWriteOncePerHeight(t *testing.T) {
	reg := NewRootRegistry()
	require.NoError(t, reg.AnchorStateRoot(5, [32]byte{0x01}))

	// Idempotent for the identical root.
	require.NoError(t, reg.AnchorStateRoot(5, [32]byte{0x01}))

	// Conflicting root fails.
	require.ErrorIs(t, reg.AnchorStateRoot(5, [32]byte{0x02}), ErrRootConflict)
}

func TestLatestHeight(t *testing.T) {
	reg := NewRootRegistry()
	require.Equal(t, uint64(0), reg.LatestHeight())

	require.NoError(t, reg.AnchorStateRoot(7, [32]byte{0x01}))
	require.NoError(t, reg.AnchorStateRoot(3, [32]byte{0x02}))
	require.Equal(t, uint64(7), reg.LatestHeight())
}
