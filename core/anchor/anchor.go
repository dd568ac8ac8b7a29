package anchor

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrZeroRoot     = errors.New("anchor: zero state root")
	ErrRootConflict = errors.New("anchor: height already anchored with a different root")
)

// Anchor supplies, per block height, the finalized state root of the
// counterpart chain. The gateway consumes this interface only; how roots are
// finalized (block reporting, validator voting) is the consensus layer's
// business.
type Anchor interface {
	StateRoot(height uint64) ([32]byte, bool)
}

// RootRegistry is the reference Anchor implementation: an append-only,
// write-once-per-height root store. Safe for concurrent use.
type RootRegistry struct {
	mu     sync.RWMutex
	roots  map[uint64][32]byte
	latest uint64
}

// NewRootRegistry creates an empty root registry.
func NewRootRegistry() *RootRegistry {
	return &RootRegistry{roots: make(map[uint64][32]byte)}
}

// AnchorStateRoot records the finalized state root for a height. Re-anchoring
// the identical root is a no-op; a different root for an already anchored
// height fails, surfacing consensus inconsistency instead of masking it.
func (r *RootRegistry) AnchorStateRoot(height uint64, root [32]byte) error {
	if root == ([32]byte{}) {
		return ErrZeroRoot
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.roots[height]; ok {
		if existing != root {
			return fmt.Errorf("%w: height %d", ErrRootConflict, height)
		}
		return nil
	}
	r.roots[height] = root
	if height > r.latest {
		r.latest = height
	}
	return nil
}

// StateRoot implements the Anchor interface.
func (r *RootRegistry) StateRoot(height uint64) ([32]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.roots[height]
	return root, ok
}

// LatestHeight returns the highest anchored height, or 0 when empty.
func (r *RootRegistry) LatestHeight() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}
