package gateway

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"crossgate/core/anchor"
	"crossgate/core/events"
	"crossgate/core/message"
	"crossgate/core/proof"
	"crossgate/core/registry"
	"crossgate/core/token"
	"crossgate/observability"
)

// Storage abstracts the persistence an endpoint needs for its message box,
// registries, proven roots and link state. The storage package's KV satisfies
// it.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Config carries the wiring shared by both endpoint roles.
type Config struct {
	// Address is this endpoint's account on its own chain; Remote is the
	// counterpart endpoint's account on the other chain.
	Address [20]byte
	Remote  [20]byte
	// Anchor supplies finalized state roots of the counterpart chain.
	Anchor anchor.Anchor
	// Store persists all protocol state.
	Store Storage
	// Bounty is escrowed with every transfer to compensate whoever drives
	// it to completion. May be zero.
	Bounty *big.Int
	// Emitter receives protocol events; nil discards them.
	Emitter events.Emitter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// GasMeter defaults to DefaultGasMeter().
	GasMeter GasMeter
}

var (
	provenRootPrefix   = []byte("gw/root/")
	provenRootIndexKey = []byte("gw/root/index")
	linkStateKey       = []byte("gw/link")
)

type linkState struct {
	Linked   bool
	LinkHash [32]byte
}

func rootKey(height uint64) []byte {
	buf := make([]byte, len(provenRootPrefix)+8)
	copy(buf, provenRootPrefix)
	binary.BigEndian.PutUint64(buf[len(provenRootPrefix):], height)
	return buf
}

// base is the message-bus plus proof-verification component shared by both
// endpoint roles. Gateway and CoGateway embed it and add their asset effects.
type base struct {
	mu      sync.Mutex
	role    string
	address [20]byte
	remote  [20]byte
	anchor  anchor.Anchor
	store   Storage
	bounty  *big.Int

	box       *message.Box
	outboxReg *registry.Registry
	inboxReg  *registry.Registry

	// roots caches the counterpart endpoint's storage root per proven
	// height; write-once-consistent.
	roots map[uint64][32]byte

	linked   bool
	linkHash [32]byte

	gas     GasMeter
	emitter events.Emitter
	log     *slog.Logger
}

func newBase(cfg Config, role string) (*base, error) {
	if cfg.Address == ([20]byte{}) || cfg.Remote == ([20]byte{}) {
		return nil, fmt.Errorf("gateway: endpoint addresses required")
	}
	if cfg.Address == cfg.Remote {
		return nil, fmt.Errorf("gateway: local and remote endpoint addresses must differ")
	}
	if cfg.Anchor == nil {
		return nil, fmt.Errorf("gateway: anchor required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("gateway: storage required")
	}
	bounty := big.NewInt(0)
	if cfg.Bounty != nil {
		if cfg.Bounty.Sign() < 0 {
			return nil, fmt.Errorf("gateway: negative bounty")
		}
		bounty = new(big.Int).Set(cfg.Bounty)
	}
	box, err := message.NewBox(cfg.Store)
	if err != nil {
		return nil, err
	}
	b := &base{
		role:      role,
		address:   cfg.Address,
		remote:    cfg.Remote,
		anchor:    cfg.Anchor,
		store:     cfg.Store,
		bounty:    bounty,
		box:       box,
		outboxReg: registry.New(cfg.Store, "out"),
		inboxReg:  registry.New(cfg.Store, "in"),
		roots:     make(map[uint64][32]byte),
		gas:       cfg.GasMeter,
		emitter:   cfg.Emitter,
		log:       cfg.Logger,
	}
	if b.gas == nil {
		b.gas = DefaultGasMeter()
	}
	if b.emitter == nil {
		b.emitter = events.NoopEmitter{}
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With("component", "gateway", "role", role)
	if err := b.loadRoots(); err != nil {
		return nil, err
	}
	var link linkState
	if ok, err := cfg.Store.KVGet(linkStateKey, &link); err != nil {
		return nil, err
	} else if ok {
		b.linked = link.Linked
		b.linkHash = link.LinkHash
	}
	return b, nil
}

func (b *base) loadRoots() error {
	var index [][]byte
	if err := b.store.KVGetList(provenRootIndexKey, &index); err != nil {
		return err
	}
	for _, raw := range index {
		if len(raw) != 8 {
			return fmt.Errorf("gateway: corrupt proven root index")
		}
		height := binary.BigEndian.Uint64(raw)
		var root [32]byte
		if ok, err := b.store.KVGet(rootKey(height), &root); err != nil {
			return err
		} else if ok {
			b.roots[height] = root
		}
	}
	return nil
}

// Address returns this endpoint's account.
func (b *base) Address() [20]byte { return b.address }

// Remote returns the counterpart endpoint's account.
func (b *base) Remote() [20]byte { return b.remote }

// Bounty returns the configured bounty.
func (b *base) Bounty() *big.Int { return new(big.Int).Set(b.bounty) }

// Linked reports the bootstrap handshake state and the link message hash.
func (b *base) Linked() (bool, [32]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linked, b.linkHash
}

// Message returns the stored message for hash, if any.
func (b *base) Message(hash [32]byte) (*message.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.box.Message(hash)
}

// OutboxStatus returns the outbox status for hash.
func (b *base) OutboxStatus(hash [32]byte) message.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.box.OutboxStatus(hash)
}

// InboxStatus returns the inbox status for hash.
func (b *base) InboxStatus(hash [32]byte) message.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.box.InboxStatus(hash)
}

// NextNonce returns the nonce the account must supply to originate its next
// message on this endpoint.
func (b *base) NextNonce(account [20]byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outboxReg.NextNonce(account)
}

// OutboxRecord returns the transfer payload for a self-originated message.
func (b *base) OutboxRecord(hash [32]byte) (*registry.TransferRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outboxReg.Record(hash)
}

// InboxRecord returns the transfer payload for a confirmed message.
func (b *base) InboxRecord(hash [32]byte) (*registry.TransferRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inboxReg.Record(hash)
}

// BoxState snapshots the message box for provers.
func (b *base) BoxState() *message.BoxState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.box.State()
}

// ProveGateway resolves the counterpart endpoint's storage root at height
// from the anchored state root. A later re-proof for the same height must
// resolve the identical root; a different one surfaces anchor inconsistency.
func (b *base) ProveGateway(height uint64, encodedAccount, accountProof []byte) (storageRoot [32]byte, err error) {
	defer func() { b.observe("prove_gateway", err) }()
	b.mu.Lock()
	defer b.mu.Unlock()
	stateRoot, ok := b.anchor.StateRoot(height)
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: %d", ErrNoStateRoot, height)
	}
	storageRoot, err = proof.VerifyAccount(encodedAccount, accountProof, b.remote, stateRoot)
	b.observeProof("account", err)
	if err != nil {
		return [32]byte{}, err
	}
	if existing, proven := b.roots[height]; proven {
		if existing != storageRoot {
			return [32]byte{}, fmt.Errorf("%w: height %d", ErrInconsistentRoot, height)
		}
		return storageRoot, nil
	}
	if err = b.store.KVPut(rootKey(height), storageRoot); err != nil {
		return [32]byte{}, err
	}
	heightBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBuf, height)
	if err = b.store.KVAppend(provenRootIndexKey, heightBuf); err != nil {
		return [32]byte{}, err
	}
	b.roots[height] = storageRoot
	b.emit(newProvenEvent(b.remote, height, storageRoot))
	b.log.Info("remote endpoint proven", "blockHeight", height, "storageRoot", hexBytes(storageRoot[:]))
	return storageRoot, nil
}

// provenRoot returns the storage root previously proven for height. Callers
// hold the mutex.
func (b *base) provenRoot(height uint64) ([32]byte, error) {
	root, ok := b.roots[height]
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: %d", ErrNotProven, height)
	}
	return root, nil
}

func (b *base) requireLinked() error {
	if !b.linked {
		return ErrNotLinked
	}
	return nil
}

func (b *base) requireLinkPending(hash [32]byte) error {
	if b.linked {
		return ErrAlreadyLinked
	}
	if b.linkHash == ([32]byte{}) || b.linkHash != hash {
		return fmt.Errorf("%w: unknown link message", ErrNotLinked)
	}
	return nil
}

func (b *base) requireUnlinked() error {
	if b.linked {
		return ErrAlreadyLinked
	}
	if b.linkHash != ([32]byte{}) {
		return ErrLinkInProgress
	}
	return nil
}

func (b *base) setLinkHash(hash [32]byte) error {
	if err := b.store.KVPut(linkStateKey, &linkState{Linked: false, LinkHash: hash}); err != nil {
		return err
	}
	b.linkHash = hash
	return nil
}

func (b *base) setLinked() error {
	if err := b.store.KVPut(linkStateKey, &linkState{Linked: true, LinkHash: b.linkHash}); err != nil {
		return err
	}
	b.linked = true
	b.emit(newLinkedEvent(b.linkHash))
	b.log.Info("endpoints linked", "messageHash", hexBytes(b.linkHash[:]))
	return nil
}

func (b *base) emit(evt *events.Event) {
	b.emitter.Emit(evt)
}

func (b *base) observe(op string, err error) {
	observability.GatewayMetrics().ObserveTransition(b.role, op, err)
}

func (b *base) observeProof(kind string, err error) {
	observability.GatewayMetrics().ObserveProof(kind, err)
}

// Proof-gated box transitions route through these wrappers so every
// verification lands in the proofs counter. Callers hold the mutex.
func (b *base) confirmWithProof(msg *message.Message, root [32]byte, rlpParentNodes []byte) ([32]byte, error) {
	hash, err := b.box.Confirm(msg, root, rlpParentNodes)
	b.observeProof("box_status", err)
	return hash, err
}

func (b *base) progressOutboxWithProof(hash [32]byte, root [32]byte, rlpParentNodes []byte, claimed message.Status) error {
	err := b.box.ProgressOutboxWithProof(hash, root, rlpParentNodes, claimed)
	b.observeProof("box_status", err)
	return err
}

func (b *base) progressInboxWithProof(hash [32]byte, root [32]byte, rlpParentNodes []byte, claimed message.Status) error {
	err := b.box.ProgressInboxWithProof(hash, root, rlpParentNodes, claimed)
	b.observeProof("box_status", err)
	return err
}

func (b *base) confirmRevocation(hash [32]byte, root [32]byte, rlpParentNodes []byte) error {
	err := b.box.ConfirmRevocation(hash, root, rlpParentNodes)
	b.observeProof("box_status", err)
	return err
}

func (b *base) progressOutboxRevocation(hash [32]byte, root [32]byte, rlpParentNodes []byte, claimed message.Status) error {
	err := b.box.ProgressOutboxRevocation(hash, root, rlpParentNodes, claimed)
	b.observeProof("box_status", err)
	return err
}

// pay moves token value, treating zero amounts as a no-op so optional
// bounties do not trip the ledger's positive-amount check.
func pay(t token.Transferrer, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return t.Transfer(from, to, amount)
}

// penaltyAmount is the surcharge for aborting a declared transfer: one and a
// half times the bounty.
func (b *base) penaltyAmount() *big.Int {
	penalty := new(big.Int).Mul(b.bounty, big.NewInt(3))
	return penalty.Div(penalty, big.NewInt(2))
}

func sum(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}
