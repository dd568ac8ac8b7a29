package message

import (
	"errors"
	"fmt"
	"math/big"

	"crossgate/core/proof"
)

var (
	ErrInvalidTransition = errors.New("message: status precondition not met")
	ErrUnknownMessage    = errors.New("message: unknown message hash")
	ErrWrongSecret       = errors.New("message: unlock secret does not match hash lock")
	ErrZeroHash          = errors.New("message: zero message hash")
)

// Storage abstracts the persistence required by a message box. The concrete
// implementation lives in the storage package.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	outboxPrefix = []byte("mbox/out/")
	inboxPrefix  = []byte("mbox/in/")
	recordPrefix = []byte("mbox/msg/")
	indexKey     = []byte("mbox/index")
)

func boxKey(prefix []byte, hash [32]byte) []byte {
	buf := make([]byte, len(prefix)+32)
	copy(buf, prefix)
	copy(buf[len(prefix):], hash[:])
	return buf
}

// Box is the proof-gated state machine tracking every cross-chain message an
// endpoint knows about, in two independent maps: the outbox for messages this
// side originated and the inbox for messages confirmed here via proof of the
// counterpart's outbox.
//
// Box is not safe for concurrent use; the owning endpoint serialises calls.
type Box struct {
	store    Storage
	outbox   map[[32]byte]Status
	inbox    map[[32]byte]Status
	messages map[[32]byte]*Message
}

// NewBox loads a message box from storage, restoring any previously persisted
// entries.
func NewBox(store Storage) (*Box, error) {
	b := &Box{
		store:    store,
		outbox:   make(map[[32]byte]Status),
		inbox:    make(map[[32]byte]Status),
		messages: make(map[[32]byte]*Message),
	}
	var index [][]byte
	if err := store.KVGetList(indexKey, &index); err != nil {
		return nil, err
	}
	for _, raw := range index {
		if len(raw) != 32 {
			return nil, fmt.Errorf("message: corrupt box index entry")
		}
		var hash [32]byte
		copy(hash[:], raw)
		var out, in uint8
		if ok, err := store.KVGet(boxKey(outboxPrefix, hash), &out); err != nil {
			return nil, err
		} else if ok {
			b.outbox[hash] = Status(out)
		}
		if ok, err := store.KVGet(boxKey(inboxPrefix, hash), &in); err != nil {
			return nil, err
		} else if ok {
			b.inbox[hash] = Status(in)
		}
		msg := new(Message)
		if ok, err := store.KVGet(boxKey(recordPrefix, hash), msg); err != nil {
			return nil, err
		} else if ok {
			b.messages[hash] = msg
		}
	}
	return b, nil
}

// Message returns the stored message for hash, if any.
func (b *Box) Message(hash [32]byte) (*Message, bool) {
	msg, ok := b.messages[hash]
	if !ok {
		return nil, false
	}
	return msg.Clone(), true
}

// OutboxStatus returns the outbox status for hash; unseen hashes are
// Undeclared.
func (b *Box) OutboxStatus(hash [32]byte) Status {
	return b.outbox[hash]
}

// InboxStatus returns the inbox status for hash; unseen hashes are Undeclared.
func (b *Box) InboxStatus(hash [32]byte) Status {
	return b.inbox[hash]
}

func (b *Box) trackMessage(hash [32]byte, msg *Message) error {
	if _, seen := b.messages[hash]; !seen {
		if err := b.store.KVAppend(indexKey, hash[:]); err != nil {
			return err
		}
	}
	if err := b.store.KVPut(boxKey(recordPrefix, hash), msg); err != nil {
		return err
	}
	b.messages[hash] = msg.Clone()
	return nil
}

func (b *Box) setOutbox(hash [32]byte, status Status) error {
	if err := b.store.KVPut(boxKey(outboxPrefix, hash), uint8(status)); err != nil {
		return err
	}
	b.outbox[hash] = status
	return nil
}

func (b *Box) setInbox(hash [32]byte, status Status) error {
	if err := b.store.KVPut(boxKey(inboxPrefix, hash), uint8(status)); err != nil {
		return err
	}
	b.inbox[hash] = status
	return nil
}

// Declare registers a locally originated message, moving its outbox entry
// from Undeclared to Declared and returning the message hash.
func (b *Box) Declare(msg *Message) ([32]byte, error) {
	if err := msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash := msg.Hash()
	if b.outbox[hash] != StatusUndeclared {
		return [32]byte{}, fmt.Errorf("%w: outbox %s is %s, want undeclared", ErrInvalidTransition, hexHash(hash), b.outbox[hash])
	}
	if err := b.trackMessage(hash, msg); err != nil {
		return [32]byte{}, err
	}
	if err := b.setOutbox(hash, StatusDeclared); err != nil {
		return [32]byte{}, err
	}
	return hash, nil
}

// Confirm registers a counterpart-originated message, proving the remote
// outbox held Declared for the exact message under the already-proven remote
// storage root. Any field mismatch shifts the derived hash and fails the
// proof, so no field can be forged by the relaying facilitator.
func (b *Box) Confirm(msg *Message, storageRoot [32]byte, rlpParentNodes []byte) ([32]byte, error) {
	if err := msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash := msg.Hash()
	if b.inbox[hash] != StatusUndeclared {
		return [32]byte{}, fmt.Errorf("%w: inbox %s is %s, want undeclared", ErrInvalidTransition, hexHash(hash), b.inbox[hash])
	}
	if err := proof.VerifyBoxStatus(storageRoot, hash, proof.OutboxIndex, uint8(StatusDeclared), rlpParentNodes); err != nil {
		return [32]byte{}, err
	}
	if err := b.trackMessage(hash, msg); err != nil {
		return [32]byte{}, err
	}
	if err := b.setInbox(hash, StatusDeclared); err != nil {
		return [32]byte{}, err
	}
	return hash, nil
}

func (b *Box) requireMessage(hash [32]byte) (*Message, error) {
	if hash == ([32]byte{}) {
		return nil, ErrZeroHash
	}
	msg, ok := b.messages[hash]
	if !ok {
		return nil, ErrUnknownMessage
	}
	return msg, nil
}

// ProgressOutbox completes a self-originated message on the fast path by
// revealing the hash lock's preimage.
func (b *Box) ProgressOutbox(hash [32]byte, unlockSecret [32]byte) error {
	msg, err := b.requireMessage(hash)
	if err != nil {
		return err
	}
	if b.outbox[hash] != StatusDeclared {
		return fmt.Errorf("%w: outbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.outbox[hash])
	}
	if !msg.VerifyUnlockSecret(unlockSecret) {
		return ErrWrongSecret
	}
	return b.setOutbox(hash, StatusProgressed)
}

// ProgressInbox completes a confirmed message on the fast path by revealing
// the hash lock's preimage.
func (b *Box) ProgressInbox(hash [32]byte, unlockSecret [32]byte) error {
	msg, err := b.requireMessage(hash)
	if err != nil {
		return err
	}
	if b.inbox[hash] != StatusDeclared {
		return fmt.Errorf("%w: inbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.inbox[hash])
	}
	if !msg.VerifyUnlockSecret(unlockSecret) {
		return ErrWrongSecret
	}
	return b.setInbox(hash, StatusProgressed)
}

func validProgressClaim(claimed Status) error {
	if claimed != StatusDeclared && claimed != StatusProgressed {
		return fmt.Errorf("%w: claimed status %s is no evidence of counterpart commitment", ErrInvalidTransition, claimed)
	}
	return nil
}

// ProgressOutboxWithProof completes a self-originated message without the
// unlock secret by proving the counterpart's inbox reached Declared or
// Progressed. Either proves the counterpart committed, so the transfer can
// never be stuck when the facilitator disappears with the secret. An outbox
// already in DeclaredRevocation may still progress this way: a proven
// counterpart commitment outranks a pending revert.
func (b *Box) ProgressOutboxWithProof(hash [32]byte, storageRoot [32]byte, rlpParentNodes []byte, claimed Status) error {
	if _, err := b.requireMessage(hash); err != nil {
		return err
	}
	if b.outbox[hash] != StatusDeclared && b.outbox[hash] != StatusDeclaredRevocation {
		return fmt.Errorf("%w: outbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.outbox[hash])
	}
	if err := validProgressClaim(claimed); err != nil {
		return err
	}
	if err := proof.VerifyBoxStatus(storageRoot, hash, proof.InboxIndex, uint8(claimed), rlpParentNodes); err != nil {
		return err
	}
	return b.setOutbox(hash, StatusProgressed)
}

// ProgressInboxWithProof completes a confirmed message without the unlock
// secret by proving the counterpart's outbox reached Declared or Progressed.
func (b *Box) ProgressInboxWithProof(hash [32]byte, storageRoot [32]byte, rlpParentNodes []byte, claimed Status) error {
	if _, err := b.requireMessage(hash); err != nil {
		return err
	}
	if b.inbox[hash] != StatusDeclared {
		return fmt.Errorf("%w: inbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.inbox[hash])
	}
	if err := validProgressClaim(claimed); err != nil {
		return err
	}
	if err := proof.VerifyBoxStatus(storageRoot, hash, proof.OutboxIndex, uint8(claimed), rlpParentNodes); err != nil {
		return err
	}
	return b.setInbox(hash, StatusProgressed)
}

// DeclareRevocation aborts a self-originated message that has not completed,
// moving the outbox entry from Declared to DeclaredRevocation.
func (b *Box) DeclareRevocation(hash [32]byte) error {
	if _, err := b.requireMessage(hash); err != nil {
		return err
	}
	if b.outbox[hash] != StatusDeclared {
		return fmt.Errorf("%w: outbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.outbox[hash])
	}
	return b.setOutbox(hash, StatusDeclaredRevocation)
}

// ConfirmRevocation finalises a counterpart-initiated revert on the inbox. A
// proven intent-to-revert is final on the confirming side, so the entry moves
// straight to Revoked.
func (b *Box) ConfirmRevocation(hash [32]byte, storageRoot [32]byte, rlpParentNodes []byte) error {
	if _, err := b.requireMessage(hash); err != nil {
		return err
	}
	if b.inbox[hash] != StatusDeclared {
		return fmt.Errorf("%w: inbox %s is %s, want declared", ErrInvalidTransition, hexHash(hash), b.inbox[hash])
	}
	if err := proof.VerifyBoxStatus(storageRoot, hash, proof.OutboxIndex, uint8(StatusDeclaredRevocation), rlpParentNodes); err != nil {
		return err
	}
	return b.setInbox(hash, StatusRevoked)
}

// ProgressOutboxRevocation finalises a self-initiated revert by proving the
// counterpart observed it (inbox DeclaredRevocation or Revoked).
func (b *Box) ProgressOutboxRevocation(hash [32]byte, storageRoot [32]byte, rlpParentNodes []byte, claimed Status) error {
	if _, err := b.requireMessage(hash); err != nil {
		return err
	}
	if b.outbox[hash] != StatusDeclaredRevocation {
		return fmt.Errorf("%w: outbox %s is %s, want declared_revocation", ErrInvalidTransition, hexHash(hash), b.outbox[hash])
	}
	if claimed != StatusDeclaredRevocation && claimed != StatusRevoked {
		return fmt.Errorf("%w: claimed status %s is no evidence of counterpart revocation", ErrInvalidTransition, claimed)
	}
	if err := proof.VerifyBoxStatus(storageRoot, hash, proof.InboxIndex, uint8(claimed), rlpParentNodes); err != nil {
		return err
	}
	return b.setOutbox(hash, StatusRevoked)
}

// RecordGasConsumed sets the confirmation-side gas charge for a message. The
// value is written once; later writes fail.
func (b *Box) RecordGasConsumed(hash [32]byte, consumed *big.Int) error {
	msg, err := b.requireMessage(hash)
	if err != nil {
		return err
	}
	if msg.GasConsumed != nil && msg.GasConsumed.Sign() != 0 {
		return fmt.Errorf("message: gas consumed already recorded for %s", hexHash(hash))
	}
	if consumed == nil || consumed.Sign() < 0 {
		return fmt.Errorf("message: invalid gas consumed value")
	}
	updated := msg.Clone()
	updated.GasConsumed = new(big.Int).Set(consumed)
	if err := b.store.KVPut(boxKey(recordPrefix, hash), updated); err != nil {
		return err
	}
	b.messages[hash] = updated
	return nil
}

// BoxState is a point-in-time copy of the non-Undeclared entries, consumed by
// provers that rebuild the box as a storage trie.
type BoxState struct {
	Outbox map[[32]byte]Status
	Inbox  map[[32]byte]Status
}

// State snapshots the box for proving.
func (b *Box) State() *BoxState {
	state := &BoxState{
		Outbox: make(map[[32]byte]Status, len(b.outbox)),
		Inbox:  make(map[[32]byte]Status, len(b.inbox)),
	}
	for hash, status := range b.outbox {
		state.Outbox[hash] = status
	}
	for hash, status := range b.inbox {
		state.Inbox[hash] = status
	}
	return state
}

func hexHash(hash [32]byte) string {
	return fmt.Sprintf("%x", hash[:8])
}
