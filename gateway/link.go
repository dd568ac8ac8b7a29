package gateway

import (
	"math/big"

	"crossgate/core/message"
)

// InitiateLink declares the one-time bootstrap handshake on the origin
// endpoint. The symbol and name describe the utility token the auxiliary side
// will mint; both must match what the CoGateway confirms or the intent hashes
// diverge and the handshake never completes.
func (g *Gateway) InitiateLink(sender [20]byte, nonce uint64, gasPrice, gasLimit *big.Int, hashLock [32]byte, symbol, name string) (hash [32]byte, err error) {
	defer func() { g.observe("initiate_link", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err = g.requireUnlinked(); err != nil {
		return [32]byte{}, err
	}
	msg := &message.Message{
		IntentHash: LinkIntentHash(g.address, g.remote, g.bounty, symbol, name),
		Nonce:      nonce,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Sender:     sender,
		HashLock:   hashLock,
	}
	if err = msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash = msg.Hash()
	if err = g.outboxReg.Precheck(sender, nonce, g.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if err = g.outboxReg.Initiate(sender, nonce, hash, nil, g.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if _, err = g.box.Declare(msg); err != nil {
		return [32]byte{}, err
	}
	if err = g.setLinkHash(hash); err != nil {
		return [32]byte{}, err
	}
	g.emit(newMessageEvent(EventTypeLinkDeclared, hash, msg, map[string]string{
		"symbol": symbol,
		"name":   name,
	}))
	g.log.Info("link declared", "messageHash", hexBytes(hash[:]))
	return hash, nil
}

// ProgressLink completes the origin half of the handshake with the unlock
// secret. The endpoint accepts transfers once linked.
func (g *Gateway) ProgressLink(hash [32]byte, unlockSecret [32]byte) (err error) {
	defer func() { g.observe("progress_link", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err = g.requireLinkPending(hash); err != nil {
		return err
	}
	if err = g.box.ProgressOutbox(hash, unlockSecret); err != nil {
		return err
	}
	return g.setLinked()
}

// ProgressLinkWithProof completes the origin half of the handshake by proving
// the CoGateway's inbox reached Declared or Progressed.
func (g *Gateway) ProgressLinkWithProof(hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (err error) {
	defer func() { g.observe("progress_link", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err = g.requireLinkPending(hash); err != nil {
		return err
	}
	root, err := g.provenRoot(height)
	if err != nil {
		return err
	}
	if err = g.progressOutboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return err
	}
	return g.setLinked()
}

// ConfirmLinkIntent confirms the bootstrap handshake on the auxiliary
// endpoint, gated on a Merkle proof of the Gateway's Declared outbox entry.
// The intent is rebuilt locally, so a confirmation with mismatched bounty or
// token metadata produces a different message hash and fails the proof.
func (c *CoGateway) ConfirmLinkIntent(sender [20]byte, nonce uint64, gasPrice, gasLimit *big.Int, hashLock [32]byte, symbol, name string, height uint64, rlpParentNodes []byte) (hash [32]byte, err error) {
	defer func() { c.observe("confirm_link_intent", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.requireUnlinked(); err != nil {
		return [32]byte{}, err
	}
	msg := &message.Message{
		IntentHash: LinkIntentHash(c.remote, c.address, c.bounty, symbol, name),
		Nonce:      nonce,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Sender:     sender,
		HashLock:   hashLock,
	}
	if err = msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash = msg.Hash()
	if err = c.inboxReg.Precheck(sender, nonce, c.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return [32]byte{}, err
	}
	if _, err = c.confirmWithProof(msg, root, rlpParentNodes); err != nil {
		return [32]byte{}, err
	}
	if err = c.inboxReg.Initiate(sender, nonce, hash, nil, c.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	if err = c.setLinkHash(hash); err != nil {
		return [32]byte{}, err
	}
	c.emit(newMessageEvent(EventTypeLinkConfirmed, hash, msg, map[string]string{
		"symbol": symbol,
		"name":   name,
	}))
	c.log.Info("link confirmed", "messageHash", hexBytes(hash[:]))
	return hash, nil
}

// ProgressLink completes the auxiliary half of the handshake with the unlock
// secret.
func (c *CoGateway) ProgressLink(hash [32]byte, unlockSecret [32]byte) (err error) {
	defer func() { c.observe("progress_link", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.requireLinkPending(hash); err != nil {
		return err
	}
	if err = c.box.ProgressInbox(hash, unlockSecret); err != nil {
		return err
	}
	return c.setLinked()
}

// ProgressLinkWithProof completes the auxiliary half of the handshake by
// proving the Gateway's outbox reached Declared or Progressed.
func (c *CoGateway) ProgressLinkWithProof(hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (err error) {
	defer func() { c.observe("progress_link", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.requireLinkPending(hash); err != nil {
		return err
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return err
	}
	if err = c.progressInboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return err
	}
	return c.setLinked()
}
