package gateway

import (
	"fmt"
	"math/big"

	"crossgate/core/message"
	"crossgate/core/registry"
	"crossgate/core/token"
)

// UtilityToken is the auxiliary-chain representation of the origin value
// token. The CoGateway mints it when stakes complete and burns it when
// redemptions complete.
type UtilityToken interface {
	token.Minter
	token.Burner
	token.Transferrer
}

// CoGatewayConfig wires an auxiliary-side endpoint.
type CoGatewayConfig struct {
	Config
	// Token is the utility token minted and burned on the auxiliary chain.
	Token UtilityToken
}

// CoGateway is the auxiliary-chain endpoint: confirmed stakes mint utility
// tokens here and redemptions originate here.
type CoGateway struct {
	*base
	token UtilityToken
}

// NewCoGateway constructs the auxiliary endpoint.
func NewCoGateway(cfg CoGatewayConfig) (*CoGateway, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("gateway: utility token required")
	}
	b, err := newBase(cfg.Config, "auxiliary")
	if err != nil {
		return nil, err
	}
	return &CoGateway{base: b, token: cfg.Token}, nil
}

// ConfirmStakeIntent confirms an origin-side stake into the local inbox,
// gated on a Merkle proof of the Gateway's Declared outbox entry.
func (c *CoGateway) ConfirmStakeIntent(staker [20]byte, nonce uint64, beneficiary [20]byte, amount, gasPrice, gasLimit *big.Int, hashLock [32]byte, height uint64, rlpParentNodes []byte) (hash [32]byte, err error) {
	defer func() { c.observe("confirm_stake_intent", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.requireLinked(); err != nil {
		return [32]byte{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrInvalidAmount
	}
	if beneficiary == ([20]byte{}) {
		return [32]byte{}, ErrZeroBeneficiary
	}
	msg := &message.Message{
		IntentHash: StakeIntentHash(amount, beneficiary, staker, c.remote, c.address),
		Nonce:      nonce,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Sender:     staker,
		HashLock:   hashLock,
	}
	if err = msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash = msg.Hash()
	if err = c.inboxReg.Precheck(staker, nonce, c.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return [32]byte{}, err
	}
	if _, err = c.confirmWithProof(msg, root, rlpParentNodes); err != nil {
		return [32]byte{}, err
	}
	if err = c.box.RecordGasConsumed(hash, c.gas(OpConfirm)); err != nil {
		return [32]byte{}, err
	}
	rec := &registry.TransferRecord{Amount: amount, Beneficiary: beneficiary, Facilitator: staker}
	if err = c.inboxReg.Initiate(staker, nonce, hash, rec, c.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	c.emit(newMessageEvent(EventTypeMintConfirmed, hash, msg, map[string]string{
		"amount":      amountString(amount),
		"beneficiary": hexBytes(beneficiary[:]),
	}))
	c.log.Info("stake intent confirmed", "messageHash", hexBytes(hash[:]), "amount", amountString(amount))
	return hash, nil
}

// ProgressMinting completes a confirmed stake on the fast path: the
// beneficiary receives newly minted utility tokens minus the relayer reward,
// which is minted to the caller.
func (c *CoGateway) ProgressMinting(caller [20]byte, hash [32]byte, unlockSecret [32]byte) (minted, reward *big.Int, err error) {
	defer func() { c.observe("progress_minting", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, msg, reward, err := c.mintPayout(hash)
	if err != nil {
		return nil, nil, err
	}
	if err = c.box.ProgressInbox(hash, unlockSecret); err != nil {
		return nil, nil, err
	}
	minted, err = c.finishMint(caller, hash, rec, msg, reward)
	return minted, reward, err
}

// ProgressMintingWithProof completes a confirmed stake without the secret by
// proving the Gateway's outbox reached Declared or Progressed.
func (c *CoGateway) ProgressMintingWithProof(caller [20]byte, hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (minted, reward *big.Int, err error) {
	defer func() { c.observe("progress_minting", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, msg, reward, err := c.mintPayout(hash)
	if err != nil {
		return nil, nil, err
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return nil, nil, err
	}
	if err = c.progressInboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return nil, nil, err
	}
	minted, err = c.finishMint(caller, hash, rec, msg, reward)
	return minted, reward, err
}

func (c *CoGateway) mintPayout(hash [32]byte) (*registry.TransferRecord, *message.Message, *big.Int, error) {
	rec, err := c.inboxReg.Record(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	msg, ok := c.box.Message(hash)
	if !ok {
		return nil, nil, nil, message.ErrUnknownMessage
	}
	reward := feeAmount(msg, c.gas(OpProgress))
	if reward.Cmp(rec.Amount) > 0 {
		return nil, nil, nil, fmt.Errorf("%w: fee %s, amount %s", ErrFeeExceedsAmount, reward, rec.Amount)
	}
	return rec, msg, reward, nil
}

func (c *CoGateway) finishMint(caller [20]byte, hash [32]byte, rec *registry.TransferRecord, msg *message.Message, reward *big.Int) (*big.Int, error) {
	minted := new(big.Int).Sub(rec.Amount, reward)
	if minted.Sign() > 0 {
		if err := c.token.Mint(rec.Beneficiary, minted); err != nil {
			return nil, err
		}
	}
	if reward.Sign() > 0 {
		if err := c.token.Mint(caller, reward); err != nil {
			return nil, err
		}
	}
	c.emit(newMessageEvent(EventTypeMintProgressed, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
		"reward": amountString(reward),
	}))
	c.log.Info("mint progressed", "messageHash", hexBytes(hash[:]), "minted", minted.String(), "reward", reward.String())
	return minted, nil
}

// ConfirmRevertStakeIntent finalises an origin-initiated stake abort on the
// local inbox, proving the Gateway's outbox reached DeclaredRevocation.
func (c *CoGateway) ConfirmRevertStakeIntent(hash [32]byte, height uint64, rlpParentNodes []byte) (err error) {
	defer func() { c.observe("confirm_revert_stake", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	root, err := c.provenRoot(height)
	if err != nil {
		return err
	}
	if err = c.confirmRevocation(hash, root, rlpParentNodes); err != nil {
		return err
	}
	msg, _ := c.box.Message(hash)
	c.emit(newMessageEvent(EventTypeMintRevertComplete, hash, msg, nil))
	c.log.Info("stake revert confirmed", "messageHash", hexBytes(hash[:]))
	return nil
}

// Redeem opens a reverse transfer: it escrows amount plus bounty of utility
// tokens from the redeemer and declares the outbox entry.
func (c *CoGateway) Redeem(redeemer [20]byte, amount *big.Int, beneficiary [20]byte, gasPrice, gasLimit *big.Int, nonce uint64, hashLock [32]byte) (hash [32]byte, err error) {
	defer func() { c.observe("redeem", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.requireLinked(); err != nil {
		return [32]byte{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrInvalidAmount
	}
	if beneficiary == ([20]byte{}) {
		return [32]byte{}, ErrZeroBeneficiary
	}
	msg := &message.Message{
		IntentHash: RedeemIntentHash(amount, beneficiary, redeemer, c.address, c.remote),
		Nonce:      nonce,
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Sender:     redeemer,
		HashLock:   hashLock,
	}
	if err = msg.Sanitize(); err != nil {
		return [32]byte{}, err
	}
	hash = msg.Hash()
	if status := c.box.OutboxStatus(hash); status != message.StatusUndeclared {
		return [32]byte{}, fmt.Errorf("%w: outbox already %s", message.ErrInvalidTransition, status)
	}
	if err = c.outboxReg.Precheck(redeemer, nonce, c.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if err = pay(c.token, redeemer, c.address, sum(amount, c.bounty)); err != nil {
		return [32]byte{}, err
	}
	rec := &registry.TransferRecord{Amount: amount, Beneficiary: beneficiary, Facilitator: redeemer}
	if err = c.outboxReg.Initiate(redeemer, nonce, hash, rec, c.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if _, err = c.box.Declare(msg); err != nil {
		return [32]byte{}, err
	}
	c.emit(newMessageEvent(EventTypeRedeemDeclared, hash, msg, map[string]string{
		"amount":      amountString(amount),
		"beneficiary": hexBytes(beneficiary[:]),
	}))
	c.log.Info("redeem intent declared", "messageHash", hexBytes(hash[:]), "amount", amountString(amount))
	return hash, nil
}

// ProgressRedeem completes a redemption on the fast path: the escrowed
// utility tokens are burned out of circulation and the bounty refunds to the
// caller.
func (c *CoGateway) ProgressRedeem(caller [20]byte, hash [32]byte, unlockSecret [32]byte) (burned *big.Int, err error) {
	defer func() { c.observe("progress_redeem", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.outboxReg.Record(hash)
	if err != nil {
		return nil, err
	}
	if err = c.box.ProgressOutbox(hash, unlockSecret); err != nil {
		return nil, err
	}
	return rec.Amount, c.finishRedeem(caller, hash, rec)
}

// ProgressRedeemWithProof completes a redemption without the secret by
// proving the Gateway's inbox reached Declared or Progressed.
func (c *CoGateway) ProgressRedeemWithProof(caller [20]byte, hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (burned *big.Int, err error) {
	defer func() { c.observe("progress_redeem", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.outboxReg.Record(hash)
	if err != nil {
		return nil, err
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return nil, err
	}
	if err = c.progressOutboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return nil, err
	}
	return rec.Amount, c.finishRedeem(caller, hash, rec)
}

func (c *CoGateway) finishRedeem(caller [20]byte, hash [32]byte, rec *registry.TransferRecord) error {
	if err := c.token.Burn(c.address, rec.Amount); err != nil {
		return err
	}
	if err := pay(c.token, c.address, caller, c.bounty); err != nil {
		return err
	}
	msg, _ := c.box.Message(hash)
	c.emit(newMessageEvent(EventTypeRedeemProgressed, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
	}))
	c.log.Info("redeem progressed", "messageHash", hexBytes(hash[:]), "burned", rec.Amount.String())
	return nil
}

// RevertRedeem aborts a declared redemption. Only the original redeemer may
// abort, at the cost of the revocation penalty.
func (c *CoGateway) RevertRedeem(caller [20]byte, hash [32]byte) (err error) {
	defer func() { c.observe("revert_redeem", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.box.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	if msg.Sender != caller {
		return ErrNotSender
	}
	if status := c.box.OutboxStatus(hash); status != message.StatusDeclared {
		return fmt.Errorf("%w: outbox is %s, want declared", message.ErrInvalidTransition, status)
	}
	if err = pay(c.token, caller, c.address, c.penaltyAmount()); err != nil {
		return err
	}
	if err = c.box.DeclareRevocation(hash); err != nil {
		return err
	}
	c.emit(newMessageEvent(EventTypeRedeemRevertDeclared, hash, msg, nil))
	c.log.Info("redeem revert declared", "messageHash", hexBytes(hash[:]))
	return nil
}

// ProgressRevertRedeem finalises an abort by proving the Gateway observed the
// revocation, refunding the escrowed amount and bounty. The penalty stays
// with the endpoint.
func (c *CoGateway) ProgressRevertRedeem(hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (err error) {
	defer func() { c.observe("progress_revert_redeem", err) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.outboxReg.Record(hash)
	if err != nil {
		return err
	}
	msg, ok := c.box.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	root, err := c.provenRoot(height)
	if err != nil {
		return err
	}
	if err = c.progressOutboxRevocation(hash, root, rlpParentNodes, claimed); err != nil {
		return err
	}
	if err = pay(c.token, c.address, msg.Sender, sum(rec.Amount, c.bounty)); err != nil {
		return err
	}
	c.emit(newMessageEvent(EventTypeRedeemRevertCompleted, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
	}))
	c.log.Info("redeem reverted", "messageHash", hexBytes(hash[:]))
	return nil
}
