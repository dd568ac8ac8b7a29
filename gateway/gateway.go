package gateway

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crossgate/core/message"
	"crossgate/core/registry"
	"crossgate/core/token"
)

// GatewayConfig wires an origin-side endpoint.
type GatewayConfig struct {
	Config
	// Token is the value token staked on the origin chain.
	Token token.Transferrer
	// StakeVault holds completed stakes until the matching redemption
	// releases them. Derived from the endpoint address when zero.
	StakeVault [20]byte
}

// Gateway is the origin-chain endpoint: stakes originate here and
// redemptions confirmed from the auxiliary chain release escrowed value here.
type Gateway struct {
	*base
	token token.Transferrer
	vault [20]byte
}

// NewGateway constructs the origin endpoint.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("gateway: value token required")
	}
	b, err := newBase(cfg.Config, "origin")
	if err != nil {
		return nil, err
	}
	vault := cfg.StakeVault
	if vault == ([20]byte{}) {
		vault = deriveVault(cfg.Address)
	}
	return &Gateway{base: b, token: cfg.Token, vault: vault}, nil
}

func deriveVault(address [20]byte) [20]byte {
	digest := ethcrypto.Keccak256(address[:], []byte("stake-vault"))
	var vault [20]byte
	copy(vault[:], digest[12:])
	return vault
}

// StakeVault returns the address holding completed stakes.
func (g *Gateway) StakeVault() [20]byte { return g.vault }

// Stake opens a transfer: it escrows amount plus bounty from the staker,
// declares the outbox entry and returns the message hash facilitators use to
// track the transfer on both chains.
func (g *Gateway) Stake(staker [20]byte, amount *big.Int, beneficiary [20]byte, gasPrice, gasLimit *big.Int, nonce uint64, hashLock [32]byte) (hash [32]byte, err error) {
	defer func() { g.observe("stake", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err = g.requireLinked(); err != nil {
		return [32]byte{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrInvalidAmount
	}
	if beneficiary == ([20]byte{}) {
		return [32]byte{}, ErrZeroBeneficiary
	}
	msg := &message.Message{
		IntentHash: StakeIntentHash(amount, beneficiary, staker, g.address, g.remote),
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
	if status := g.box.OutboxStatus(hash); status != message.StatusUndeclared {
		return [32]byte{}, fmt.Errorf("%w: outbox already %s", message.ErrInvalidTransition, status)
	}
	if err = g.outboxReg.Precheck(staker, nonce, g.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if err = pay(g.token, staker, g.address, sum(amount, g.bounty)); err != nil {
		return [32]byte{}, err
	}
	rec := &registry.TransferRecord{Amount: amount, Beneficiary: beneficiary, Facilitator: staker}
	if err = g.outboxReg.Initiate(staker, nonce, hash, rec, g.box.OutboxStatus); err != nil {
		return [32]byte{}, err
	}
	if _, err = g.box.Declare(msg); err != nil {
		return [32]byte{}, err
	}
	g.emit(newMessageEvent(EventTypeStakeDeclared, hash, msg, map[string]string{
		"amount":      amountString(amount),
		"beneficiary": hexBytes(beneficiary[:]),
	}))
	g.log.Info("stake intent declared", "messageHash", hexBytes(hash[:]), "amount", amountString(amount))
	return hash, nil
}

// ProgressStaking completes a stake on the fast path using the unlock secret:
// the escrowed amount moves to the stake vault and the bounty refunds to the
// caller.
func (g *Gateway) ProgressStaking(caller [20]byte, hash [32]byte, unlockSecret [32]byte) (staked *big.Int, err error) {
	defer func() { g.observe("progress_staking", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, err := g.outboxReg.Record(hash)
	if err != nil {
		return nil, err
	}
	if err = g.box.ProgressOutbox(hash, unlockSecret); err != nil {
		return nil, err
	}
	return rec.Amount, g.finishStake(caller, hash, rec)
}

// ProgressStakingWithProof completes a stake without the secret by proving
// the auxiliary inbox reached Declared or Progressed.
func (g *Gateway) ProgressStakingWithProof(caller [20]byte, hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (staked *big.Int, err error) {
	defer func() { g.observe("progress_staking", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, err := g.outboxReg.Record(hash)
	if err != nil {
		return nil, err
	}
	root, err := g.provenRoot(height)
	if err != nil {
		return nil, err
	}
	if err = g.progressOutboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return nil, err
	}
	return rec.Amount, g.finishStake(caller, hash, rec)
}

func (g *Gateway) finishStake(caller [20]byte, hash [32]byte, rec *registry.TransferRecord) error {
	if err := pay(g.token, g.address, g.vault, rec.Amount); err != nil {
		return err
	}
	if err := pay(g.token, g.address, caller, g.bounty); err != nil {
		return err
	}
	msg, _ := g.box.Message(hash)
	g.emit(newMessageEvent(EventTypeStakeProgressed, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
	}))
	g.log.Info("stake progressed", "messageHash", hexBytes(hash[:]))
	return nil
}

// RevertStaking aborts a declared stake. Only the original staker may abort,
// and doing so costs the revocation penalty on top of the already escrowed
// bounty.
func (g *Gateway) RevertStaking(caller [20]byte, hash [32]byte) (err error) {
	defer func() { g.observe("revert_staking", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.box.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	if msg.Sender != caller {
		return ErrNotSender
	}
	if status := g.box.OutboxStatus(hash); status != message.StatusDeclared {
		return fmt.Errorf("%w: outbox is %s, want declared", message.ErrInvalidTransition, status)
	}
	if err = pay(g.token, caller, g.address, g.penaltyAmount()); err != nil {
		return err
	}
	if err = g.box.DeclareRevocation(hash); err != nil {
		return err
	}
	g.emit(newMessageEvent(EventTypeStakeRevertDeclared, hash, msg, nil))
	g.log.Info("stake revert declared", "messageHash", hexBytes(hash[:]))
	return nil
}

// ProgressRevertStaking finalises an abort by proving the auxiliary side
// observed the revocation, refunding the staked amount and bounty. The
// penalty stays with the gateway.
func (g *Gateway) ProgressRevertStaking(hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (err error) {
	defer func() { g.observe("progress_revert_staking", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, err := g.outboxReg.Record(hash)
	if err != nil {
		return err
	}
	msg, ok := g.box.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	root, err := g.provenRoot(height)
	if err != nil {
		return err
	}
	if err = g.progressOutboxRevocation(hash, root, rlpParentNodes, claimed); err != nil {
		return err
	}
	if err = pay(g.token, g.address, msg.Sender, sum(rec.Amount, g.bounty)); err != nil {
		return err
	}
	g.emit(newMessageEvent(EventTypeStakeRevertCompleted, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
	}))
	g.log.Info("stake reverted", "messageHash", hexBytes(hash[:]))
	return nil
}

// ConfirmRedeemIntent confirms an auxiliary-side redemption into the local
// inbox, gated on a Merkle proof of the CoGateway's Declared outbox entry.
func (g *Gateway) ConfirmRedeemIntent(redeemer [20]byte, nonce uint64, beneficiary [20]byte, amount, gasPrice, gasLimit *big.Int, hashLock [32]byte, height uint64, rlpParentNodes []byte) (hash [32]byte, err error) {
	defer func() { g.observe("confirm_redeem_intent", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err = g.requireLinked(); err != nil {
		return [32]byte{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return [32]byte{}, ErrInvalidAmount
	}
	if beneficiary == ([20]byte{}) {
		return [32]byte{}, ErrZeroBeneficiary
	}
	msg := &message.Message{
		IntentHash: RedeemIntentHash(amount, beneficiary, redeemer, g.remote, g.address),
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
	if err = g.inboxReg.Precheck(redeemer, nonce, g.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	root, err := g.provenRoot(height)
	if err != nil {
		return [32]byte{}, err
	}
	if _, err = g.confirmWithProof(msg, root, rlpParentNodes); err != nil {
		return [32]byte{}, err
	}
	if err = g.box.RecordGasConsumed(hash, g.gas(OpConfirm)); err != nil {
		return [32]byte{}, err
	}
	rec := &registry.TransferRecord{Amount: amount, Beneficiary: beneficiary, Facilitator: redeemer}
	if err = g.inboxReg.Initiate(redeemer, nonce, hash, rec, g.box.InboxStatus); err != nil {
		return [32]byte{}, err
	}
	g.emit(newMessageEvent(EventTypeUnstakeConfirmed, hash, msg, map[string]string{
		"amount":      amountString(amount),
		"beneficiary": hexBytes(beneficiary[:]),
	}))
	g.log.Info("redeem intent confirmed", "messageHash", hexBytes(hash[:]), "amount", amountString(amount))
	return hash, nil
}

// ProgressUnstake completes a confirmed redemption on the fast path: the
// beneficiary receives the redeemed amount minus the relayer reward, paid out
// of the stake vault.
func (g *Gateway) ProgressUnstake(caller [20]byte, hash [32]byte, unlockSecret [32]byte) (released, reward *big.Int, err error) {
	defer func() { g.observe("progress_unstake", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, msg, reward, err := g.unstakePayout(hash)
	if err != nil {
		return nil, nil, err
	}
	if err = g.box.ProgressInbox(hash, unlockSecret); err != nil {
		return nil, nil, err
	}
	released, err = g.finishUnstake(caller, hash, rec, msg, reward)
	return released, reward, err
}

// ProgressUnstakeWithProof completes a confirmed redemption without the
// secret by proving the CoGateway's outbox reached Declared or Progressed.
func (g *Gateway) ProgressUnstakeWithProof(caller [20]byte, hash [32]byte, height uint64, rlpParentNodes []byte, claimed message.Status) (released, reward *big.Int, err error) {
	defer func() { g.observe("progress_unstake", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, msg, reward, err := g.unstakePayout(hash)
	if err != nil {
		return nil, nil, err
	}
	root, err := g.provenRoot(height)
	if err != nil {
		return nil, nil, err
	}
	if err = g.progressInboxWithProof(hash, root, rlpParentNodes, claimed); err != nil {
		return nil, nil, err
	}
	released, err = g.finishUnstake(caller, hash, rec, msg, reward)
	return released, reward, err
}

func (g *Gateway) unstakePayout(hash [32]byte) (*registry.TransferRecord, *message.Message, *big.Int, error) {
	rec, err := g.inboxReg.Record(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	msg, ok := g.box.Message(hash)
	if !ok {
		return nil, nil, nil, message.ErrUnknownMessage
	}
	reward := feeAmount(msg, g.gas(OpProgress))
	if reward.Cmp(rec.Amount) > 0 {
		return nil, nil, nil, fmt.Errorf("%w: fee %s, amount %s", ErrFeeExceedsAmount, reward, rec.Amount)
	}
	return rec, msg, reward, nil
}

func (g *Gateway) finishUnstake(caller [20]byte, hash [32]byte, rec *registry.TransferRecord, msg *message.Message, reward *big.Int) (*big.Int, error) {
	released := new(big.Int).Sub(rec.Amount, reward)
	if err := pay(g.token, g.vault, rec.Beneficiary, released); err != nil {
		return nil, err
	}
	if err := pay(g.token, g.vault, caller, reward); err != nil {
		return nil, err
	}
	g.emit(newMessageEvent(EventTypeUnstakeProgressed, hash, msg, map[string]string{
		"amount": amountString(rec.Amount),
		"reward": amountString(reward),
	}))
	g.log.Info("unstake progressed", "messageHash", hexBytes(hash[:]), "released", released.String(), "reward", reward.String())
	return released, nil
}

// ConfirmRevertRedeemIntent finalises an auxiliary-initiated redemption abort
// on the local inbox. Nothing was escrowed here for a redemption, so only the
// status moves.
func (g *Gateway) ConfirmRevertRedeemIntent(hash [32]byte, height uint64, rlpParentNodes []byte) (err error) {
	defer func() { g.observe("confirm_revert_redeem", err) }()
	g.mu.Lock()
	defer g.mu.Unlock()
	root, err := g.provenRoot(height)
	if err != nil {
		return err
	}
	if err = g.confirmRevocation(hash, root, rlpParentNodes); err != nil {
		return err
	}
	msg, _ := g.box.Message(hash)
	g.emit(newMessageEvent(EventTypeUnstakeRevertComplete, hash, msg, nil))
	g.log.Info("redeem revert confirmed", "messageHash", hexBytes(hash[:]))
	return nil
}
