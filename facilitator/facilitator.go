package facilitator

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"crossgate/core/anchor"
	"crossgate/core/message"
	"crossgate/core/proof"
	"crossgate/gateway"
)

// Config wires a facilitator to one Gateway/CoGateway pair. The anchors are
// the registries the endpoints read counterpart roots from: OriginAnchor is
// consulted by the CoGateway and holds origin-chain roots, AuxiliaryAnchor
// the reverse.
type Config struct {
	Gateway         *gateway.Gateway
	CoGateway       *gateway.CoGateway
	OriginAnchor    *anchor.RootRegistry
	AuxiliaryAnchor *anchor.RootRegistry
	// Worker is the account relay rewards and bounty refunds are paid to.
	Worker [20]byte
	Logger *slog.Logger
}

// Facilitator drives transfers across an endpoint pair: it snapshots one
// side's state, anchors the root on the other side, proves the endpoint
// account, and replays box transitions with storage proofs. Any party can run
// one; the protocol's proofs keep a dishonest facilitator harmless.
type Facilitator struct {
	mu sync.Mutex

	gw  *gateway.Gateway
	cgw *gateway.CoGateway

	originAnchor *anchor.RootRegistry
	auxAnchor    *anchor.RootRegistry

	originProver *Prover
	auxProver    *Prover

	// Synthetic block heights, one counter per chain.
	originHeight uint64
	auxHeight    uint64

	worker [20]byte
	log    *slog.Logger
}

// New creates a facilitator for the endpoint pair.
func New(cfg Config) (*Facilitator, error) {
	if cfg.Gateway == nil || cfg.CoGateway == nil {
		return nil, fmt.Errorf("facilitator: both endpoints required")
	}
	if cfg.OriginAnchor == nil || cfg.AuxiliaryAnchor == nil {
		return nil, fmt.Errorf("facilitator: both anchors required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Facilitator{
		gw:           cfg.Gateway,
		cgw:          cfg.CoGateway,
		originAnchor: cfg.OriginAnchor,
		auxAnchor:    cfg.AuxiliaryAnchor,
		originProver: NewProver(cfg.Gateway.Address()),
		auxProver:    NewProver(cfg.CoGateway.Address()),
		worker:       cfg.Worker,
		log:          logger.With("component", "facilitator"),
	}, nil
}

// anchorOrigin snapshots the Gateway, anchors its state root for the
// CoGateway and proves the Gateway account there. Returns the height and
// snapshot for storage proofs. Callers hold the mutex.
func (f *Facilitator) anchorOrigin() (uint64, *Snapshot, error) {
	snap, err := f.originProver.Snapshot(f.gw.BoxState())
	if err != nil {
		return 0, nil, err
	}
	f.originHeight++
	height := f.originHeight
	if err := f.originAnchor.AnchorStateRoot(height, snap.StateRoot); err != nil {
		return 0, nil, err
	}
	if _, err := f.cgw.ProveGateway(height, snap.EncodedAccount, snap.AccountProof); err != nil {
		return 0, nil, err
	}
	return height, snap, nil
}

// anchorAuxiliary is the mirror of anchorOrigin. Callers hold the mutex.
func (f *Facilitator) anchorAuxiliary() (uint64, *Snapshot, error) {
	snap, err := f.auxProver.Snapshot(f.cgw.BoxState())
	if err != nil {
		return 0, nil, err
	}
	f.auxHeight++
	height := f.auxHeight
	if err := f.auxAnchor.AnchorStateRoot(height, snap.StateRoot); err != nil {
		return 0, nil, err
	}
	if _, err := f.gw.ProveGateway(height, snap.EncodedAccount, snap.AccountProof); err != nil {
		return 0, nil, err
	}
	return height, snap, nil
}

func (f *Facilitator) job(op string, hash [32]byte) *slog.Logger {
	return f.log.With("job", uuid.NewString(), "op", op, "messageHash", fmt.Sprintf("%x", hash[:8]))
}

// EstablishLink runs the full bootstrap handshake: declare on the Gateway,
// confirm on the CoGateway with proof, then reveal the secret on both sides.
func (f *Facilitator) EstablishLink(sender [20]byte, gasPrice, gasLimit *big.Int, unlockSecret [32]byte, symbol, name string) (hash [32]byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashLock := message.HashSecret(unlockSecret)
	nonce, err := f.gw.NextNonce(sender)
	if err != nil {
		return [32]byte{}, err
	}
	hash, err = f.gw.InitiateLink(sender, nonce, gasPrice, gasLimit, hashLock, symbol, name)
	if err != nil {
		return [32]byte{}, err
	}
	log := f.job("link", hash)
	height, snap, err := f.anchorOrigin()
	if err != nil {
		return [32]byte{}, err
	}
	nodes, err := snap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return [32]byte{}, err
	}
	if _, err = f.cgw.ConfirmLinkIntent(sender, nonce, gasPrice, gasLimit, hashLock, symbol, name, height, nodes); err != nil {
		return [32]byte{}, err
	}
	if err = f.cgw.ProgressLink(hash, unlockSecret); err != nil {
		return [32]byte{}, err
	}
	if err = f.gw.ProgressLink(hash, unlockSecret); err != nil {
		return [32]byte{}, err
	}
	log.Info("link established")
	return hash, nil
}

// RelayStake confirms a declared stake on the CoGateway: it anchors the
// origin state and replays the stake intent with a storage proof of the
// Gateway's outbox entry.
func (f *Facilitator) RelayStake(hash [32]byte) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("relay_stake", hash)
	msg, ok := f.gw.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	rec, err := f.gw.OutboxRecord(hash)
	if err != nil {
		return err
	}
	height, snap, err := f.anchorOrigin()
	if err != nil {
		return err
	}
	nodes, err := snap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return err
	}
	if _, err = f.cgw.ConfirmStakeIntent(msg.Sender, msg.Nonce, rec.Beneficiary, rec.Amount, msg.GasPrice, msg.GasLimit, msg.HashLock, height, nodes); err != nil {
		return err
	}
	log.Info("stake confirmed on auxiliary", "blockHeight", height)
	return nil
}

// CompleteStake finishes a confirmed stake on the fast path, revealing the
// unlock secret on both sides. Mint first so the origin side's completion can
// always fall back to a proof of the minted state.
func (f *Facilitator) CompleteStake(hash [32]byte, unlockSecret [32]byte) (minted *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("complete_stake", hash)
	minted, reward, err := f.cgw.ProgressMinting(f.worker, hash, unlockSecret)
	if err != nil {
		return nil, err
	}
	if _, err = f.gw.ProgressStaking(f.worker, hash, unlockSecret); err != nil {
		return nil, err
	}
	log.Info("stake completed", "minted", minted.String(), "reward", reward.String())
	return minted, nil
}

// CompleteStakeWithProofs finishes a confirmed stake without the secret,
// progressing each side on a proof of the other's commitment.
func (f *Facilitator) CompleteStakeWithProofs(hash [32]byte) (minted *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("complete_stake", hash)

	originHeight, originSnap, err := f.anchorOrigin()
	if err != nil {
		return nil, err
	}
	outboxNodes, err := originSnap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return nil, err
	}
	minted, reward, err := f.cgw.ProgressMintingWithProof(f.worker, hash, originHeight, outboxNodes, message.StatusDeclared)
	if err != nil {
		return nil, err
	}

	auxHeight, auxSnap, err := f.anchorAuxiliary()
	if err != nil {
		return nil, err
	}
	inboxNodes, err := auxSnap.StorageProof(hash, proof.InboxIndex)
	if err != nil {
		return nil, err
	}
	if _, err = f.gw.ProgressStakingWithProof(f.worker, hash, auxHeight, inboxNodes, message.StatusProgressed); err != nil {
		return nil, err
	}
	log.Info("stake completed with proofs", "minted", minted.String(), "reward", reward.String())
	return minted, nil
}

// RelayStakeRevert carries an origin-side stake abort across: it confirms the
// revocation on the CoGateway, then proves that confirmation back so the
// Gateway can refund.
func (f *Facilitator) RelayStakeRevert(hash [32]byte) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("relay_stake_revert", hash)

	originHeight, originSnap, err := f.anchorOrigin()
	if err != nil {
		return err
	}
	outboxNodes, err := originSnap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return err
	}
	if err = f.cgw.ConfirmRevertStakeIntent(hash, originHeight, outboxNodes); err != nil {
		return err
	}

	auxHeight, auxSnap, err := f.anchorAuxiliary()
	if err != nil {
		return err
	}
	inboxNodes, err := auxSnap.StorageProof(hash, proof.InboxIndex)
	if err != nil {
		return err
	}
	if err = f.gw.ProgressRevertStaking(hash, auxHeight, inboxNodes, message.StatusRevoked); err != nil {
		return err
	}
	log.Info("stake revert completed")
	return nil
}

// RelayRedeem confirms a declared redemption on the Gateway with a storage
// proof of the CoGateway's outbox entry.
func (f *Facilitator) RelayRedeem(hash [32]byte) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("relay_redeem", hash)
	msg, ok := f.cgw.Message(hash)
	if !ok {
		return message.ErrUnknownMessage
	}
	rec, err := f.cgw.OutboxRecord(hash)
	if err != nil {
		return err
	}
	height, snap, err := f.anchorAuxiliary()
	if err != nil {
		return err
	}
	nodes, err := snap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return err
	}
	if _, err = f.gw.ConfirmRedeemIntent(msg.Sender, msg.Nonce, rec.Beneficiary, rec.Amount, msg.GasPrice, msg.GasLimit, msg.HashLock, height, nodes); err != nil {
		return err
	}
	log.Info("redeem confirmed on origin", "blockHeight", height)
	return nil
}

// CompleteRedeem finishes a confirmed redemption on the fast path. Unstake
// first so the auxiliary side's burn can always fall back to a proof of the
// released state.
func (f *Facilitator) CompleteRedeem(hash [32]byte, unlockSecret [32]byte) (released *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("complete_redeem", hash)
	released, reward, err := f.gw.ProgressUnstake(f.worker, hash, unlockSecret)
	if err != nil {
		return nil, err
	}
	if _, err = f.cgw.ProgressRedeem(f.worker, hash, unlockSecret); err != nil {
		return nil, err
	}
	log.Info("redeem completed", "released", released.String(), "reward", reward.String())
	return released, nil
}

// CompleteRedeemWithProofs finishes a confirmed redemption without the
// secret.
func (f *Facilitator) CompleteRedeemWithProofs(hash [32]byte) (released *big.Int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("complete_redeem", hash)

	auxHeight, auxSnap, err := f.anchorAuxiliary()
	if err != nil {
		return nil, err
	}
	outboxNodes, err := auxSnap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return nil, err
	}
	released, reward, err := f.gw.ProgressUnstakeWithProof(f.worker, hash, auxHeight, outboxNodes, message.StatusDeclared)
	if err != nil {
		return nil, err
	}

	originHeight, originSnap, err := f.anchorOrigin()
	if err != nil {
		return nil, err
	}
	inboxNodes, err := originSnap.StorageProof(hash, proof.InboxIndex)
	if err != nil {
		return nil, err
	}
	if _, err = f.cgw.ProgressRedeemWithProof(f.worker, hash, originHeight, inboxNodes, message.StatusProgressed); err != nil {
		return nil, err
	}
	log.Info("redeem completed with proofs", "released", released.String(), "reward", reward.String())
	return released, nil
}

// RelayRedeemRevert carries an auxiliary-side redemption abort across.
func (f *Facilitator) RelayRedeemRevert(hash [32]byte) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.job("relay_redeem_revert", hash)

	auxHeight, auxSnap, err := f.anchorAuxiliary()
	if err != nil {
		return err
	}
	outboxNodes, err := auxSnap.StorageProof(hash, proof.OutboxIndex)
	if err != nil {
		return err
	}
	if err = f.gw.ConfirmRevertRedeemIntent(hash, auxHeight, outboxNodes); err != nil {
		return err
	}

	originHeight, originSnap, err := f.anchorOrigin()
	if err != nil {
		return err
	}
	inboxNodes, err := originSnap.StorageProof(hash, proof.InboxIndex)
	if err != nil {
		return err
	}
	if err = f.cgw.ProgressRevertRedeem(hash, originHeight, inboxNodes, message.StatusRevoked); err != nil {
		return err
	}
	log.Info("redeem revert completed")
	return nil
}
