package facilitator_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"crossgate/core/anchor"
	"crossgate/core/message"
	"crossgate/core/proof"
	"crossgate/core/token"
	"crossgate/facilitator"
	"crossgate/gateway"
	"crossgate/storage"
)

var (
	gwAddr  = [20]byte{0xa1}
	cgwAddr = [20]byte{0xb2}
	staker  = [20]byte{0x11}
	benef   = [20]byte{0x22}
	worker  = [20]byte{0x33}

	gasPrice = big.NewInt(1)
	gasLimit = big.NewInt(1_000_000)

	linkSecret  = [32]byte{0x01}
	stakeSecret = [32]byte{0x02}
)

type harness struct {
	gw           *gateway.Gateway
	cgw          *gateway.CoGateway
	fac          *facilitator.Facilitator
	origin       *token.Ledger
	aux          *token.Ledger
	auxAnchor    *anchor.RootRegistry
	originAnchor *anchor.RootRegistry
}

func newHarness(t *testing.T, bounty int64) *harness {
	t.Helper()
	originAnchor := anchor.NewRootRegistry()
	auxAnchor := anchor.NewRootRegistry()
	origin := token.NewLedger("VT")
	aux := token.NewLedger("UT")

	gw, err := gateway.NewGateway(gateway.GatewayConfig{
		Config: gateway.Config{
			Address:  gwAddr,
			Remote:   cgwAddr,
			Anchor:   auxAnchor,
			Store:    storage.NewKV(storage.NewMemDB()),
			Bounty:   big.NewInt(bounty),
			GasMeter: gateway.FixedGasMeter(10, 5),
		},
		Token: origin,
	})
	require.NoError(t, err)

	cgw, err := gateway.NewCoGateway(gateway.CoGatewayConfig{
		Config: gateway.Config{
			Address:  cgwAddr,
			Remote:   gwAddr,
			Anchor:   originAnchor,
			Store:    storage.NewKV(storage.NewMemDB()),
			Bounty:   big.NewInt(bounty),
			GasMeter: gateway.FixedGasMeter(10, 5),
		},
		Token: aux,
	})
	require.NoError(t, err)

	fac, err := facilitator.New(facilitator.Config{
		Gateway:         gw,
		CoGateway:       cgw,
		OriginAnchor:    originAnchor,
		AuxiliaryAnchor: auxAnchor,
		Worker:          worker,
	})
	require.NoError(t, err)

	_, err = fac.EstablishLink([20]byte{0x0f}, gasPrice, gasLimit, linkSecret, "UT", "Utility Token")
	require.NoError(t, err)

	require.NoError(t, origin.Mint(staker, big.NewInt(10_000)))
	return &harness{gw: gw, cgw: cgw, fac: fac, origin: origin, aux: aux, auxAnchor: auxAnchor, originAnchor: originAnchor}
}

func (h *harness) stake(t *testing.T, amount int64, nonce uint64) [32]byte {
	t.Helper()
	hash, err := h.gw.Stake(staker, big.NewInt(amount), benef, gasPrice, gasLimit, nonce, message.HashSecret(stakeSecret))
	require.NoError(t, err)
	return hash
}

func TestProverSnapshotRoundTrip(t *testing.T) {
	messageHash := [32]byte{0x42}
	state := &message.BoxState{
		Outbox: map[[32]byte]message.Status{
			messageHash:  message.StatusDeclared,
			{0x43}:       message.StatusProgressed,
			{0x44}:       message.StatusUndeclared,
		},
		Inbox: map[[32]byte]message.Status{
			{0x45}: message.StatusRevoked,
		},
	}

	account := [20]byte{0xaa}
	snap, err := facilitator.NewProver(account).Snapshot(state)
	require.NoError(t, err)

	storageRoot, err := proof.VerifyAccount(snap.EncodedAccount, snap.AccountProof, account, snap.StateRoot)
	require.NoError(t, err)

	nodes, err := snap.StorageProof(messageHash, proof.OutboxIndex)
	require.NoError(t, err)
	require.NoError(t, proof.VerifyBoxStatus(storageRoot, messageHash, proof.OutboxIndex, uint8(message.StatusDeclared), nodes))

	nodes, err = snap.StorageProof([32]byte{0x45}, proof.InboxIndex)
	require.NoError(t, err)
	require.NoError(t, proof.VerifyBoxStatus(storageRoot, [32]byte{0x45}, proof.InboxIndex, uint8(message.StatusRevoked), nodes))
}

func TestProverSkipsUndeclaredEntries(t *testing.T) {
	undeclared := [32]byte{0x44}
	state := &message.BoxState{
		Outbox: map[[32]byte]message.Status{
			{0x43}:     message.StatusDeclared,
			undeclared: message.StatusUndeclared,
		},
		Inbox: map[[32]byte]message.Status{},
	}

	account := [20]byte{0xaa}
	snap, err := facilitator.NewProver(account).Snapshot(state)
	require.NoError(t, err)
	storageRoot, err := proof.VerifyAccount(snap.EncodedAccount, snap.AccountProof, account, snap.StateRoot)
	require.NoError(t, err)

	nodes, err := snap.StorageProof(undeclared, proof.OutboxIndex)
	require.NoError(t, err)
	err = proof.VerifyBoxStatus(storageRoot, undeclared, proof.OutboxIndex, uint8(message.StatusDeclared), nodes)
	require.ErrorIs(t, err, proof.ErrMissingEntry)
}

func TestFullTransferCycle(t *testing.T) {
	h := newHarness(t, 50)

	// Origin to auxiliary.
	stakeHash := h.stake(t, 1000, 0)
	require.NoError(t, h.fac.RelayStake(stakeHash))
	minted, err := h.fac.CompleteStake(stakeHash, stakeSecret)
	require.NoError(t, err)
	require.Equal(t, int64(985), minted.Int64())

	// Auxiliary back to origin: beneficiary redeems what was minted.
	redeemSecret := [32]byte{0x03}
	require.NoError(t, h.aux.Mint(benef, big.NewInt(50))) // cover the bounty
	redeemHash, err := h.cgw.Redeem(benef, big.NewInt(900), staker, gasPrice, gasLimit, 0, message.HashSecret(redeemSecret))
	require.NoError(t, err)
	require.NoError(t, h.fac.RelayRedeem(redeemHash))
	released, err := h.fac.CompleteRedeem(redeemHash, redeemSecret)
	require.NoError(t, err)
	require.Equal(t, int64(885), released.Int64())

	// Escrow conservation: what the vault lost equals released plus reward,
	// and the burn removed the full redeemed amount from circulation.
	require.Equal(t, int64(100), h.origin.BalanceOf(h.gw.StakeVault()).Int64())
	require.Equal(t, int64(150), h.aux.TotalSupply().Int64())
}

func TestRevertBeatsIdleCounterpart(t *testing.T) {
	h := newHarness(t, 40)

	hash := h.stake(t, 1000, 0)
	require.NoError(t, h.fac.RelayStake(hash))

	require.NoError(t, h.gw.RevertStaking(staker, hash))
	require.NoError(t, h.fac.RelayStakeRevert(hash))

	require.Equal(t, message.StatusRevoked, h.gw.OutboxStatus(hash))
	require.Equal(t, message.StatusRevoked, h.cgw.InboxStatus(hash))
	require.Equal(t, int64(0), h.aux.TotalSupply().Int64())
}

func TestProvenCommitmentOutranksRevert(t *testing.T) {
	h := newHarness(t, 40)

	hash := h.stake(t, 1000, 0)
	require.NoError(t, h.fac.RelayStake(hash))

	// The staker declares a revert while the facilitator completes the mint
	// with the secret.
	require.NoError(t, h.gw.RevertStaking(staker, hash))
	_, _, err := h.cgw.ProgressMinting(worker, hash, stakeSecret)
	require.NoError(t, err)

	// The revert can no longer be confirmed on the auxiliary side.
	require.ErrorIs(t, h.fac.RelayStakeRevert(hash), message.ErrInvalidTransition)

	// The proven mint completes the origin side instead; the revert loses
	// and the penalty stays with the endpoint.
	snap, err := facilitator.NewProver(cgwAddr).Snapshot(h.cgw.BoxState())
	require.NoError(t, err)
	require.NoError(t, h.auxAnchor.AnchorStateRoot(500, snap.StateRoot))
	_, err = h.gw.ProveGateway(500, snap.EncodedAccount, snap.AccountProof)
	require.NoError(t, err)
	nodes, err := snap.StorageProof(hash, proof.InboxIndex)
	require.NoError(t, err)
	_, err = h.gw.ProgressStakingWithProof(worker, hash, 500, nodes, message.StatusProgressed)
	require.NoError(t, err)

	require.Equal(t, message.StatusProgressed, h.gw.OutboxStatus(hash))
	require.Equal(t, int64(1000), h.origin.BalanceOf(h.gw.StakeVault()).Int64())
	// Penalty: 40 * 3 / 2.
	require.Equal(t, int64(60), h.origin.BalanceOf(gwAddr).Int64())
}

func TestConfirmedRevocationBlocksMinting(t *testing.T) {
	h := newHarness(t, 40)

	hash := h.stake(t, 1000, 0)
	require.NoError(t, h.fac.RelayStake(hash))
	require.NoError(t, h.gw.RevertStaking(staker, hash))
	require.NoError(t, h.fac.RelayStakeRevert(hash))
	require.Equal(t, message.StatusRevoked, h.cgw.InboxStatus(hash))

	// The secret can no longer unlock the revoked inbox entry.
	_, _, err := h.cgw.ProgressMinting(worker, hash, stakeSecret)
	require.ErrorIs(t, err, message.ErrInvalidTransition)

	// Neither can a fresh proof of the origin outbox.
	snap, err := facilitator.NewProver(gwAddr).Snapshot(h.gw.BoxState())
	require.NoError(t, err)
	require.NoError(t, h.originAnchor.AnchorStateRoot(900, snap.StateRoot))
	_, err = h.cgw.ProveGateway(900, snap.EncodedAccount, snap.AccountProof)
	require.NoError(t, err)
	nodes, err := snap.StorageProof(hash, proof.OutboxIndex)
	require.NoError(t, err)
	_, _, err = h.cgw.ProgressMintingWithProof(worker, hash, 900, nodes, message.StatusDeclared)
	require.ErrorIs(t, err, message.ErrInvalidTransition)

	require.Equal(t, int64(0), h.aux.TotalSupply().Int64())
}

func TestReproofSameHeightIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)

	snap, err := facilitator.NewProver(gwAddr).Snapshot(h.gw.BoxState())
	require.NoError(t, err)
	require.NoError(t, h.originAnchor.AnchorStateRoot(700, snap.StateRoot))

	first, err := h.cgw.ProveGateway(700, snap.EncodedAccount, snap.AccountProof)
	require.NoError(t, err)
	second, err := h.cgw.ProveGateway(700, snap.EncodedAccount, snap.AccountProof)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestProveGatewayUnanchoredHeight(t *testing.T) {
	h := newHarness(t, 0)

	snap, err := facilitator.NewProver(gwAddr).Snapshot(h.gw.BoxState())
	require.NoError(t, err)
	_, err = h.cgw.ProveGateway(12345, snap.EncodedAccount, snap.AccountProof)
	require.ErrorIs(t, err, gateway.ErrNoStateRoot)
}
