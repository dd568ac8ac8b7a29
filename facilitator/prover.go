package facilitator

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"crossgate/core/message"
	"crossgate/core/proof"
)

// proofList collects trie nodes emitted by Trie.Prove.
type proofList [][]byte

func (p *proofList) Put(key []byte, value []byte) error {
	*p = append(*p, common.CopyBytes(value))
	return nil
}

func (p *proofList) Delete(key []byte) error {
	return errors.New("facilitator: proof list does not support deletes")
}

func (p proofList) encode() ([]byte, error) {
	if len(p) == 0 {
		return nil, proof.ErrEmptyProof
	}
	return rlp.EncodeToBytes([][]byte(p))
}

// Prover rebuilds one endpoint's message box as a Merkle-Patricia storage
// trie and wraps it in a single-account state trie, producing the proofs the
// counterpart endpoint verifies. It plays the role a chain's state trie plays
// in production: the facilitator snapshots it at anchor time.
type Prover struct {
	account [20]byte
}

// NewProver creates a prover for the endpoint stored at account.
func NewProver(account [20]byte) *Prover {
	return &Prover{account: account}
}

// Snapshot is a frozen view of an endpoint's state at one anchor height.
type Snapshot struct {
	// StateRoot is the root the counterpart chain anchors.
	StateRoot [32]byte
	// EncodedAccount is the RLP account leaf proven under StateRoot.
	EncodedAccount []byte
	// AccountProof is the RLP node list proving EncodedAccount.
	AccountProof []byte

	storage *gethtrie.Trie
}

func newTrie() *gethtrie.Trie {
	return gethtrie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

// Snapshot freezes the given box state into provable tries.
func (p *Prover) Snapshot(state *message.BoxState) (*Snapshot, error) {
	if state == nil {
		return nil, fmt.Errorf("facilitator: nil box state")
	}
	storage := newTrie()
	insert := func(hash [32]byte, boxIndex uint8, status message.Status) error {
		if status == message.StatusUndeclared {
			return nil
		}
		slot := proof.BoxSlot(hash, boxIndex)
		leaf, err := rlp.EncodeToBytes(uint8(status))
		if err != nil {
			return err
		}
		return storage.Update(ethcrypto.Keccak256(slot[:]), leaf)
	}
	for hash, status := range state.Outbox {
		if err := insert(hash, proof.OutboxIndex, status); err != nil {
			return nil, err
		}
	}
	for hash, status := range state.Inbox {
		if err := insert(hash, proof.InboxIndex, status); err != nil {
			return nil, err
		}
	}
	storageRoot := storage.Hash()

	account := gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     storageRoot,
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	}
	encodedAccount, err := rlp.EncodeToBytes(&account)
	if err != nil {
		return nil, err
	}

	accounts := newTrie()
	accountKey := ethcrypto.Keccak256(p.account[:])
	if err := accounts.Update(accountKey, encodedAccount); err != nil {
		return nil, err
	}
	stateRoot := accounts.Hash()

	var nodes proofList
	if err := accounts.Prove(accountKey, &nodes); err != nil {
		return nil, fmt.Errorf("facilitator: account proof: %w", err)
	}
	accountProof, err := nodes.encode()
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		StateRoot:      stateRoot,
		EncodedAccount: encodedAccount,
		AccountProof:   accountProof,
		storage:        storage,
	}, nil
}

// StorageProof proves the box entry for messageHash at boxIndex under this
// snapshot's storage root.
func (s *Snapshot) StorageProof(messageHash [32]byte, boxIndex uint8) ([]byte, error) {
	slot := proof.BoxSlot(messageHash, boxIndex)
	var nodes proofList
	if err := s.storage.Prove(ethcrypto.Keccak256(slot[:]), &nodes); err != nil {
		return nil, fmt.Errorf("facilitator: storage proof: %w", err)
	}
	return nodes.encode()
}
