package proof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
)

// Message box indexes used to derive storage slots. Outbox entries live under
// index 0 and inbox entries under index 1 on every endpoint, so a prover and a
// verifier on different chains derive the same path for the same entry.
const (
	OutboxIndex uint8 = 0
	InboxIndex  uint8 = 1
)

var (
	ErrEmptyProof      = errors.New("proof: empty proof data")
	ErrZeroRoot        = errors.New("proof: zero trie root")
	ErrZeroHash        = errors.New("proof: zero message hash")
	ErrAccountMismatch = errors.New("proof: proven account does not match supplied encoding")
	ErrStatusMismatch  = errors.New("proof: proven status does not match claimed status")
	ErrMissingEntry    = errors.New("proof: no entry proven at path")
)

// BoxSlot derives the storage slot of a message box entry: the keccak256 of
// the message hash concatenated with the box index byte.
func BoxSlot(messageHash [32]byte, boxIndex uint8) [32]byte {
	return ethcrypto.Keccak256Hash(messageHash[:], []byte{boxIndex})
}

// nodeSet decodes an RLP-encoded list of trie nodes into a lookup database
// keyed by node hash, the shape trie.VerifyProof expects.
func nodeSet(rlpParentNodes []byte) (*memorydb.Database, error) {
	if len(rlpParentNodes) == 0 {
		return nil, ErrEmptyProof
	}
	var nodes [][]byte
	if err := rlp.DecodeBytes(rlpParentNodes, &nodes); err != nil {
		return nil, fmt.Errorf("proof: decode parent nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ErrEmptyProof
	}
	db := memorydb.New()
	for _, node := range nodes {
		if err := db.Put(ethcrypto.Keccak256(node), node); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// VerifyAccount proves that encodedAccount is the account node stored for
// address under trustedStateRoot and returns the account's storage root. The
// proven leaf must match encodedAccount byte for byte, which pins every
// account field, not just the root.
func VerifyAccount(encodedAccount []byte, rlpParentNodes []byte, address [20]byte, trustedStateRoot [32]byte) ([32]byte, error) {
	if len(encodedAccount) == 0 {
		return [32]byte{}, fmt.Errorf("proof: empty account encoding")
	}
	if trustedStateRoot == ([32]byte{}) {
		return [32]byte{}, ErrZeroRoot
	}
	db, err := nodeSet(rlpParentNodes)
	if err != nil {
		return [32]byte{}, err
	}
	key := ethcrypto.Keccak256(address[:])
	value, err := gethtrie.VerifyProof(common.Hash(trustedStateRoot), key, db)
	if err != nil {
		return [32]byte{}, fmt.Errorf("proof: account proof: %w", err)
	}
	if len(value) == 0 {
		return [32]byte{}, ErrMissingEntry
	}
	if !bytes.Equal(value, encodedAccount) {
		return [32]byte{}, ErrAccountMismatch
	}
	var account gethtypes.StateAccount
	if err := rlp.DecodeBytes(encodedAccount, &account); err != nil {
		return [32]byte{}, fmt.Errorf("proof: decode account: %w", err)
	}
	return account.Root, nil
}

// VerifyBoxStatus proves that the remote endpoint's message box holds the
// claimed status for messageHash under trustedStorageRoot. boxIndex selects
// the remote outbox or inbox.
func VerifyBoxStatus(trustedStorageRoot [32]byte, messageHash [32]byte, boxIndex uint8, claimed uint8, rlpParentNodes []byte) error {
	if trustedStorageRoot == ([32]byte{}) {
		return ErrZeroRoot
	}
	if messageHash == ([32]byte{}) {
		return ErrZeroHash
	}
	db, err := nodeSet(rlpParentNodes)
	if err != nil {
		return err
	}
	slot := BoxSlot(messageHash, boxIndex)
	key := ethcrypto.Keccak256(slot[:])
	value, err := gethtrie.VerifyProof(common.Hash(trustedStorageRoot), key, db)
	if err != nil {
		return fmt.Errorf("proof: storage proof: %w", err)
	}
	if len(value) == 0 {
		return ErrMissingEntry
	}
	var got uint8
	if err := rlp.DecodeBytes(value, &got); err != nil {
		return fmt.Errorf("proof: decode status leaf: %w", err)
	}
	if got != claimed {
		return fmt.Errorf("%w: proven %d, claimed %d", ErrStatusMismatch, got, claimed)
	}
	return nil
}
