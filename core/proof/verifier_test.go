package proof

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type proofCollector [][]byte

func (p *proofCollector) Put(key []byte, value []byte) error {
	*p = append(*p, common.CopyBytes(value))
	return nil
}

func (p *proofCollector) Delete(key []byte) error { return nil }

func emptyTrie() *gethtrie.Trie {
	return gethtrie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

func proveKey(t *testing.T, tr *gethtrie.Trie, key []byte) []byte {
	t.Helper()
	var nodes proofCollector
	require.NoError(t, tr.Prove(key, &nodes))
	encoded, err := rlp.EncodeToBytes([][]byte(nodes))
	require.NoError(t, err)
	return encoded
}

func buildStorageTrie(t *testing.T, messageHash [32]byte, boxIndex uint8, status uint8) (*gethtrie.Trie, [32]byte) {
	t.Helper()
	tr := emptyTrie()
	slot := BoxSlot(messageHash, boxIndex)
	leaf, err := rlp.EncodeToBytes(status)
	require.NoError(t, err)
	require.NoError(t, tr.Update(ethcrypto.Keccak256(slot[:]), leaf))
	return tr, tr.Hash()
}

func TestVerifyBoxStatus(t *testing.T) {
	messageHash := [32]byte{0x42}
	tr, root := buildStorageTrie(t, messageHash, OutboxIndex, 1)

	slot := BoxSlot(messageHash, OutboxIndex)
	nodes := proveKey(t, tr, ethcrypto.Keccak256(slot[:]))

	require.NoError(t, VerifyBoxStatus(root, messageHash, OutboxIndex, 1, nodes))
}

func TestVerifyBoxStatusRejectsWrongClaim(t *testing.T) {
	messageHash := [32]byte{0x42}
	tr, root := buildStorageTrie(t, messageHash, OutboxIndex, 1)
	slot := BoxSlot(messageHash, OutboxIndex)
	nodes := proveKey(t, tr, ethcrypto.Keccak256(slot[:]))

	err := VerifyBoxStatus(root, messageHash, OutboxIndex, 2, nodes)
	require.ErrorIs(t, err, ErrStatusMismatch)
}

func TestVerifyBoxStatusRejectsWrongBoxIndex(t *testing.T) {
	messageHash := [32]byte{0x42}
	tr, root := buildStorageTrie(t, messageHash, OutboxIndex, 1)
	slot := BoxSlot(messageHash, OutboxIndex)
	nodes := proveKey(t, tr, ethcrypto.Keccak256(slot[:]))

	// Same proof nodes, inbox path: nothing is stored there.
	err := VerifyBoxStatus(root, messageHash, InboxIndex, 1, nodes)
	require.Error(t, err)
}

func TestVerifyBoxStatusRejectsTamperedRoot(t *testing.T) {
	messageHash := [32]byte{0x42}
	tr, _ := buildStorageTrie(t, messageHash, OutboxIndex, 1)
	slot := BoxSlot(messageHash, OutboxIndex)
	nodes := proveKey(t, tr, ethcrypto.Keccak256(slot[:]))

	err := VerifyBoxStatus([32]byte{0xff}, messageHash, OutboxIndex, 1, nodes)
	require.Error(t, err)
}

func TestVerifyBoxStatusInputValidation(t *testing.T) {
	require.ErrorIs(t, VerifyBoxStatus([32]byte{}, [32]byte{0x01}, OutboxIndex, 1, []byte{0x01}), ErrZeroRoot)
	require.ErrorIs(t, VerifyBoxStatus([32]byte{0x01}, [32]byte{}, OutboxIndex, 1, []byte{0x01}), ErrZeroHash)
	require.ErrorIs(t, VerifyBoxStatus([32]byte{0x01}, [32]byte{0x01}, OutboxIndex, 1, nil), ErrEmptyProof)
}

func TestVerifyAccount(t *testing.T) {
	address := [20]byte{0xaa}
	storageRoot := common.Hash{0x11}
	account := gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     storageRoot,
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	}
	encoded, err := rlp.EncodeToBytes(&account)
	require.NoError(t, err)

	tr := emptyTrie()
	key := ethcrypto.Keccak256(address[:])
	require.NoError(t, tr.Update(key, encoded))
	stateRoot := tr.Hash()
	nodes := proveKey(t, tr, key)

	root, err := VerifyAccount(encoded, nodes, address, stateRoot)
	require.NoError(t, err)
	require.Equal(t, [32]byte(storageRoot), root)
}

func TestVerifyAccountRejectsMismatchedEncoding(t *testing.T) {
	address := [20]byte{0xaa}
	account := gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     common.Hash{0x11},
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	}
	encoded, err := rlp.EncodeToBytes(&account)
	require.NoError(t, err)

	tr := emptyTrie()
	key := ethcrypto.Keccak256(address[:])
	require.NoError(t, tr.Update(key, encoded))
	stateRoot := tr.Hash()
	nodes := proveKey(t, tr, key)

	// Claim a different account encoding than the proven leaf.
	account.Root = common.Hash{0x22}
	forged, err := rlp.EncodeToBytes(&account)
	require.NoError(t, err)

	_, err = VerifyAccount(forged, nodes, address, stateRoot)
	require.ErrorIs(t, err, ErrAccountMismatch)
}

func TestVerifyAccountMissingEntry(t *testing.T) {
	address := [20]byte{0xaa}
	other := [20]byte{0xbb}
	account := gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     common.Hash{0x11},
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	}
	encoded, err := rlp.EncodeToBytes(&account)
	require.NoError(t, err)

	tr := emptyTrie()
	require.NoError(t, tr.Update(ethcrypto.Keccak256(address[:]), encoded))
	stateRoot := tr.Hash()
	nodes := proveKey(t, tr, ethcrypto.Keccak256(other[:]))

	_, err = VerifyAccount(encoded, nodes, other, stateRoot)
	require.Error(t, err)
}

func TestBoxSlotSeparatesBoxes(t *testing.T) {
	hash := [32]byte{0x01}
	require.NotEqual(t, BoxSlot(hash, OutboxIndex), BoxSlot(hash, InboxIndex))
}
