package message

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status tracks the lifecycle of a single cross-chain message inside a message
// box. The zero value is Undeclared, so absent entries read as Undeclared
// without an explicit write.
type Status uint8

const (
	StatusUndeclared Status = iota
	StatusDeclared
	StatusProgressed
	StatusDeclaredRevocation
	StatusRevoked
)

// Terminal reports whether the status is final. Terminal messages can be
// superseded by a new message from the same account.
func (s Status) Terminal() bool {
	return s == StatusProgressed || s == StatusRevoked
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return s <= StatusRevoked
}

func (s Status) String() string {
	switch s {
	case StatusUndeclared:
		return "undeclared"
	case StatusDeclared:
		return "declared"
	case StatusProgressed:
		return "progressed"
	case StatusDeclaredRevocation:
		return "declared_revocation"
	case StatusRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Message carries the cross-chain transfer metadata tracked by both endpoints.
// All fields are fixed at creation except GasConsumed, which is set once when
// the confirming side executes the intent.
type Message struct {
	IntentHash  [32]byte
	Nonce       uint64
	GasPrice    *big.Int
	GasLimit    *big.Int
	Sender      [20]byte
	HashLock    [32]byte
	GasConsumed *big.Int
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored instance.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.GasPrice = cloneBig(m.GasPrice)
	clone.GasLimit = cloneBig(m.GasLimit)
	clone.GasConsumed = cloneBig(m.GasConsumed)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// typeHash is the domain separator mixed into every message digest.
var typeHash = ethcrypto.Keccak256Hash([]byte(
	"Message(bytes32 intentHash,uint256 nonce,uint256 gasPrice,uint256 gasLimit,address sender,bytes32 hashLock)",
))

// HashParts computes the public message digest from the call arguments alone,
// so any observer can derive the handle used to track a transfer on both
// chains.
func HashParts(intentHash [32]byte, nonce uint64, gasPrice *big.Int) [32]byte {
	return ethcrypto.Keccak256Hash(
		typeHash[:],
		intentHash[:],
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32),
		common.LeftPadBytes(cloneBig(gasPrice).Bytes(), 32),
	)
}

// Hash returns the message digest, the primary key for all box and registry
// state.
func (m *Message) Hash() [32]byte {
	return HashParts(m.IntentHash, m.Nonce, m.GasPrice)
}

// HashSecret derives the hash lock for an unlock secret.
func HashSecret(secret [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(secret[:])
}

// VerifyUnlockSecret reports whether secret is the preimage of the message's
// hash lock.
func (m *Message) VerifyUnlockSecret(secret [32]byte) bool {
	return HashSecret(secret) == m.HashLock
}

// Sanitize validates the immutable message fields and normalises nil amounts.
func (m *Message) Sanitize() error {
	if m == nil {
		return fmt.Errorf("message: nil message")
	}
	if m.IntentHash == ([32]byte{}) {
		return fmt.Errorf("message: zero intent hash")
	}
	if m.HashLock == ([32]byte{}) {
		return fmt.Errorf("message: zero hash lock")
	}
	if m.Sender == ([20]byte{}) {
		return fmt.Errorf("message: zero sender")
	}
	m.GasPrice = cloneBig(m.GasPrice)
	m.GasLimit = cloneBig(m.GasLimit)
	m.GasConsumed = cloneBig(m.GasConsumed)
	if m.GasPrice.Sign() < 0 || m.GasLimit.Sign() < 0 {
		return fmt.Errorf("message: negative gas parameters")
	}
	return nil
}
