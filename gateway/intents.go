package gateway

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Intent type hashes separate the digest domains of the three message kinds.
var (
	stakeIntentTypeHash = ethcrypto.Keccak256Hash([]byte(
		"StakeIntent(uint256 amount,address beneficiary,address staker,address gateway,address cogateway)",
	))
	redeemIntentTypeHash = ethcrypto.Keccak256Hash([]byte(
		"RedeemIntent(uint256 amount,address beneficiary,address redeemer,address cogateway,address gateway)",
	))
	linkIntentTypeHash = ethcrypto.Keccak256Hash([]byte(
		"LinkIntent(address gateway,address cogateway,uint256 bounty,string symbol,string name)",
	))
)

func u256(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// StakeIntentHash binds a stake to its amount, parties and endpoint pair. Both
// sides derive it independently from public call arguments.
func StakeIntentHash(amount *big.Int, beneficiary, staker, origin, auxiliary [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(
		stakeIntentTypeHash[:], u256(amount), beneficiary[:], staker[:], origin[:], auxiliary[:],
	)
}

// RedeemIntentHash binds a redemption to its amount, parties and endpoint
// pair.
func RedeemIntentHash(amount *big.Int, beneficiary, redeemer, auxiliary, origin [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(
		redeemIntentTypeHash[:], u256(amount), beneficiary[:], redeemer[:], auxiliary[:], origin[:],
	)
}

// LinkIntentHash keys the one-time bootstrap handshake off the endpoint
// addresses, the agreed bounty and the utility token metadata rather than a
// transfer amount.
func LinkIntentHash(origin, auxiliary [20]byte, bounty *big.Int, symbol, name string) [32]byte {
	return ethcrypto.Keccak256Hash(
		linkIntentTypeHash[:], origin[:], auxiliary[:], u256(bounty), []byte(symbol), []byte(name),
	)
}
