package gateway

import (
	"math/big"

	"crossgate/core/message"
)

// Op labels the protocol operations a gas meter charges for.
type Op string

const (
	OpConfirm  Op = "confirm"
	OpProgress Op = "progress"
)

// GasMeter reports the gas consumed by an operation on the executing chain.
// The protocol has no native metering, so deployments plug in whatever their
// runtime charges; tests substitute fixed meters for deterministic fees.
type GasMeter func(op Op) *big.Int

// FixedGasMeter returns a meter charging constant gas per operation kind.
func FixedGasMeter(confirm, progress uint64) GasMeter {
	return func(op Op) *big.Int {
		switch op {
		case OpConfirm:
			return new(big.Int).SetUint64(confirm)
		default:
			return new(big.Int).SetUint64(progress)
		}
	}
}

// DefaultGasMeter approximates the cost of proof verification and completion
// bookkeeping.
func DefaultGasMeter() GasMeter {
	return FixedGasMeter(120_000, 60_000)
}

// feeAmount computes the relayer compensation for completing a message:
// min(total gas consumed, gas limit) * gas price. The confirmation-side charge
// is already recorded on the message; progressGas is the completing call's
// own charge.
func feeAmount(msg *message.Message, progressGas *big.Int) *big.Int {
	total := new(big.Int).Set(msg.GasConsumed)
	if progressGas != nil {
		total.Add(total, progressGas)
	}
	if total.Cmp(msg.GasLimit) > 0 {
		total.Set(msg.GasLimit)
	}
	return total.Mul(total, msg.GasPrice)
}
