package bundler

import "math/big"

// GasEstimation is the gas-limit triple returned by a bundler simulation.
// Ephemeral: it must be recomputed whenever callData, initCode or
// paymasterAndData changes, since each affects verification cost.
type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}
