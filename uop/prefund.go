package uop

import "github.com/holiman/uint256"

// EstimatePreFund computes the worst-case ETH the UO can consume from
// its own declared gas fields, for use before simulation has run (the
// Paymaster sanity check needs a pre_fund figure before step 3 of the
// validator sequence calls simulate_validation). Verification gas is
// charged twice when a paymaster is present, since the EntryPoint runs
// both the account's and the paymaster's validateUserOp.
func (u *UserOperation) EstimatePreFund() *uint256.Int {
	verification := u.VerificationGasLimit
	if verification == nil {
		verification = uint256.NewInt(0)
	}
	callGas := u.CallGasLimit
	if callGas == nil {
		callGas = uint256.NewInt(0)
	}
	preVerification := u.PreVerificationGas
	if preVerification == nil {
		preVerification = uint256.NewInt(0)
	}
	maxFee := u.MaxFeePerGas
	if maxFee == nil {
		maxFee = uint256.NewInt(0)
	}

	totalGas := new(uint256.Int).Set(verification)
	if u.HasPaymaster() {
		totalGas.Add(totalGas, verification)
	}
	totalGas.Add(totalGas, callGas)
	totalGas.Add(totalGas, preVerification)

	return new(uint256.Int).Mul(totalGas, maxFee)
}
