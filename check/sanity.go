package check

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
)

// DepositReader is the narrow slice of chain.Client the paymaster
// check needs. It is declared locally so the sanity phase depends on
// this one call rather than on the whole chain.Client interface.
type DepositReader interface {
	DepositOf(ctx context.Context, entryPoint, addr common.Address) (*uint256.Int, error)
}

// SanityInput is the read-only view a sanity check operates over.
// Every field except Deposits is precomputed by the validator from the
// mempool, reputation store, and chain client; the one chain query a
// check makes itself is CheckPaymaster's deposit lookup through
// Deposits.
type SanityInput struct {
	UO         *uop.UserOperation
	EntryPoint common.Address

	SenderHasCode    bool
	PaymasterHasCode bool

	BaseFee              *uint256.Int
	MinPriorityFeePerGas *uint256.Int
	MaxVerificationGas   *uint256.Int
	GasCallStipend       *uint256.Int
	MaxUOsPerSender      int

	SenderInfo    uop.StakeInfo
	FactoryInfo   uop.StakeInfo
	PaymasterInfo uop.StakeInfo
	MinStake      *uint256.Int
	MinUnstakeDelaySec *uint256.Int

	SenderReputation    reputation.Status
	FactoryReputation   reputation.Status
	PaymasterReputation reputation.Status

	// SenderUOCount is how many entries this sender currently has in
	// the pool, used by the per-entity count cap.
	SenderUOCount int

	Deposits DepositReader
}

// SanityCheck is one rule of the sanity phase.
type SanityCheck func(ctx context.Context, in *SanityInput) error

// ComposeSanity folds checks into a single check, short-circuiting on
// the first error, in declaration order.
func ComposeSanity(checks ...SanityCheck) SanityCheck {
	return func(ctx context.Context, in *SanityInput) error {
		for _, c := range checks {
			if err := c(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}
}

// DefaultSanityChecks is the canonical ordering of the seven sanity
// rules (spec.md §4.3).
func DefaultSanityChecks() []SanityCheck {
	return []SanityCheck{
		CheckSender,
		CheckVerificationGas,
		CheckCallGas,
		CheckMaxFee,
		CheckPaymaster,
		CheckEntities,
		CheckUnstakedEntities,
	}
}

// CheckSender enforces rule 1: exactly one of (sender has deployed
// code, initCode is non-empty) may hold.
func CheckSender(_ context.Context, in *SanityInput) error {
	hasInitCode := in.UO.HasInitCode()
	if in.SenderHasCode == hasInitCode {
		return &SanityError{Reason: SanityReasonSenderVerification, Entity: uop.EntitySender.String()}
	}
	return nil
}

// CheckVerificationGas enforces rule 2.
func CheckVerificationGas(_ context.Context, in *SanityInput) error {
	if in.UO.VerificationGasLimit == nil || in.UO.VerificationGasLimit.Cmp(in.MaxVerificationGas) > 0 {
		return &SanityError{Reason: SanityReasonVerificationGas}
	}
	overhead := CalculateOverhead(in.UO)
	if in.UO.PreVerificationGas == nil || in.UO.PreVerificationGas.Cmp(overhead) < 0 {
		return &SanityError{Reason: SanityReasonVerificationGas}
	}
	return nil
}

// CheckCallGas enforces rule 3.
func CheckCallGas(_ context.Context, in *SanityInput) error {
	if in.UO.CallGasLimit == nil || in.UO.CallGasLimit.Cmp(in.GasCallStipend) < 0 {
		return &SanityError{Reason: SanityReasonCallGas}
	}
	return nil
}

// CheckMaxFee enforces rule 4.
func CheckMaxFee(_ context.Context, in *SanityInput) error {
	maxFee := in.UO.MaxFeePerGas
	priority := in.UO.MaxPriorityFeePerGas
	if maxFee == nil || priority == nil {
		return &SanityError{Reason: SanityReasonMaxFee}
	}
	if maxFee.Cmp(priority) < 0 {
		return &SanityError{Reason: SanityReasonMaxFee}
	}
	if priority.Cmp(in.MinPriorityFeePerGas) < 0 {
		return &SanityError{Reason: SanityReasonMaxFee}
	}
	if maxFee.Cmp(in.BaseFee) < 0 {
		return &SanityError{Reason: SanityReasonMaxFee}
	}
	return nil
}

// CheckPaymaster enforces rule 5. It is a no-op when the UO carries no
// paymaster.
func CheckPaymaster(ctx context.Context, in *SanityInput) error {
	paymaster, ok := in.UO.Paymaster()
	if !ok {
		return nil
	}
	if !in.PaymasterHasCode {
		return &SanityError{Reason: SanityReasonPaymaster, Entity: uop.EntityPaymaster.String()}
	}
	if in.PaymasterReputation == reputation.Banned {
		return &SanityError{Reason: SanityReasonPaymaster, Entity: uop.EntityPaymaster.String()}
	}
	deposit, err := in.Deposits.DepositOf(ctx, in.EntryPoint, paymaster)
	if err != nil {
		return &SanityError{Reason: SanityReasonMiddlewareError}
	}
	preFund := in.UO.EstimatePreFund()
	if deposit == nil || deposit.Cmp(preFund) <= 0 {
		return &SanityError{Reason: SanityReasonPaymaster, Entity: uop.EntityPaymaster.String()}
	}
	return nil
}

// CheckEntities enforces rule 6.
func CheckEntities(_ context.Context, in *SanityInput) error {
	if in.SenderReputation == reputation.Banned {
		return &SanityError{Reason: SanityReasonEntityBanned, Entity: uop.EntitySender.String()}
	}
	if _, ok := in.UO.Factory(); ok && in.FactoryReputation == reputation.Banned {
		return &SanityError{Reason: SanityReasonEntityBanned, Entity: uop.EntityFactory.String()}
	}
	if _, ok := in.UO.Paymaster(); ok && in.PaymasterReputation == reputation.Banned {
		return &SanityError{Reason: SanityReasonEntityBanned, Entity: uop.EntityPaymaster.String()}
	}
	return nil
}

// unstakedSenderCap maps a reputation status to the maximum number of
// concurrent pool entries an unstaked sender may hold.
func unstakedSenderCap(status reputation.Status, maxUOsPerSender int) int {
	switch status {
	case reputation.OK:
		return maxUOsPerSender
	case reputation.Throttled:
		return 1
	default: // Banned
		return 0
	}
}

// CheckUnstakedEntities enforces rule 7.
func CheckUnstakedEntities(_ context.Context, in *SanityInput) error {
	if in.SenderInfo.IsStaked(in.MinStake, in.MinUnstakeDelaySec) {
		if in.SenderUOCount >= in.MaxUOsPerSender {
			return &SanityError{Reason: SanityReasonSenderOverLimit, Entity: uop.EntitySender.String()}
		}
		return nil
	}
	cap := unstakedSenderCap(in.SenderReputation, in.MaxUOsPerSender)
	if in.SenderUOCount >= cap {
		return &SanityError{Reason: SanityReasonSenderOverLimit, Entity: uop.EntitySender.String()}
	}
	return nil
}

// CalculateOverhead estimates the bundler-side pre-verification gas
// overhead for a UO: a fixed transaction cost plus the calldata
// byte/word costs the EntryPoint itself does not charge for.
func CalculateOverhead(u *uop.UserOperation) *uint256.Int {
	const (
		fixed         = 21000
		perZeroByte   = 4
		perNonZeroByte = 16
		perWord       = 4
	)
	var zero, nonZero uint64
	for _, b := range u.CallData {
		if b == 0 {
			zero++
		} else {
			nonZero++
		}
	}
	words := uint64(len(u.CallData)+31) / 32
	total := uint64(fixed) + zero*perZeroByte + nonZero*perNonZeroByte + words*perWord
	return uint256.NewInt(total)
}
