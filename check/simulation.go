package check

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/chain"
)

// SimulationInput is the read-only view a simulation check operates
// over: the EntryPoint's simulateValidation result plus the current
// time and the configured validity-window slack.
type SimulationInput struct {
	Result                *chain.SimulateValidationResult
	Now                   uint64
	MinValidityWindowSecs uint64
}

// SimulationCheck is one rule of the simulation phase.
type SimulationCheck func(ctx context.Context, in *SimulationInput) error

// ComposeSimulation folds checks into a single check, short-circuiting
// on the first error, in declaration order.
func ComposeSimulation(checks ...SimulationCheck) SimulationCheck {
	return func(ctx context.Context, in *SimulationInput) error {
		for _, c := range checks {
			if err := c(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}
}

// DefaultSimulationChecks is the canonical ordering of the two
// simulation rules (spec.md §4.3).
func DefaultSimulationChecks() []SimulationCheck {
	return []SimulationCheck{
		CheckSignature,
		CheckTimestamp,
	}
}

// CheckSignature enforces rule 8.
func CheckSignature(_ context.Context, in *SimulationInput) error {
	if in.Result.ReturnInfo.SigFailed {
		return &SimulationError{Reason: SimReasonSignature}
	}
	return nil
}

// CheckTimestamp enforces rule 9: the UO must remain valid for at
// least MinValidityWindowSecs beyond now.
func CheckTimestamp(_ context.Context, in *SimulationInput) error {
	validUntil := in.Result.ReturnInfo.ValidUntil
	if validUntil == nil || validUntil.IsZero() {
		return nil
	}
	window := uint256.NewInt(in.MinValidityWindowSecs)
	if validUntil.Cmp(window) <= 0 {
		return &SimulationError{Reason: SimReasonTimestamp}
	}
	deadline := new(uint256.Int).Sub(validUntil, window)
	now := uint256.NewInt(in.Now)
	if now.Cmp(deadline) >= 0 {
		return &SimulationError{Reason: SimReasonTimestamp}
	}
	return nil
}
