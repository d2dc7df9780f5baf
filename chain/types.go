// Package chain describes the abstract EntryPoint-facing collaborator
// the validator drives: simulating validation, fetching traces and
// blocks, and answering deposit/balance/code queries. The core never
// talks to a chain itself — spec.md §6 models this entirely as an
// interface, with Client implementations (a scripted fake for tests,
// a JSON-RPC client for production) living outside the core.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

// ReturnInfo is the gas/validity-window portion of a simulateValidation
// return value.
type ReturnInfo struct {
	PreFund              *uint256.Int
	VerificationGasLimit *uint256.Int
	ValidAfter           *uint256.Int
	ValidUntil           *uint256.Int
	SigFailed            bool
}

// SimulateValidationResult is the decoded return of a successful
// EntryPoint simulateValidation call.
type SimulateValidationResult struct {
	ReturnInfo     ReturnInfo
	SenderInfo     uop.StakeInfo
	FactoryInfo    uop.StakeInfo
	PaymasterInfo  uop.StakeInfo
	AggregatorAddr *common.Address
	AggregatorInfo *uop.StakeInfo
}

// FailedOp is the EntryPoint's structured validation-revert reason,
// carried verbatim into ValidationError::Simulation(Validation{reason}).
type FailedOp struct {
	Reason string
}

func (e *FailedOp) Error() string { return "failed op: " + e.Reason }

// Block is the subset of latest-block data the validator needs to
// evaluate the max-fee sanity check and to stamp a verified_block onto
// the outcome.
type Block struct {
	Hash      common.Hash
	Number    uint64
	BaseFee   *uint256.Int
	Timestamp uint64
}

// Client is the chain-facing collaborator contract (spec.md §6).
// Implementations are expected to be internally concurrency-safe; the
// validator never serializes access to it.
type Client interface {
	SimulateValidation(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*SimulateValidationResult, error)
	SimulateValidationTrace(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) ([]byte, error)
	GetBlock(ctx context.Context) (*Block, error)
	EstimateGas(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*uint256.Int, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
	BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error)
	DepositOf(ctx context.Context, entryPoint, addr common.Address) (*uint256.Int, error)
	StakeOf(ctx context.Context, entryPoint, addr common.Address) (uop.StakeInfo, error)
}
