package validator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/chain"
	"github.com/t402-io/aa-mempool/check"
	"github.com/t402-io/aa-mempool/mempool"
	"github.com/t402-io/aa-mempool/metrics"
	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/trace"
	"github.com/t402-io/aa-mempool/uop"
)

// Config carries the tunable thresholds the check set and the
// validator itself need (spec.md §4.3 defaults, loaded from the
// config package in production).
type Config struct {
	MaxVerificationGas         *uint256.Int
	MinPriorityFeePerGas       *uint256.Int
	GasCallStipend             *uint256.Int
	MaxUOsPerSender            int
	MinStake                   *uint256.Int
	MinUnstakeDelaySec         *uint256.Int
	MinValidityWindowSecs      uint64
	MaxValidationGas           *uint256.Int
	PermittedExternalContracts map[common.Address]struct{}
}

// Validator composes the three check phases into the validate()
// operation and drives the chain client through the sequence
// spec.md §4.4 describes.
type Validator struct {
	Chain chain.Client
	Config Config

	SanityCheck     check.SanityCheck
	SimulationCheck check.SimulationCheck
	TraceCheck      check.TraceCheck

	// Now is the injected wall clock, overridable in tests.
	Now func() time.Time

	// Metrics records per-phase validation duration, if set. Left nil
	// by New/tests that don't care about instrumentation.
	Metrics *metrics.Metrics
}

// observePhase records how long a validation phase took, a no-op when
// no Metrics is wired.
func (v *Validator) observePhase(phase string, start time.Time) {
	if v.Metrics != nil {
		v.Metrics.ObserveValidationPhase(phase, start)
	}
}

// New builds a Validator with the canonical check composites
// (spec.md §4.3's declared ordering).
func New(client chain.Client, cfg Config) *Validator {
	return &Validator{
		Chain:           client,
		Config:          cfg,
		SanityCheck:     check.ComposeSanity(check.DefaultSanityChecks()...),
		SimulationCheck: check.ComposeSimulation(check.DefaultSimulationChecks()...),
		TraceCheck:      check.ComposeTrace(check.DefaultTraceChecks()...),
		Now:             time.Now,
	}
}

// isStaked reports whether info clears the staked thresholds, via
// reputation.CheckStake rather than a raw comparison — the same
// stake-adequacy rule the reputation component exposes as its own
// public operation (spec.md §4.2 check_stake).
func (v *Validator) isStaked(info uop.StakeInfo) bool {
	return reputation.CheckStake(info, v.Config.MinStake, v.Config.MinUnstakeDelaySec) == nil
}

func wrapMiddlewareErr() *ValidationError {
	return sanityErr(&check.SanityError{Reason: check.SanityReasonMiddlewareError})
}

func wrapUnknownErr(err error) *ValidationError {
	return simulationErr(&check.SimulationError{Reason: check.SimReasonUnknown, Message: err.Error()})
}

// Validate runs the validation pipeline for uo against entryPoint,
// using mp and rep for the single mempool_id pair this admission
// targets.
//
// The latest block is fetched once, up front, and reused both for the
// sanity-phase max-fee check and as the outcome's verified_block —
// spec.md §4.4 lists the block fetch as step 6, after simulation, but
// the sanity max-fee rule also needs the current base fee, so a single
// read covers both within one validation call's logically-atomic view.
func (v *Validator) Validate(ctx context.Context, u *uop.UserOperation, entryPoint common.Address, mp mempool.Storage, rep reputation.Storage, modes ModeSet) (*Outcome, error) {
	outcome := &Outcome{}

	block, err := v.Chain.GetBlock(ctx)
	if err != nil {
		return nil, wrapMiddlewareErr()
	}

	factoryAddr, hasFactory := u.Factory()
	paymasterAddr, hasPaymaster := u.Paymaster()

	senderStake, err := v.Chain.StakeOf(ctx, entryPoint, u.Sender)
	if err != nil {
		return nil, wrapMiddlewareErr()
	}
	var factoryStake, paymasterStake uop.StakeInfo
	if hasFactory {
		if factoryStake, err = v.Chain.StakeOf(ctx, entryPoint, factoryAddr); err != nil {
			return nil, wrapMiddlewareErr()
		}
	}
	if hasPaymaster {
		if paymasterStake, err = v.Chain.StakeOf(ctx, entryPoint, paymasterAddr); err != nil {
			return nil, wrapMiddlewareErr()
		}
	}

	if modes.Has(Sanity) {
		senderCode, err := v.Chain.GetCode(ctx, u.Sender)
		if err != nil {
			return nil, wrapMiddlewareErr()
		}
		var paymasterCode []byte
		if hasPaymaster {
			if paymasterCode, err = v.Chain.GetCode(ctx, paymasterAddr); err != nil {
				return nil, wrapMiddlewareErr()
			}
		}

		in := &check.SanityInput{
			UO:                   u,
			EntryPoint:           entryPoint,
			SenderHasCode:        len(senderCode) > 0,
			PaymasterHasCode:     len(paymasterCode) > 0,
			BaseFee:              block.BaseFee,
			MinPriorityFeePerGas: v.Config.MinPriorityFeePerGas,
			MaxVerificationGas:   v.Config.MaxVerificationGas,
			GasCallStipend:       v.Config.GasCallStipend,
			MaxUOsPerSender:      v.Config.MaxUOsPerSender,
			SenderInfo:           senderStake,
			FactoryInfo:          factoryStake,
			PaymasterInfo:        paymasterStake,
			MinStake:             v.Config.MinStake,
			MinUnstakeDelaySec:   v.Config.MinUnstakeDelaySec,
			SenderReputation:     rep.StatusOf(u.Sender),
			SenderUOCount:        len(mp.GetAllBySender([20]byte(u.Sender))),
			Deposits:             v.Chain,
		}
		if hasFactory {
			in.FactoryReputation = rep.StatusOf(factoryAddr)
		}
		if hasPaymaster {
			in.PaymasterReputation = rep.StatusOf(paymasterAddr)
		}
		phaseStart := time.Now()
		err = v.SanityCheck(ctx, in)
		v.observePhase("sanity", phaseStart)
		if err != nil {
			return nil, sanityErr(err)
		}
	}

	var prevEntry *uop.MempoolEntry
	if prev, ok := mp.GetPrevBySender(u); ok {
		prevEntry = prev
		h := prev.Hash
		outcome.PrevHash = &h
	}

	simResult, err := v.Chain.SimulateValidation(ctx, u, entryPoint)
	if err != nil {
		if failedOp, ok := err.(*chain.FailedOp); ok {
			return nil, simulationErr(&check.SimulationError{Reason: check.SimReasonValidation, Message: failedOp.Reason})
		}
		return nil, wrapUnknownErr(err)
	}

	outcome.Aggregator = simResult.AggregatorAddr

	if modes.Has(Simulation) {
		in := &check.SimulationInput{
			Result:                simResult,
			Now:                   uint64(v.Now().Unix()),
			MinValidityWindowSecs: v.Config.MinValidityWindowSecs,
		}
		phaseStart := time.Now()
		err := v.SimulationCheck(ctx, in)
		v.observePhase("simulation", phaseStart)
		if err != nil {
			return nil, simulationErr(err)
		}
		outcome.ValidAfter = simResult.ReturnInfo.ValidAfter
	}

	outcome.PreFund = simResult.ReturnInfo.PreFund
	outcome.VerificationGasLimit = simResult.ReturnInfo.VerificationGasLimit
	outcome.VerifiedBlock = uint256.NewInt(block.Number)
	outcome.SenderStaked = v.isStaked(senderStake)

	if modes.Has(SimulationTrace) {
		rawTrace, err := v.Chain.SimulateValidationTrace(ctx, u, entryPoint)
		if err != nil {
			if failedOp, ok := err.(*chain.FailedOp); ok {
				return nil, simulationErr(&check.SimulationError{Reason: check.SimReasonValidation, Message: failedOp.Reason})
			}
			return nil, wrapUnknownErr(err)
		}
		parsed, err := trace.Parse(rawTrace)
		if err != nil {
			return nil, wrapUnknownErr(err)
		}

		entities := check.EntityAttribution{
			Sender:       u.Sender,
			StakedSender: v.isStaked(senderStake),
		}
		if hasFactory {
			entities.Factory = &factoryAddr
			entities.StakedFactory = v.isStaked(factoryStake)
		}
		if hasPaymaster {
			entities.Paymaster = &paymasterAddr
			entities.StakedPaymaster = v.isStaked(paymasterStake)
		}
		if simResult.AggregatorAddr != nil {
			entities.Aggregator = simResult.AggregatorAddr
			if simResult.AggregatorInfo != nil {
				entities.StakedAggregator = v.isStaked(*simResult.AggregatorInfo)
			}
		}

		selfAddrs := []common.Address{u.Sender}
		if hasFactory {
			selfAddrs = append(selfAddrs, factoryAddr)
		}
		if hasPaymaster {
			selfAddrs = append(selfAddrs, paymasterAddr)
		}

		touched := parsed.ExternalContractsTouched(u.Sender)
		haveCode := make(map[common.Address]bool, len(touched))
		codeHashes := make([]uop.CodeHash, 0, len(touched)+len(selfAddrs))

		seen := make(map[common.Address]struct{})
		captureCodeHash := func(addr common.Address) error {
			if _, ok := seen[addr]; ok {
				return nil
			}
			seen[addr] = struct{}{}
			code, err := v.Chain.GetCode(ctx, addr)
			if err != nil {
				return err
			}
			haveCode[addr] = len(code) > 0
			if len(code) > 0 {
				codeHashes = append(codeHashes, uop.CodeHash{Address: addr, Hash: crypto.Keccak256Hash(code)})
			}
			return nil
		}
		for _, addr := range selfAddrs {
			if err := captureCodeHash(addr); err != nil {
				return nil, wrapUnknownErr(err)
			}
		}
		for _, addr := range touched {
			if err := captureCodeHash(addr); err != nil {
				return nil, wrapUnknownErr(err)
			}
		}

		var prevCodeHashes []uop.CodeHash
		if prevEntry != nil {
			prevCodeHashes = prevEntry.CodeHashes
		}

		traceIn := &check.TraceInput{
			Trace:                      parsed,
			EntryPoint:                 entryPoint,
			Entities:                   entities,
			MaxValidationGas:           v.Config.MaxValidationGas,
			PermittedExternalContracts: v.Config.PermittedExternalContracts,
			ExternalContractsHaveCode:  haveCode,
			CodeHashes:                 codeHashes,
			PreviousCodeHashes:         prevCodeHashes,
		}
		phaseStart := time.Now()
		err = v.TraceCheck(ctx, traceIn)
		v.observePhase("trace", phaseStart)
		if err != nil {
			return nil, simulationErr(err)
		}

		outcome.CodeHashes = codeHashes
		outcome.StorageMap = parsed.StorageMap()
	}

	return outcome, nil
}
