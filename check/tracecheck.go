package check

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/trace"
	"github.com/t402-io/aa-mempool/uop"
)

// depositToSelector is the 4-byte selector of EntryPoint.depositTo —
// the one call back into the EntryPoint that validation is allowed to
// make (rule 14).
var depositToSelector = [4]byte{0xb7, 0x60, 0xfa, 0xf9}

// EntityAttribution names the concrete addresses participating in a
// UO's validation and which of them are staked, so the trace checks
// can decide whether a given storage/opcode/call access is permitted.
type EntityAttribution struct {
	Sender     common.Address
	Factory    *common.Address
	Paymaster  *common.Address
	Aggregator *common.Address

	StakedSender     bool
	StakedFactory    bool
	StakedPaymaster  bool
	StakedAggregator bool
}

func (a EntityAttribution) addressEntity() map[common.Address]string {
	m := map[common.Address]string{a.Sender: uop.EntitySender.String()}
	if a.Factory != nil {
		m[*a.Factory] = uop.EntityFactory.String()
	}
	if a.Paymaster != nil {
		m[*a.Paymaster] = uop.EntityPaymaster.String()
	}
	if a.Aggregator != nil {
		m[*a.Aggregator] = uop.EntityAggregator.String()
	}
	return m
}

func (a EntityAttribution) isStaked(entity string) bool {
	switch entity {
	case uop.EntitySender.String():
		return a.StakedSender
	case uop.EntityFactory.String():
		return a.StakedFactory
	case uop.EntityPaymaster.String():
		return a.StakedPaymaster
	case uop.EntityAggregator.String():
		return a.StakedAggregator
	default:
		return false
	}
}

// TraceInput is the read-only view a simulation-trace check operates
// over. Every chain lookup (code existence, prior code hashes) has
// already been resolved by the validator before the check runs.
type TraceInput struct {
	Trace      *trace.Trace
	EntryPoint common.Address
	Entities   EntityAttribution

	MaxValidationGas *uint256.Int

	PermittedExternalContracts map[common.Address]struct{}
	ExternalContractsHaveCode  map[common.Address]bool

	CodeHashes         []uop.CodeHash
	PreviousCodeHashes []uop.CodeHash
}

// TraceCheck is one rule of the simulation-trace phase.
type TraceCheck func(ctx context.Context, in *TraceInput) error

// ComposeTrace folds checks into a single check, short-circuiting on
// the first error, in declaration order.
func ComposeTrace(checks ...TraceCheck) TraceCheck {
	return func(ctx context.Context, in *TraceInput) error {
		for _, c := range checks {
			if err := c(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}
}

// DefaultTraceChecks is the canonical ordering of the six
// simulation-trace rules (spec.md §4.3, rules 10-15).
func DefaultTraceChecks() []TraceCheck {
	return []TraceCheck{
		CheckGas,
		CheckOpcodes,
		CheckExternalContracts,
		CheckStorageAccess,
		CheckCallStack,
		CheckCodeHashes,
	}
}

// CheckGas enforces rule 10: no validation frame ran out of gas, and
// total validation gas stays within the contract-side limit.
func CheckGas(_ context.Context, in *TraceInput) error {
	for _, f := range in.Trace.AllFrames() {
		if f.GasUsed > f.Gas {
			return &SimulationError{Reason: SimReasonGas, Frame: f.ID}
		}
	}
	if in.MaxValidationGas != nil {
		total := uint256.NewInt(in.Trace.TotalGasUsed())
		if total.Cmp(in.MaxValidationGas) > 0 {
			return &SimulationError{Reason: SimReasonGas}
		}
	}
	return nil
}

// frameEntities propagates "which entity's own code is currently
// executing" down the call tree: a frame inherits its parent's entity
// unless its own To address matches a known entity, in which case
// that entity takes over for it and its descendants.
func frameEntities(tr *trace.Trace, entities EntityAttribution) map[string]string {
	addrEntity := entities.addressEntity()
	out := make(map[string]string)

	var walk func(f *trace.Frame, current string)
	walk = func(f *trace.Frame, current string) {
		if f == nil {
			return
		}
		if e, ok := addrEntity[f.To]; ok {
			current = e
		}
		out[f.ID] = current
		for _, c := range f.Calls {
			walk(c, current)
		}
	}
	walk(tr.Root, addrEntity[tr.Root.To])
	return out
}

// callOpcodes are the opcodes that leave the current frame's own
// code to execute another contract's — the "out-of-frame CALL" rule
// 11 cares about when it immediately follows a GAS read.
var callOpcodes = map[string]struct{}{
	"CALL":         {},
	"DELEGATECALL": {},
	"STATICCALL":   {},
	"CALLCODE":     {},
}

// CheckOpcodes enforces rule 11: the unconditionally banned set (see
// trace.IsBannedOpcode), GAS only when followed by an out-of-frame
// CALL, and CREATE2 everywhere except the factory's first use.
func CheckOpcodes(_ context.Context, in *TraceInput) error {
	entities := frameEntities(in.Trace, in.Entities)
	factoryUsedCreate2 := false

	for _, f := range in.Trace.AllFrames() {
		ops := in.Trace.OpcodesFor(f.ID)
		for i, ev := range ops {
			switch {
			case ev.Op == "CREATE2":
				entity := entities[f.ID]
				if entity == uop.EntityFactory.String() && !factoryUsedCreate2 {
					factoryUsedCreate2 = true
					continue
				}
				return &SimulationError{Reason: SimReasonOpcode, Op: ev.Op, Entity: entity}
			case ev.Op == "GAS":
				if griefingCall(ops[i+1:], f.To) {
					return &SimulationError{Reason: SimReasonOpcode, Op: ev.Op, Entity: entities[f.ID]}
				}
			case trace.IsBannedOpcode(ev.Op):
				return &SimulationError{Reason: SimReasonOpcode, Op: ev.Op, Entity: entities[f.ID]}
			}
		}
	}
	return nil
}

// griefingCall reports whether the next non-GAS opcode after a GAS
// read is a CALL-family opcode leaving self's own code — a gas
// measurement immediately spent on an out-of-frame call, the pattern
// rule 11 forbids GAS for.
func griefingCall(rest []trace.OpcodeEvent, self common.Address) bool {
	for _, ev := range rest {
		if ev.Op == "GAS" {
			continue
		}
		if _, isCall := callOpcodes[ev.Op]; !isCall {
			return false
		}
		return ev.Addr == nil || *ev.Addr != self
	}
	return false
}

// CheckExternalContracts enforces rule 12.
func CheckExternalContracts(_ context.Context, in *TraceInput) error {
	touched := in.Trace.ExternalContractsTouched(in.Entities.Sender)
	entities := frameEntities(in.Trace, in.Entities)
	selfAddrs := in.Entities.addressEntity()

	for _, addr := range touched {
		if _, self := selfAddrs[addr]; self {
			continue
		}
		if !in.ExternalContractsHaveCode[addr] {
			return &SimulationError{Reason: SimReasonExternalContract}
		}
		if _, permitted := in.PermittedExternalContracts[addr]; permitted {
			continue
		}
		touchingEntity := entityTouching(in.Trace, entities, addr)
		if touchingEntity != "" && !in.Entities.isStaked(touchingEntity) {
			return &SimulationError{Reason: SimReasonExternalContract, Entity: touchingEntity}
		}
	}
	return nil
}

// entityTouching finds which entity's call frame first referenced
// addr, either as a call target or via an address-taking opcode.
func entityTouching(tr *trace.Trace, entities map[string]string, addr common.Address) string {
	for _, f := range tr.AllFrames() {
		if f.To == addr {
			return entities[f.ID]
		}
		for _, ev := range tr.OpcodesFor(f.ID) {
			if ev.Addr != nil && *ev.Addr == addr {
				return entities[f.ID]
			}
		}
	}
	return ""
}

// CheckStorageAccess enforces rule 13: an entity may freely touch its
// own account's storage; touching another account's storage requires
// the touching entity to be staked.
func CheckStorageAccess(_ context.Context, in *TraceInput) error {
	entities := frameEntities(in.Trace, in.Entities)
	selfAddrs := in.Entities.addressEntity()

	for _, f := range in.Trace.AllFrames() {
		if len(f.StorageReads) == 0 && len(f.StorageWrites) == 0 {
			continue
		}
		owner := f.To
		touchingEntity := entities[f.ID]
		if _, self := selfAddrs[owner]; self && selfEntityFor(selfAddrs, owner) == touchingEntity {
			continue
		}
		if touchingEntity == "" || in.Entities.isStaked(touchingEntity) {
			continue
		}
		slot := firstSlot(f)
		return &SimulationError{Reason: SimReasonStorageAccess, Entity: touchingEntity, Slot: slot}
	}
	return nil
}

func selfEntityFor(selfAddrs map[common.Address]string, addr common.Address) string {
	return selfAddrs[addr]
}

func firstSlot(f *trace.Frame) string {
	for slot := range f.StorageWrites {
		return slot.Hex()
	}
	for slot := range f.StorageReads {
		return slot.Hex()
	}
	return ""
}

// CheckCallStack enforces rule 14: no reentrant call into the
// EntryPoint other than depositTo, and no value transfer from an
// unstaked entity.
func CheckCallStack(_ context.Context, in *TraceInput) error {
	entities := frameEntities(in.Trace, in.Entities)
	for _, f := range in.Trace.AllFrames() {
		if f.To == in.EntryPoint && f != in.Trace.Root {
			if !hasSelector(f.Input, depositToSelector) {
				return &SimulationError{Reason: SimReasonCallStack, Frame: f.ID}
			}
		}
		if f.Value != nil && !f.Value.IsZero() {
			entity := entities[f.ID]
			if entity != "" && !in.Entities.isStaked(entity) {
				return &SimulationError{Reason: SimReasonCallStack, Frame: f.ID, Entity: entity}
			}
		}
	}
	return nil
}

func hasSelector(input []byte, selector [4]byte) bool {
	if len(input) < 4 {
		return false
	}
	return input[0] == selector[0] && input[1] == selector[1] && input[2] == selector[2] && input[3] == selector[3]
}

// CheckCodeHashes enforces rule 15: on readmission, every previously
// captured code hash must still match.
func CheckCodeHashes(_ context.Context, in *TraceInput) error {
	if len(in.PreviousCodeHashes) == 0 {
		return nil
	}
	current := make(map[common.Address]common.Hash, len(in.CodeHashes))
	for _, ch := range in.CodeHashes {
		current[ch.Address] = ch.Hash
	}
	for _, prev := range in.PreviousCodeHashes {
		nowHash, ok := current[prev.Address]
		if !ok || nowHash != prev.Hash {
			return &SimulationError{Reason: SimReasonCodeHashChanged}
		}
	}
	return nil
}
