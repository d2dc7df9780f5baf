// Package trace parses the structured execution trace a chain client
// returns from simulate_validation_trace into a form the
// simulation-trace checks (gas, opcodes, external contracts, storage
// access, call stack, code hashes) can query directly, instead of
// re-walking raw JSON in every check.
package trace

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallType is the EVM call variant a Frame represents.
type CallType string

const (
	CALL         CallType = "CALL"
	CREATE       CallType = "CREATE"
	CREATE2      CallType = "CREATE2"
	STATICCALL   CallType = "STATICCALL"
	DELEGATECALL CallType = "DELEGATECALL"
)

// Log is an emitted event log, carried through for completeness even
// though none of the 15 checks inspect it directly today.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Frame is one call frame of the validation trace.
type Frame struct {
	ID            string
	From          common.Address
	To            common.Address
	Input         []byte
	Output        []byte
	Value         *uint256.Int
	Gas           uint64
	GasUsed       uint64
	Type          CallType
	Logs          []Log
	StorageReads  map[common.Hash]common.Hash
	StorageWrites map[common.Hash]common.Hash
	Calls         []*Frame
}

// OpcodeEvent is one opcode execution recorded against a frame. Addr
// is populated for opcodes that reference another address (EXTCODE*,
// BALANCE, CALL/CREATE2/SELFDESTRUCT) so the opcode and external-
// contract checks can attribute it without re-parsing Input/Output.
type OpcodeEvent struct {
	Op   string
	Addr *common.Address
}

// Trace is the parsed, queryable form of a simulate_validation_trace
// response: the call-frame tree plus the flat per-frame opcode log.
type Trace struct {
	Root           *Frame
	OpcodesByFrame map[string][]OpcodeEvent

	framesByID map[string]*Frame
}

func newTrace(root *Frame, opcodes map[string][]OpcodeEvent) *Trace {
	t := &Trace{Root: root, OpcodesByFrame: opcodes, framesByID: make(map[string]*Frame)}
	t.indexFrame(root)
	return t
}

func (t *Trace) indexFrame(f *Frame) {
	if f == nil {
		return
	}
	t.framesByID[f.ID] = f
	for _, c := range f.Calls {
		t.indexFrame(c)
	}
}

// Frame resolves a frame by ID.
func (t *Trace) Frame(id string) (*Frame, bool) {
	f, ok := t.framesByID[id]
	return f, ok
}

// AllFrames returns every frame in the trace, root first, in a
// pre-order (parent-before-children) walk.
func (t *Trace) AllFrames() []*Frame {
	out := make([]*Frame, 0, len(t.framesByID))
	var walk func(f *Frame)
	walk = func(f *Frame) {
		if f == nil {
			return
		}
		out = append(out, f)
		for _, c := range f.Calls {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

// OpcodesFor returns the opcode events recorded against frame id.
func (t *Trace) OpcodesFor(id string) []OpcodeEvent {
	return t.OpcodesByFrame[id]
}

// StorageMap flattens every frame's reads+writes into the
// address->slot->value report the Outcome surfaces to the bundler
// (spec.md §4.4/§9 — treated as an opaque report by the core).
func (t *Trace) StorageMap() map[common.Address]map[common.Hash]common.Hash {
	out := make(map[common.Address]map[common.Hash]common.Hash)
	merge := func(addr common.Address, m map[common.Hash]common.Hash) {
		if len(m) == 0 {
			return
		}
		if out[addr] == nil {
			out[addr] = make(map[common.Hash]common.Hash)
		}
		for k, v := range m {
			out[addr][k] = v
		}
	}
	for _, f := range t.AllFrames() {
		merge(f.To, f.StorageReads)
		merge(f.To, f.StorageWrites)
	}
	return out
}
