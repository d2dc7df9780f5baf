package trace

import "github.com/ethereum/go-ethereum/common"

// bannedOpcodes are the opcodes ERC-4337 validation forbids outright
// because they read state outside what simulate_validation pins
// (spec.md §4.3 rule 11): environment-dependent or nondeterministic
// opcodes that let an operation pass simulation and then revert, or
// behave differently, once included in a block by a different miner.
//
// GAS and CREATE2 are deliberately absent here: GAS is only forbidden
// when it is followed by an out-of-frame CALL, and CREATE2 is
// forbidden everywhere except the factory's first use. Both need the
// per-frame entity attribution CheckOpcodes has and this package
// doesn't, so they're checked there instead.
var bannedOpcodes = map[string]struct{}{
	"GASPRICE":     {},
	"GASLIMIT":     {},
	"DIFFICULTY":   {},
	"PREVRANDAO":   {},
	"TIMESTAMP":    {},
	"BASEFEE":      {},
	"BLOCKHASH":    {},
	"NUMBER":       {},
	"SELFBALANCE":  {},
	"BALANCE":      {},
	"ORIGIN":       {},
	"CREATE":       {},
	"COINBASE":     {},
	"SELFDESTRUCT": {},
}

// IsBannedOpcode reports whether op is forbidden during validation.
func IsBannedOpcode(op string) bool {
	_, banned := bannedOpcodes[op]
	return banned
}

// BannedOpcodesUsed returns every (frameID, op) pair in the trace that
// used a forbidden opcode, preserving frame order.
func (t *Trace) BannedOpcodesUsed() []struct {
	FrameID string
	Op      string
} {
	var out []struct {
		FrameID string
		Op      string
	}
	for _, f := range t.AllFrames() {
		for _, ev := range t.OpcodesFor(f.ID) {
			if IsBannedOpcode(ev.Op) {
				out = append(out, struct {
					FrameID string
					Op      string
				}{FrameID: f.ID, Op: ev.Op})
			}
		}
	}
	return out
}

// ExternalContractsTouched returns every address referenced by an
// address-taking opcode (EXTCODESIZE, EXTCODEHASH, EXTCODECOPY,
// BALANCE, CALL family) or as the To of a frame whose To differs from
// its From, excluding the address passed as exclude —
// used to enforce the "no calls into unstaked external contracts with
// their own state" rule.
func (t *Trace) ExternalContractsTouched(exclude common.Address) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	add := func(a common.Address) {
		if a == exclude {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, f := range t.AllFrames() {
		if f.To != f.From {
			add(f.To)
		}
		for _, ev := range t.OpcodesFor(f.ID) {
			if ev.Addr != nil {
				add(*ev.Addr)
			}
		}
	}
	return out
}

// CallDepth returns the deepest call-stack depth reached, root at 1.
func (t *Trace) CallDepth() int {
	var walk func(f *Frame, depth int) int
	walk = func(f *Frame, depth int) int {
		if f == nil {
			return depth - 1
		}
		max := depth
		for _, c := range f.Calls {
			if d := walk(c, depth+1); d > max {
				max = d
			}
		}
		return max
	}
	return walk(t.Root, 1)
}

// FramesTo returns every frame whose To matches addr.
func (t *Trace) FramesTo(addr common.Address) []*Frame {
	var out []*Frame
	for _, f := range t.AllFrames() {
		if f.To == addr {
			out = append(out, f)
		}
	}
	return out
}

// TotalGasUsed sums GasUsed across every frame.
func (t *Trace) TotalGasUsed() uint64 {
	var total uint64
	for _, f := range t.AllFrames() {
		total += f.GasUsed
	}
	return total
}
