package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

// Fake is a scripted, in-memory Client for tests: every response is a
// canned value keyed by address or always returned, set up by the
// test before exercising the validator. No network, no randomness.
type Fake struct {
	mu sync.Mutex

	SimulateValidationFunc      func(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*SimulateValidationResult, error)
	SimulateValidationTraceFunc func(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) ([]byte, error)

	Block *Block

	Code     map[common.Address][]byte
	Balances map[common.Address]*uint256.Int
	Deposits map[common.Address]*uint256.Int
	Stakes   map[common.Address]uop.StakeInfo

	EstimateGasResult *uint256.Int

	Calls []string
}

// NewFake constructs an empty Fake with a default latest block.
func NewFake() *Fake {
	return &Fake{
		Block:    &Block{Number: 1, BaseFee: uint256.NewInt(1_000_000_000), Timestamp: 1000},
		Code:     make(map[common.Address][]byte),
		Balances: make(map[common.Address]*uint256.Int),
		Deposits: make(map[common.Address]*uint256.Int),
		Stakes:   make(map[common.Address]uop.StakeInfo),
	}
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, name)
}

func (f *Fake) SimulateValidation(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*SimulateValidationResult, error) {
	f.record("SimulateValidation")
	if f.SimulateValidationFunc != nil {
		return f.SimulateValidationFunc(ctx, uo, entryPoint)
	}
	return &SimulateValidationResult{
		ReturnInfo: ReturnInfo{
			PreFund:              uo.EstimatePreFund(),
			VerificationGasLimit: uo.VerificationGasLimit,
		},
	}, nil
}

func (f *Fake) SimulateValidationTrace(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) ([]byte, error) {
	f.record("SimulateValidationTrace")
	if f.SimulateValidationTraceFunc != nil {
		return f.SimulateValidationTraceFunc(ctx, uo, entryPoint)
	}
	return []byte(`{"root":{"id":"0","from":"` + uo.Sender.Hex() + `","to":"` + uo.Sender.Hex() + `","gas":1000000,"gasUsed":1,"type":"CALL"},"opcodesByFrame":{}}`), nil
}

func (f *Fake) GetBlock(ctx context.Context) (*Block, error) {
	f.record("GetBlock")
	return f.Block, nil
}

func (f *Fake) EstimateGas(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) (*uint256.Int, error) {
	f.record("EstimateGas")
	if f.EstimateGasResult != nil {
		return f.EstimateGasResult, nil
	}
	return uint256.NewInt(21000), nil
}

func (f *Fake) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	f.record("GetCode")
	return f.Code[addr], nil
}

func (f *Fake) BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	f.record("BalanceOf")
	if v, ok := f.Balances[addr]; ok {
		return v, nil
	}
	return uint256.NewInt(0), nil
}

func (f *Fake) DepositOf(ctx context.Context, entryPoint, addr common.Address) (*uint256.Int, error) {
	f.record("DepositOf")
	if v, ok := f.Deposits[addr]; ok {
		return v, nil
	}
	return uint256.NewInt(0), nil
}

func (f *Fake) StakeOf(ctx context.Context, entryPoint, addr common.Address) (uop.StakeInfo, error) {
	f.record("StakeOf")
	if v, ok := f.Stakes[addr]; ok {
		return v, nil
	}
	return uop.StakeInfo{Stake: uint256.NewInt(0), UnstakeDelaySec: uint256.NewInt(0)}, nil
}

var _ Client = (*Fake)(nil)
