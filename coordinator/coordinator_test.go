package coordinator

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/t402-io/aa-mempool/chain"
	"github.com/t402-io/aa-mempool/mempool"
	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
	"github.com/t402-io/aa-mempool/validator"
)

var entryPoint = common.HexToAddress("0xE0E0E0E0E0E0E0E0E0E0E0E0E0E0E0E0E0E0E0E0")

func testCoordinator(t *testing.T, fake *chain.Fake) *Coordinator {
	t.Helper()
	cfg := validator.Config{
		MaxVerificationGas:    uint256.NewInt(2_000_000),
		MinPriorityFeePerGas:  uint256.NewInt(100_000_000),
		GasCallStipend:        uint256.NewInt(35000),
		MaxUOsPerSender:       4,
		MinStake:              uint256.NewInt(1),
		MinUnstakeDelaySec:    uint256.NewInt(1),
		MinValidityWindowSecs: 30,
		MaxValidationGas:      uint256.NewInt(10_000_000),
	}
	v := validator.New(fake, cfg)
	return New(v, uint256.NewInt(1), []common.Address{entryPoint},
		func(mempoolID [32]byte) mempool.Storage {
			return mempool.NewMemory(mempool.DefaultGasIncreasePercent, mempool.DefaultMaxUOsPerSender)
		},
		func(mempoolID [32]byte) reputation.Storage {
			return reputation.NewMemory(reputation.DefaultMinInclusionRateDenominator, reputation.DefaultThrottlingSlack, reputation.DefaultBanSlack)
		},
	)
}

func freshUO(sender common.Address, nonce uint64) *uop.UserOperation {
	return &uop.UserOperation{
		Sender:               sender,
		Nonce:                uint256.NewInt(nonce),
		VerificationGasLimit: uint256.NewInt(150000),
		PreVerificationGas:   uint256.NewInt(45000),
		CallGasLimit:         uint256.NewInt(100000),
		MaxFeePerGas:         uint256.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000),
	}
}

func TestAddRejectsUnsupportedEntryPoint(t *testing.T) {
	fake := chain.NewFake()
	c := testCoordinator(t, fake)
	sender := common.HexToAddress("0x01")
	_, err := c.Add(context.Background(), freshUO(sender, 0), common.HexToAddress("0xDEAD"))
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ReasonInvalidEntryPoint, cerr.Reason)
}

func TestAddThenRemove(t *testing.T) {
	fake := chain.NewFake()
	sender := common.HexToAddress("0x01")
	fake.Code[sender] = []byte{0x60, 0x00}

	c := testCoordinator(t, fake)
	hash, err := c.Add(context.Background(), freshUO(sender, 0), entryPoint)
	require.NoError(t, err)

	all, err := c.GetAll(entryPoint)
	require.Error(t, err, "debug surfaces are disabled by default")

	c.DebugEnabled = func() bool { return true }
	all, err = c.GetAll(entryPoint)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, c.Remove(hash))
	all, err = c.GetAll(entryPoint)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestAddBumpsOpsSeen(t *testing.T) {
	fake := chain.NewFake()
	sender := common.HexToAddress("0x02")
	fake.Code[sender] = []byte{0x60, 0x00}

	c := testCoordinator(t, fake)
	_, err := c.Add(context.Background(), freshUO(sender, 0), entryPoint)
	require.NoError(t, err)

	c.DebugEnabled = func() bool { return true }
	entries, err := c.GetAllReputation(entryPoint)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].OpsSeen)
}

func TestEstimateGasSkipsTrace(t *testing.T) {
	fake := chain.NewFake()
	sender := common.HexToAddress("0x03")
	fake.Code[sender] = []byte{0x60, 0x00}
	fake.SimulateValidationTraceFunc = func(ctx context.Context, uo *uop.UserOperation, ep common.Address) ([]byte, error) {
		t.Fatal("estimate_gas must not invoke simulation-trace")
		return nil, nil
	}

	c := testCoordinator(t, fake)
	result, err := c.EstimateGas(context.Background(), freshUO(sender, 0), entryPoint)
	require.NoError(t, err)
	require.NotNil(t, result.PreVerificationGas)
	require.NotNil(t, result.CallGasLimit)
}
