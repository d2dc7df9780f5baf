package validator

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
)

func testConfig() Config {
	return Config{
		MaxVerificationGas:    uint256.NewInt(2_000_000),
		MinPriorityFeePerGas:  uint256.NewInt(100_000_000),
		GasCallStipend:        uint256.NewInt(35000),
		MaxUOsPerSender:       4,
		MinStake:              uint256.NewInt(1),
		MinUnstakeDelaySec:    uint256.NewInt(1),
		MinValidityWindowSecs: 30,
		MaxValidationGas:      uint256.NewInt(10_000_000),
	}
}

func freshUO(sender common.Address) *uop.UserOperation {
	return &uop.UserOperation{
		Sender:               sender,
		Nonce:                uint256.NewInt(0),
		VerificationGasLimit: uint256.NewInt(150000),
		PreVerificationGas:   uint256.NewInt(45000),
		CallGasLimit:         uint256.NewInt(100000),
		MaxFeePerGas:         uint256.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000),
	}
}

func TestValidateAdmitsFreshUO(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fake := chain.NewFake()
	fake.Code[sender] = []byte{0x60, 0x00} // sender already deployed

	v := New(fake, testConfig())
	mp := mempool.NewMemory(mempool.DefaultGasIncreasePercent, mempool.DefaultMaxUOsPerSender)
	rep := reputation.NewMemory(reputation.DefaultMinInclusionRateDenominator, reputation.DefaultThrottlingSlack, reputation.DefaultBanSlack)

	outcome, err := v.Validate(context.Background(), freshUO(sender), common.HexToAddress("0xE0"), mp, rep, CanonicalMode)
	require.NoError(t, err)
	require.Nil(t, outcome.PrevHash)
	require.NotNil(t, outcome.PreFund)
}

func TestValidateSanityFailsUndeployedNoInitCode(t *testing.T) {
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fake := chain.NewFake() // no code registered for sender

	v := New(fake, testConfig())
	mp := mempool.NewMemory(mempool.DefaultGasIncreasePercent, mempool.DefaultMaxUOsPerSender)
	rep := reputation.NewMemory(reputation.DefaultMinInclusionRateDenominator, reputation.DefaultThrottlingSlack, reputation.DefaultBanSlack)

	_, err := v.Validate(context.Background(), freshUO(sender), common.HexToAddress("0xE0"), mp, rep, CanonicalMode)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindSanity, verr.Kind)
}

func TestValidateOpcodeForbidden(t *testing.T) {
	sender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	fake := chain.NewFake()
	fake.Code[sender] = []byte{0x60, 0x00}
	fake.SimulateValidationTraceFunc = func(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) ([]byte, error) {
		return []byte(`{
			"root": {"id":"0","from":"` + sender.Hex() + `","to":"` + sender.Hex() + `","gas":1000000,"gasUsed":1,"type":"CALL"},
			"opcodesByFrame": {"0":[{"op":"GASPRICE"}]}
		}`), nil
	}

	v := New(fake, testConfig())
	mp := mempool.NewMemory(mempool.DefaultGasIncreasePercent, mempool.DefaultMaxUOsPerSender)
	rep := reputation.NewMemory(reputation.DefaultMinInclusionRateDenominator, reputation.DefaultThrottlingSlack, reputation.DefaultBanSlack)

	_, err := v.Validate(context.Background(), freshUO(sender), common.HexToAddress("0xE0"), mp, rep, CanonicalMode)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindSimulation, verr.Kind)
}

func TestValidateUnsafeModeSkipsTrace(t *testing.T) {
	sender := common.HexToAddress("0x4444444444444444444444444444444444444444")
	fake := chain.NewFake()
	fake.Code[sender] = []byte{0x60, 0x00}
	fake.SimulateValidationTraceFunc = func(ctx context.Context, uo *uop.UserOperation, entryPoint common.Address) ([]byte, error) {
		t.Fatal("trace should not be invoked in unsafe mode")
		return nil, nil
	}

	v := New(fake, testConfig())
	mp := mempool.NewMemory(mempool.DefaultGasIncreasePercent, mempool.DefaultMaxUOsPerSender)
	rep := reputation.NewMemory(reputation.DefaultMinInclusionRateDenominator, reputation.DefaultThrottlingSlack, reputation.DefaultBanSlack)

	_, err := v.Validate(context.Background(), freshUO(sender), common.HexToAddress("0xE0"), mp, rep, UnsafeMode)
	require.NoError(t, err)
}
