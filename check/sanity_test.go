package check

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
)

func baseSanityInput() *SanityInput {
	return &SanityInput{
		UO: &uop.UserOperation{
			Sender:               common.HexToAddress("0x1"),
			Nonce:                uint256.NewInt(0),
			VerificationGasLimit: uint256.NewInt(150000),
			PreVerificationGas:   uint256.NewInt(45000),
			CallGasLimit:         uint256.NewInt(100000),
			MaxFeePerGas:         uint256.NewInt(20_000_000_000),
			MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000),
		},
		SenderHasCode:        true,
		BaseFee:              uint256.NewInt(10_000_000_000),
		MinPriorityFeePerGas: uint256.NewInt(100_000_000),
		MaxVerificationGas:   uint256.NewInt(2_000_000),
		GasCallStipend:       uint256.NewInt(35000),
		MaxUOsPerSender:      4,
		MinStake:             uint256.NewInt(1),
		MinUnstakeDelaySec:   uint256.NewInt(1),
		SenderReputation:     reputation.OK,
	}
}

func TestCheckSenderXOR(t *testing.T) {
	tests := []struct {
		name     string
		hasCode  bool
		initCode []byte
		wantErr  bool
	}{
		{"deployed, no initCode", true, nil, false},
		{"undeployed, with initCode", false, []byte{1, 2, 3}, false},
		{"both", true, []byte{1, 2, 3}, true},
		{"neither", false, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseSanityInput()
			in.SenderHasCode = tt.hasCode
			in.UO.InitCode = tt.initCode
			err := CheckSender(context.Background(), in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckSender() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckMaxFee(t *testing.T) {
	in := baseSanityInput()
	if err := CheckMaxFee(context.Background(), in); err != nil {
		t.Fatalf("expected valid fees to pass, got %v", err)
	}

	in2 := baseSanityInput()
	in2.UO.MaxPriorityFeePerGas = uint256.NewInt(50_000_000) // below MinPriorityFeePerGas
	if err := CheckMaxFee(context.Background(), in2); err == nil {
		t.Fatal("expected error for priority fee below minimum")
	}

	in3 := baseSanityInput()
	in3.UO.MaxFeePerGas = uint256.NewInt(5_000_000_000) // below base fee
	if err := CheckMaxFee(context.Background(), in3); err == nil {
		t.Fatal("expected error for max fee below base fee")
	}
}

func TestCheckCallGas(t *testing.T) {
	in := baseSanityInput()
	in.UO.CallGasLimit = uint256.NewInt(1000)
	if err := CheckCallGas(context.Background(), in); err == nil {
		t.Fatal("expected error for call gas below stipend")
	}
}

func TestCheckUnstakedEntitiesThrottled(t *testing.T) {
	in := baseSanityInput()
	in.SenderReputation = reputation.Throttled
	in.SenderUOCount = 1
	if err := CheckUnstakedEntities(context.Background(), in); err == nil {
		t.Fatal("expected throttled sender with 1 existing UO to be over limit")
	}
}

func TestCheckUnstakedEntitiesOK(t *testing.T) {
	in := baseSanityInput()
	in.SenderUOCount = 3
	if err := CheckUnstakedEntities(context.Background(), in); err != nil {
		t.Fatalf("expected OK sender under cap to pass, got %v", err)
	}
}

func TestComposeSanityShortCircuits(t *testing.T) {
	calls := 0
	ok := func(context.Context, *SanityInput) error { calls++; return nil }
	fails := func(context.Context, *SanityInput) error { calls++; return &SanityError{Reason: "boom"} }
	never := func(context.Context, *SanityInput) error { calls++; return nil }

	composed := ComposeSanity(ok, fails, never)
	err := composed(context.Background(), baseSanityInput())
	if err == nil {
		t.Fatal("expected composed check to fail")
	}
	if calls != 2 {
		t.Fatalf("expected short-circuit after 2 calls, got %d", calls)
	}
}
