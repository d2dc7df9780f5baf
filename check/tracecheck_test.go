package check

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/t402-io/aa-mempool/trace"
	"github.com/t402-io/aa-mempool/uop"
)

const forbiddenOpcodeTrace = `{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL"
  },
  "opcodesByFrame": {
    "0": [{ "op": "GASPRICE" }]
  }
}`

func TestCheckOpcodesAttributesEntity(t *testing.T) {
	tr, err := trace.Parse([]byte(forbiddenOpcodeTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	in := &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender},
	}
	err = CheckOpcodes(context.Background(), in)
	if err == nil {
		t.Fatal("expected forbidden opcode to fail")
	}
	simErr, ok := err.(*SimulationError)
	if !ok {
		t.Fatalf("expected *SimulationError, got %T", err)
	}
	if simErr.Op != "GASPRICE" || simErr.Entity != "sender" {
		t.Fatalf("unexpected attribution: %+v", simErr)
	}
}

const factoryCreate2Trace = `{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL",
    "calls": [
      {
        "id": "0.0",
        "from": "0x0000000000000000000000000000000000000001",
        "to": "0x0000000000000000000000000000000000000002",
        "gas": 900000,
        "gasUsed": 40000,
        "type": "CALL"
      }
    ]
  },
  "opcodesByFrame": {
    "0.0": [{ "op": "CREATE2" }]
  }
}`

func factoryTraceInput(t *testing.T) *TraceInput {
	t.Helper()
	tr, err := trace.Parse([]byte(factoryCreate2Trace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	factory := common.HexToAddress("0x0000000000000000000000000000000000000002")
	return &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender, Factory: &factory},
	}
}

func TestCheckOpcodesAllowsFactoryFirstCreate2(t *testing.T) {
	in := factoryTraceInput(t)
	if err := CheckOpcodes(context.Background(), in); err != nil {
		t.Fatalf("expected factory's first CREATE2 to pass, got %v", err)
	}
}

func TestCheckOpcodesRejectsSecondCreate2(t *testing.T) {
	tr, err := trace.Parse([]byte(`{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL",
    "calls": [
      {
        "id": "0.0",
        "from": "0x0000000000000000000000000000000000000001",
        "to": "0x0000000000000000000000000000000000000002",
        "gas": 900000,
        "gasUsed": 40000,
        "type": "CALL"
      }
    ]
  },
  "opcodesByFrame": {
    "0.0": [{ "op": "CREATE2" }, { "op": "CREATE2" }]
  }
}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	factory := common.HexToAddress("0x0000000000000000000000000000000000000002")
	in := &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender, Factory: &factory},
	}
	err = CheckOpcodes(context.Background(), in)
	if err == nil {
		t.Fatal("expected second CREATE2 to fail")
	}
	simErr, ok := err.(*SimulationError)
	if !ok || simErr.Op != "CREATE2" || simErr.Entity != "factory" {
		t.Fatalf("unexpected attribution: %+v", err)
	}
}

func TestCheckOpcodesRejectsCreate2FromNonFactory(t *testing.T) {
	tr, err := trace.Parse([]byte(`{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL"
  },
  "opcodesByFrame": {
    "0": [{ "op": "CREATE2" }]
  }
}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	in := &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender},
	}
	err = CheckOpcodes(context.Background(), in)
	if err == nil {
		t.Fatal("expected sender's CREATE2 to fail")
	}
	simErr, ok := err.(*SimulationError)
	if !ok || simErr.Op != "CREATE2" || simErr.Entity != "sender" {
		t.Fatalf("unexpected attribution: %+v", err)
	}
}

func TestCheckOpcodesAllowsBareGas(t *testing.T) {
	tr, err := trace.Parse([]byte(`{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL"
  },
  "opcodesByFrame": {
    "0": [{ "op": "GAS" }, { "op": "SSTORE" }]
  }
}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	in := &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender},
	}
	if err := CheckOpcodes(context.Background(), in); err != nil {
		t.Fatalf("expected GAS not followed by a call to pass, got %v", err)
	}
}

func TestCheckOpcodesRejectsGasFollowedByOutOfFrameCall(t *testing.T) {
	tr, err := trace.Parse([]byte(`{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL"
  },
  "opcodesByFrame": {
    "0": [{ "op": "GAS" }, { "op": "CALL", "addr": "0x0000000000000000000000000000000000000003" }]
  }
}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	in := &TraceInput{
		Trace:    tr,
		Entities: EntityAttribution{Sender: sender},
	}
	err = CheckOpcodes(context.Background(), in)
	if err == nil {
		t.Fatal("expected GAS followed by out-of-frame CALL to fail")
	}
	simErr, ok := err.(*SimulationError)
	if !ok || simErr.Op != "GAS" || simErr.Entity != "sender" {
		t.Fatalf("unexpected attribution: %+v", err)
	}
}

const cleanTrace = `{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000099",
    "to": "0x0000000000000000000000000000000000000001",
    "gas": 1000000,
    "gasUsed": 50000,
    "type": "CALL"
  },
  "opcodesByFrame": {}
}`

func TestCheckGasPassesWithinLimits(t *testing.T) {
	tr, err := trace.Parse([]byte(cleanTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	in := &TraceInput{Trace: tr}
	if err := CheckGas(context.Background(), in); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestCheckCodeHashesDetectsDivergence(t *testing.T) {
	tr, err := trace.Parse([]byte(cleanTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	addr := common.HexToAddress("0x02")
	in := &TraceInput{
		Trace:              tr,
		PreviousCodeHashes: []uop.CodeHash{{Address: addr, Hash: common.HexToHash("0xaa")}},
		CodeHashes:         []uop.CodeHash{{Address: addr, Hash: common.HexToHash("0xbb")}},
	}
	if err := CheckCodeHashes(context.Background(), in); err == nil {
		t.Fatal("expected code hash divergence to fail")
	}
}
