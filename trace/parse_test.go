package trace

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const sampleTrace = `{
  "root": {
    "id": "0",
    "from": "0x0000000000000000000000000000000000000001",
    "to": "0x0000000000000000000000000000000000000002",
    "value": "0x0",
    "gas": 1000000,
    "gasUsed": 21000,
    "type": "CALL",
    "storageReads": { "0x01": "0x02" },
    "calls": [
      {
        "id": "0-0",
        "from": "0x0000000000000000000000000000000000000002",
        "to": "0x0000000000000000000000000000000000000003",
        "value": "0x0",
        "gas": 500000,
        "gasUsed": 5000,
        "type": "STATICCALL"
      }
    ]
  },
  "opcodesByFrame": {
    "0": [{ "op": "SSTORE" }],
    "0-0": [{ "op": "TIMESTAMP" }, { "op": "EXTCODEHASH", "addr": "0x0000000000000000000000000000000000000009" }]
  }
}`

func TestParseValid(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tr.Root.ID != "0" {
		t.Fatalf("root id = %q, want 0", tr.Root.ID)
	}
	if len(tr.Root.Calls) != 1 {
		t.Fatalf("expected 1 child call, got %d", len(tr.Root.Calls))
	}
	if got, want := tr.Root.Calls[0].Type, STATICCALL; got != want {
		t.Fatalf("child type = %q, want %q", got, want)
	}
	if len(tr.AllFrames()) != 2 {
		t.Fatalf("AllFrames() = %d, want 2", len(tr.AllFrames()))
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"root": {"id": "0"}}`))
	if err == nil {
		t.Fatal("expected error for missing required frame fields")
	}
}

func TestBannedOpcodesUsed(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	banned := tr.BannedOpcodesUsed()
	if len(banned) != 1 || banned[0].Op != "TIMESTAMP" {
		t.Fatalf("BannedOpcodesUsed() = %+v, want [TIMESTAMP]", banned)
	}
}

func TestExternalContractsTouched(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	touched := tr.ExternalContractsTouched(sender)

	var hex []string
	for _, a := range touched {
		hex = append(hex, a.Hex())
	}
	joined := strings.Join(hex, ",")
	for _, want := range []string{
		common.HexToAddress("0x0000000000000000000000000000000000000002").Hex(),
		common.HexToAddress("0x0000000000000000000000000000000000000003").Hex(),
		common.HexToAddress("0x0000000000000000000000000000000000000009").Hex(),
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("ExternalContractsTouched() missing %s, got %v", want, touched)
		}
	}
}

func TestStorageMap(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sm := tr.StorageMap()
	addr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	if _, ok := sm[addr]; !ok {
		t.Fatalf("StorageMap() missing entry for %s", addr.Hex())
	}
}
