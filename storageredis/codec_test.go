package storageredis

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
)

func TestEncodeDecodeEntryRoundTrips(t *testing.T) {
	sender := common.HexToAddress("0x01")
	entry := &uop.MempoolEntry{
		UserOp: &uop.UserOperation{
			Sender:               sender,
			Nonce:                uint256.NewInt(3),
			CallData:             []byte{0xde, 0xad},
			VerificationGasLimit: uint256.NewInt(150000),
			CallGasLimit:         uint256.NewInt(100000),
			PreVerificationGas:   uint256.NewInt(45000),
			MaxFeePerGas:         uint256.NewInt(2_000_000_000),
			MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000),
		},
		Hash:                 uop.Hash(common.HexToHash("0xabc")),
		PreFund:              uint256.NewInt(1_000_000),
		VerificationGasLimit: uint256.NewInt(150000),
		CodeHashes: []uop.CodeHash{
			{Address: sender, Hash: common.HexToHash("0x1234")},
		},
	}

	encoded, err := encodeEntry(entry)
	if err != nil {
		t.Fatalf("encodeEntry: %v", err)
	}
	if encoded[0] != schemaVersion {
		t.Fatalf("expected schema version prefix %d, got %d", schemaVersion, encoded[0])
	}

	decoded, err := decodeEntry(encoded)
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if decoded.Hash != entry.Hash {
		t.Fatalf("hash mismatch: got %s want %s", decoded.Hash.Hex(), entry.Hash.Hex())
	}
	if decoded.UserOp.Sender != sender {
		t.Fatalf("sender mismatch")
	}
	if decoded.PreFund.Cmp(entry.PreFund) != 0 {
		t.Fatalf("prefund mismatch: got %s want %s", decoded.PreFund, entry.PreFund)
	}
	if len(decoded.CodeHashes) != 1 || decoded.CodeHashes[0].Address != sender {
		t.Fatalf("code hashes not preserved: %+v", decoded.CodeHashes)
	}
}

func TestDecodeEntryRejectsWrongSchemaVersion(t *testing.T) {
	if _, err := decodeEntry([]byte{0x02, '{', '}'}); err == nil {
		t.Fatal("expected schema version mismatch error")
	}
}

func TestEncodeDecodeReputationEntryRoundTrips(t *testing.T) {
	e := reputation.Entry{
		Address:     common.HexToAddress("0x02"),
		OpsSeen:     40,
		OpsIncluded: 3,
	}
	encoded := encodeReputationEntry(e)
	decoded, err := decodeReputationEntry(encoded)
	if err != nil {
		t.Fatalf("decodeReputationEntry: %v", err)
	}
	if decoded != e {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, e)
	}
}

func TestCommon20HexAndHexToHash(t *testing.T) {
	var b [20]byte
	copy(b[:], common.HexToAddress("0xabCDEF0123456789000000000000000000000099").Bytes())
	hx := common20Hex(b)
	if len(hx) != 40 {
		t.Fatalf("expected 40 hex chars, got %d", len(hx))
	}

	h := common.HexToHash("0x00112233445566778899aabbccddeeff0011223344556677889900000000ff")
	got := hexToHash(h.Hex())
	if common.Hash(got) != h {
		t.Fatalf("hexToHash mismatch: got %s want %s", common.Hash(got).Hex(), h.Hex())
	}
}
