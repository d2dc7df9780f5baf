package trace

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/xeipuuv/gojsonschema"
)

type rawFrame struct {
	ID            string            `json:"id"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	Input         string            `json:"input"`
	Output        string            `json:"output"`
	Value         string            `json:"value"`
	Gas           uint64            `json:"gas"`
	GasUsed       uint64            `json:"gasUsed"`
	Type          string            `json:"type"`
	Logs          []rawLog          `json:"logs"`
	StorageReads  map[string]string `json:"storageReads"`
	StorageWrites map[string]string `json:"storageWrites"`
	Calls         []rawFrame        `json:"calls"`
}

type rawLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type rawOpcodeEvent struct {
	Op   string `json:"op"`
	Addr string `json:"addr"`
}

type rawTrace struct {
	Root           rawFrame                    `json:"root"`
	OpcodesByFrame map[string][]rawOpcodeEvent `json:"opcodesByFrame"`
}

// Validate checks raw against the trace schema without decoding it,
// so a malformed payload is reported before any field is touched.
func Validate(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rawSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("trace: schema validation failed: %w", err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for i, e := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(e.String())
		}
		return fmt.Errorf("trace: malformed trace: %s", sb.String())
	}
	return nil
}

// Parse validates raw against the schema and decodes it into a Trace.
func Parse(raw []byte) (*Trace, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var rt rawTrace
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("trace: decode: %w", err)
	}

	root, err := convertFrame(rt.Root)
	if err != nil {
		return nil, err
	}

	opcodes := make(map[string][]OpcodeEvent, len(rt.OpcodesByFrame))
	for frameID, events := range rt.OpcodesByFrame {
		converted := make([]OpcodeEvent, 0, len(events))
		for _, e := range events {
			ev := OpcodeEvent{Op: e.Op}
			if e.Addr != "" {
				a := common.HexToAddress(e.Addr)
				ev.Addr = &a
			}
			converted = append(converted, ev)
		}
		opcodes[frameID] = converted
	}

	return newTrace(root, opcodes), nil
}

func convertFrame(rf rawFrame) (*Frame, error) {
	input, err := decodeHex(rf.Input)
	if err != nil {
		return nil, fmt.Errorf("trace: frame %s: input: %w", rf.ID, err)
	}
	output, err := decodeHex(rf.Output)
	if err != nil {
		return nil, fmt.Errorf("trace: frame %s: output: %w", rf.ID, err)
	}

	value := uint256.NewInt(0)
	if rf.Value != "" {
		hexVal := rf.Value
		if !strings.HasPrefix(hexVal, "0x") && !strings.HasPrefix(hexVal, "0X") {
			hexVal = "0x" + hexVal
		}
		v, err := uint256.FromHex(hexVal)
		if err != nil {
			return nil, fmt.Errorf("trace: frame %s: value: %w", rf.ID, err)
		}
		value = v
	}

	logs := make([]Log, 0, len(rf.Logs))
	for _, l := range rf.Logs {
		topics := make([]common.Hash, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, common.HexToHash(t))
		}
		data, err := decodeHex(l.Data)
		if err != nil {
			return nil, fmt.Errorf("trace: frame %s: log data: %w", rf.ID, err)
		}
		logs = append(logs, Log{Address: common.HexToAddress(l.Address), Topics: topics, Data: data})
	}

	reads, err := convertStorage(rf.StorageReads)
	if err != nil {
		return nil, fmt.Errorf("trace: frame %s: storageReads: %w", rf.ID, err)
	}
	writes, err := convertStorage(rf.StorageWrites)
	if err != nil {
		return nil, fmt.Errorf("trace: frame %s: storageWrites: %w", rf.ID, err)
	}

	calls := make([]*Frame, 0, len(rf.Calls))
	for _, c := range rf.Calls {
		cf, err := convertFrame(c)
		if err != nil {
			return nil, err
		}
		calls = append(calls, cf)
	}

	return &Frame{
		ID:            rf.ID,
		From:          common.HexToAddress(rf.From),
		To:            common.HexToAddress(rf.To),
		Input:         input,
		Output:        output,
		Value:         value,
		Gas:           rf.Gas,
		GasUsed:       rf.GasUsed,
		Type:          CallType(rf.Type),
		Logs:          logs,
		StorageReads:  reads,
		StorageWrites: writes,
		Calls:         calls,
	}, nil
}

func convertStorage(m map[string]string) (map[common.Hash]common.Hash, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[common.Hash]common.Hash, len(m))
	for k, v := range m {
		out[common.HexToHash(k)] = common.HexToHash(v)
	}
	return out, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(normalizeHex(s))
}

func normalizeHex(s string) string {
	return strings.TrimPrefix(s, "0x")
}
