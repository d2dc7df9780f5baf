package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

// JSONRPCClient is a Client backed by a JSON-RPC endpoint exposing the
// EntryPoint's simulateValidation/simulateValidationTrace entry points
// alongside standard eth_* queries. The request envelope and error
// handling mirror the teacher's generic bundler client
// (go/mechanisms/evm/erc4337/bundler.go) — same id-counter, same
// decode-then-check-error-field shape.
type JSONRPCClient struct {
	endpoint   string
	httpClient *http.Client
	requestID  atomic.Int64
}

// NewJSONRPCClient builds a client against a bundler/node RPC
// endpoint, with the teacher's 30s timeout default.
func NewJSONRPCClient(endpoint string) *JSONRPCClient {
	return &JSONRPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcErrorPayload struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	id := c.requestID.Add(1)
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("chain: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chain: HTTP error %d: %s", resp.StatusCode, string(b))
	}

	var response struct {
		Result json.RawMessage  `json:"result"`
		Error  *rpcErrorPayload `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("chain: decode response: %w", err)
	}

	if response.Error != nil {
		// The EntryPoint reports validation reverts as a structured
		// FailedOp via the RPC error's data field; everything else is
		// an ordinary RPC/transport failure.
		if reason, ok := decodeFailedOp(response.Error.Data); ok {
			return &FailedOp{Reason: reason}
		}
		return fmt.Errorf("chain: RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("chain: unmarshal result: %w", err)
		}
	}
	return nil
}

func decodeFailedOp(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var failedOp struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &failedOp); err != nil || failedOp.Reason == "" {
		return "", false
	}
	return failedOp.Reason, true
}

func packUserOp(u *uop.UserOperation) map[string]interface{} {
	return map[string]interface{}{
		"sender":               u.Sender.Hex(),
		"nonce":                u256Hex(u.Nonce),
		"initCode":             bytesHex(u.InitCode),
		"callData":             bytesHex(u.CallData),
		"callGasLimit":         u256Hex(u.CallGasLimit),
		"verificationGasLimit": u256Hex(u.VerificationGasLimit),
		"preVerificationGas":   u256Hex(u.PreVerificationGas),
		"maxFeePerGas":         u256Hex(u.MaxFeePerGas),
		"maxPriorityFeePerGas": u256Hex(u.MaxPriorityFeePerGas),
		"paymasterAndData":     bytesHex(u.PaymasterAndData),
		"signature":            bytesHex(u.Signature),
	}
}

func u256Hex(v *uint256.Int) string {
	if v == nil {
		return "0x0"
	}
	return v.Hex()
}

func bytesHex(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return "0x" + common.Bytes2Hex(b)
}

func hexToUint256(s string) *uint256.Int {
	if s == "" || s == "0x" {
		return uint256.NewInt(0)
	}
	v, err := uint256.FromHex(s)
	if err != nil {
		return uint256.NewInt(0)
	}
	return v
}

func hexToUint64(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *JSONRPCClient) SimulateValidation(ctx context.Context, u *uop.UserOperation, entryPoint common.Address) (*SimulateValidationResult, error) {
	var result struct {
		ReturnInfo struct {
			PreFund              string `json:"preFund"`
			VerificationGasLimit string `json:"verificationGasLimit"`
			ValidAfter           string `json:"validAfter"`
			ValidUntil           string `json:"validUntil"`
			SigFailed            bool   `json:"sigFailed"`
		} `json:"returnInfo"`
		SenderInfo    rpcStakeInfo  `json:"senderInfo"`
		FactoryInfo   rpcStakeInfo  `json:"factoryInfo"`
		PaymasterInfo rpcStakeInfo  `json:"paymasterInfo"`
		Aggregator    string        `json:"aggregator,omitempty"`
		AggregatorInfo *rpcStakeInfo `json:"aggregatorInfo,omitempty"`
	}
	err := c.call(ctx, "eth_simulateValidation", []interface{}{packUserOp(u), entryPoint.Hex()}, &result)
	if err != nil {
		return nil, err
	}

	out := &SimulateValidationResult{
		ReturnInfo: ReturnInfo{
			PreFund:              hexToUint256(result.ReturnInfo.PreFund),
			VerificationGasLimit: hexToUint256(result.ReturnInfo.VerificationGasLimit),
			ValidAfter:           hexToUint256(result.ReturnInfo.ValidAfter),
			ValidUntil:           hexToUint256(result.ReturnInfo.ValidUntil),
			SigFailed:            result.ReturnInfo.SigFailed,
		},
		SenderInfo:    result.SenderInfo.toStakeInfo(),
		FactoryInfo:   result.FactoryInfo.toStakeInfo(),
		PaymasterInfo: result.PaymasterInfo.toStakeInfo(),
	}
	if result.Aggregator != "" {
		a := common.HexToAddress(result.Aggregator)
		out.AggregatorAddr = &a
	}
	if result.AggregatorInfo != nil {
		info := result.AggregatorInfo.toStakeInfo()
		out.AggregatorInfo = &info
	}
	return out, nil
}

type rpcStakeInfo struct {
	Stake           string `json:"stake"`
	UnstakeDelaySec string `json:"unstakeDelaySec"`
}

func (s rpcStakeInfo) toStakeInfo() uop.StakeInfo {
	return uop.StakeInfo{Stake: hexToUint256(s.Stake), UnstakeDelaySec: hexToUint256(s.UnstakeDelaySec)}
}

func (c *JSONRPCClient) SimulateValidationTrace(ctx context.Context, u *uop.UserOperation, entryPoint common.Address) ([]byte, error) {
	var result json.RawMessage
	err := c.call(ctx, "debug_traceUserOperationValidation", []interface{}{packUserOp(u), entryPoint.Hex()}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *JSONRPCClient) GetBlock(ctx context.Context) (*Block, error) {
	var result struct {
		Hash      string `json:"hash"`
		Number    string `json:"number"`
		BaseFee   string `json:"baseFeePerGas"`
		Timestamp string `json:"timestamp"`
	}
	err := c.call(ctx, "eth_getBlockByNumber", []interface{}{"latest", false}, &result)
	if err != nil {
		return nil, err
	}
	return &Block{
		Hash:      common.HexToHash(result.Hash),
		Number:    hexToUint64(result.Number),
		BaseFee:   hexToUint256(result.BaseFee),
		Timestamp: hexToUint64(result.Timestamp),
	}, nil
}

func (c *JSONRPCClient) EstimateGas(ctx context.Context, u *uop.UserOperation, entryPoint common.Address) (*uint256.Int, error) {
	var result string
	err := c.call(ctx, "eth_estimateUserOperationGas", []interface{}{packUserOp(u), entryPoint.Hex()}, &result)
	if err != nil {
		return nil, err
	}
	return hexToUint256(result), nil
}

func (c *JSONRPCClient) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	var result string
	err := c.call(ctx, "eth_getCode", []interface{}{addr.Hex(), "latest"}, &result)
	if err != nil {
		return nil, err
	}
	if result == "" || result == "0x" {
		return nil, nil
	}
	return common.FromHex(result), nil
}

func (c *JSONRPCClient) BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var result string
	err := c.call(ctx, "eth_getBalance", []interface{}{addr.Hex(), "latest"}, &result)
	if err != nil {
		return nil, err
	}
	return hexToUint256(result), nil
}

func (c *JSONRPCClient) DepositOf(ctx context.Context, entryPoint, addr common.Address) (*uint256.Int, error) {
	var result struct {
		Deposit string `json:"deposit"`
	}
	err := c.call(ctx, "eth_getDepositInfo", []interface{}{entryPoint.Hex(), addr.Hex()}, &result)
	if err != nil {
		return nil, err
	}
	return hexToUint256(result.Deposit), nil
}

func (c *JSONRPCClient) StakeOf(ctx context.Context, entryPoint, addr common.Address) (uop.StakeInfo, error) {
	var result struct {
		Stake           string `json:"stake"`
		UnstakeDelaySec string `json:"unstakeDelaySec"`
	}
	err := c.call(ctx, "eth_getDepositInfo", []interface{}{entryPoint.Hex(), addr.Hex()}, &result)
	if err != nil {
		return uop.StakeInfo{}, err
	}
	return uop.StakeInfo{Stake: hexToUint256(result.Stake), UnstakeDelaySec: hexToUint256(result.UnstakeDelaySec)}, nil
}

var _ Client = (*JSONRPCClient)(nil)
