package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/warden/internal/platform/config"
	"github.com/louisbranch/warden/internal/platform/timeouts"
	"github.com/louisbranch/warden/internal/wallet/account"
)

// RPCConfig controls the JSON-RPC chain provider connection.
type RPCConfig struct {
	URL          string        `env:"WARDEN_CHAIN_RPC_URL"           envDefault:"http://localhost:8545"`
	Timeout      time.Duration `env:"WARDEN_CHAIN_RPC_TIMEOUT"       envDefault:"10s"`
	ReadAttempts int           `env:"WARDEN_CHAIN_RPC_READ_ATTEMPTS" envDefault:"3"`
}

// LoadRPCConfigFromEnv returns chain RPC configuration with defaults.
func LoadRPCConfigFromEnv() RPCConfig {
	var cfg RPCConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return RPCConfig{URL: "http://localhost:8545", Timeout: timeouts.HTTPRequest, ReadAttempts: 3}
	}
	if cfg.ReadAttempts < 1 {
		cfg.ReadAttempts = 1
	}
	return cfg
}

// RPCClient implements Client over JSON-RPC 2.0.
type RPCClient struct {
	config     RPCConfig
	httpClient *http.Client
}

// NewRPCClient creates a chain client for the configured provider.
func NewRPCClient(config RPCConfig) *RPCClient {
	if config.ReadAttempts < 1 {
		config.ReadAttempts = 1
	}
	return &RPCClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("call %s: rpc error %d: %s", method, decoded.Error.Code, decoded.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// read retries an idempotent call up to the configured attempt count.
func (c *RPCClient) read(ctx context.Context, method string, params []any, result any) error {
	var lastErr error
	for attempt := 0; attempt < c.config.ReadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.call(ctx, method, params, result)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// IsDeployed reports whether contract code is present at the address.
func (c *RPCClient) IsDeployed(ctx context.Context, addr account.Address) (bool, error) {
	var code string
	if err := c.read(ctx, "wallet_getCode", []any{string(addr)}, &code); err != nil {
		return false, err
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(code), "0x")
	return trimmed != "", nil
}

type rpcAccountConfig struct {
	TwoFactor     bool     `json:"twoFactor"`
	Guardians     []string `json:"guardians"`
	Threshold     int      `json:"threshold"`
	TimelockSecs  int64    `json:"timelockSeconds"`
}

// AccountConfig reads the two-factor flag, guardian set, and timelock settings.
func (c *RPCClient) AccountConfig(ctx context.Context, addr account.Address) (AccountConfig, error) {
	var raw rpcAccountConfig
	if err := c.read(ctx, "wallet_getAccountConfig", []any{string(addr)}, &raw); err != nil {
		return AccountConfig{}, err
	}
	config := AccountConfig{
		TwoFactor:     raw.TwoFactor,
		Threshold:     raw.Threshold,
		TimelockDelay: time.Duration(raw.TimelockSecs) * time.Second,
	}
	for _, guardian := range raw.Guardians {
		parsed, err := account.ParseAddress(guardian)
		if err != nil {
			return AccountConfig{}, fmt.Errorf("parse guardian address: %w", err)
		}
		config.Guardians = append(config.Guardians, parsed)
	}
	return config, nil
}

type rpcOperation struct {
	Account  string         `json:"account"`
	To       string         `json:"to"`
	Value    string         `json:"value"`
	CallData string         `json:"callData"`
	Nonce    uint64         `json:"nonce"`
	Sigs     []rpcSignature `json:"signatures"`
}

type rpcSignature struct {
	Domain    string `json:"domain"`
	Signature string `json:"signature"`
}

// SubmitOperation submits a fully signed operation and returns its tx id.
// Submission is not retried: retries must come from the caller with a fresh
// nonce so a lost response cannot double-apply.
func (c *RPCClient) SubmitOperation(ctx context.Context, op Operation, signatures []Signature) (string, error) {
	value := "0x0"
	if op.Value != nil {
		value = "0x" + op.Value.Text(16)
	}
	encoded := rpcOperation{
		Account:  string(op.Account),
		To:       string(op.To),
		Value:    value,
		CallData: "0x" + hex.EncodeToString(op.CallData),
		Nonce:    op.Nonce,
	}
	for _, sig := range signatures {
		encoded.Sigs = append(encoded.Sigs, rpcSignature{
			Domain:    string(sig.Domain),
			Signature: "0x" + hex.EncodeToString(sig.Bytes),
		})
	}

	var txID string
	if err := c.call(ctx, "wallet_submitOperation", []any{encoded}, &txID); err != nil {
		return "", err
	}
	return txID, nil
}

// OperationStatus reads the inclusion status for a submitted operation.
func (c *RPCClient) OperationStatus(ctx context.Context, txID string) (TxStatus, error) {
	var raw string
	if err := c.read(ctx, "wallet_getOperationStatus", []any{txID}, &raw); err != nil {
		return "", err
	}
	switch TxStatus(raw) {
	case TxStatusPending, TxStatusConfirmed, TxStatusFailed, TxStatusNotFound:
		return TxStatus(raw), nil
	default:
		return "", fmt.Errorf("unknown operation status %q", raw)
	}
}

var _ Client = (*RPCClient)(nil)
