package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/warden/internal/wallet/account"
)

// rpcHandler answers JSON-RPC calls from a method table.
func rpcHandler(t *testing.T, methods map[string]func(params []json.RawMessage) (any, error)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		handler, ok := methods[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		result, err := handler(req.Params)
		if err != nil {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": -32000, "message": err.Error()},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *RPCClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRPCClient(RPCConfig{URL: server.URL, Timeout: 5 * time.Second, ReadAttempts: 3})
}

func TestIsDeployed(t *testing.T) {
	codes := map[account.Address]string{
		testAccount: "0x6080",
		testTarget:  "0x",
	}
	client := testClient(t, rpcHandler(t, map[string]func([]json.RawMessage) (any, error){
		"wallet_getCode": func(params []json.RawMessage) (any, error) {
			var addr string
			if err := json.Unmarshal(params[0], &addr); err != nil {
				return nil, err
			}
			return codes[account.Address(addr)], nil
		},
	}))

	deployed, err := client.IsDeployed(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("is deployed: %v", err)
	}
	if !deployed {
		t.Fatal("expected account with code to be deployed")
	}

	deployed, err = client.IsDeployed(context.Background(), testTarget)
	if err != nil {
		t.Fatalf("is deployed: %v", err)
	}
	if deployed {
		t.Fatal("expected account without code to be undeployed")
	}
}

func TestReadRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "0x6080"})
	}))
	t.Cleanup(server.Close)

	client := NewRPCClient(RPCConfig{URL: server.URL, Timeout: 5 * time.Second, ReadAttempts: 3})
	deployed, err := client.IsDeployed(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("expected read to succeed after retries: %v", err)
	}
	if !deployed {
		t.Fatal("expected deployed result after retry")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestAccountConfig(t *testing.T) {
	client := testClient(t, rpcHandler(t, map[string]func([]json.RawMessage) (any, error){
		"wallet_getAccountConfig": func(params []json.RawMessage) (any, error) {
			return map[string]any{
				"twoFactor":       true,
				"guardians":       []string{string(testTarget)},
				"threshold":       1,
				"timelockSeconds": 3600,
			}, nil
		},
	}))

	config, err := client.AccountConfig(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("account config: %v", err)
	}
	if !config.TwoFactor {
		t.Fatal("expected two-factor enabled")
	}
	if len(config.Guardians) != 1 || config.Guardians[0] != testTarget {
		t.Fatalf("unexpected guardians %v", config.Guardians)
	}
	if config.TimelockDelay != time.Hour {
		t.Fatalf("expected 1h timelock, got %v", config.TimelockDelay)
	}
}

func TestSubmitOperationEncodesSignatures(t *testing.T) {
	var submitted rpcOperation
	client := testClient(t, rpcHandler(t, map[string]func([]json.RawMessage) (any, error){
		"wallet_submitOperation": func(params []json.RawMessage) (any, error) {
			if err := json.Unmarshal(params[0], &submitted); err != nil {
				return nil, err
			}
			return "0xtx1", nil
		},
	}))

	op := Operation{Account: testAccount, To: testTarget, Value: big.NewInt(5), Nonce: 9}
	sigs := []Signature{
		{Domain: account.FactorOwner, Bytes: []byte{0xaa}},
		{Domain: account.FactorPasskey, Bytes: []byte{0xbb}},
	}
	txID, err := client.SubmitOperation(context.Background(), op, sigs)
	if err != nil {
		t.Fatalf("submit operation: %v", err)
	}
	if txID != "0xtx1" {
		t.Fatalf("expected tx id 0xtx1, got %q", txID)
	}
	if submitted.Nonce != 9 || submitted.Value != "0x5" {
		t.Fatalf("unexpected encoded operation %+v", submitted)
	}
	if len(submitted.Sigs) != 2 || submitted.Sigs[0].Domain != "owner" || submitted.Sigs[1].Domain != "passkey" {
		t.Fatalf("unexpected encoded signatures %+v", submitted.Sigs)
	}
}

func TestOperationStatusRejectsUnknownValues(t *testing.T) {
	client := testClient(t, rpcHandler(t, map[string]func([]json.RawMessage) (any, error){
		"wallet_getOperationStatus": func(params []json.RawMessage) (any, error) {
			return "half-done", nil
		},
	}))
	if _, err := client.OperationStatus(context.Background(), "0xtx1"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}
