package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/platform/timeouts"
)

// Session status values on the store wire.
const (
	SessionPending   = "pending"
	SessionCompleted = "completed"
)

// CreateSessionRequest is the PUT /sessions body. The client picks the
// session ID so the owner grant can be signed over it before the session
// exists; unguessability comes from the ID generator, not the server.
type CreateSessionRequest struct {
	SessionID      string `json:"session_id"`
	AccountAddress string `json:"account_address"`
	OwnerPublicKey []byte `json:"owner_public_key"`
	OwnerGrant     string `json:"owner_grant"`
}

// SessionInfo is the store's view of a created session.
type SessionInfo struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionState is the store's view of an existing session.
type SessionState struct {
	Status    string      `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
	Device    *DeviceData `json:"device,omitempty"`
}

// StoreClient talks to the shared session store. A fake implementation
// drives coordinator tests; HTTPStoreClient is the production one.
type StoreClient interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (SessionState, error)
	CompleteSession(ctx context.Context, sessionID string, device DeviceData) error
}

// HTTPStoreClient is the session store client over its HTTP API.
type HTTPStoreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPStoreClient builds a client for a session store base URL.
func NewHTTPStoreClient(baseURL string, httpClient *http.Client) (*HTTPStoreClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("session store base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.HTTPRequest}
	}
	return &HTTPStoreClient{baseURL: trimmed, httpClient: httpClient}, nil
}

// CreateSession registers a new pending session.
func (c *HTTPStoreClient) CreateSession(ctx context.Context, req CreateSessionRequest) (SessionInfo, error) {
	var info SessionInfo
	if err := c.do(ctx, http.MethodPut, "/sessions", req, http.StatusCreated, &info); err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// GetSession fetches the current session state.
func (c *HTTPStoreClient) GetSession(ctx context.Context, sessionID string) (SessionState, error) {
	var state SessionState
	path := "/sessions/" + sessionID
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &state); err != nil {
		return SessionState{}, err
	}
	return state, nil
}

// CompleteSession publishes the new device's data, completing the session.
func (c *HTTPStoreClient) CompleteSession(ctx context.Context, sessionID string, device DeviceData) error {
	path := "/sessions/" + sessionID
	return c.do(ctx, http.MethodPatch, path, device, http.StatusNoContent, nil)
}

func (c *HTTPStoreClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("session store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode session store response: %w", err)
		}
	}
	return nil
}

// statusError maps session store failures onto the pairing sentinels.
func statusError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrSessionNotFound
	case http.StatusGone:
		return ErrSessionExpired
	case http.StatusConflict:
		return ErrSessionCompleted
	case http.StatusUnauthorized:
		return ErrOwnerSignature
	case http.StatusBadRequest:
		if body.Message != "" {
			return errors.New(errors.CodeSessionInvalidDevice, body.Message)
		}
		return ErrInvalidDevice
	default:
		return fmt.Errorf("session store returned status %d (%s)", resp.StatusCode, body.Message)
	}
}
