// Package pairing hosts the shared session store for cross-device
// enrollment. Sessions are bearer-addressed: knowing an unguessable session
// ID is the capability, and creating one additionally requires a signed
// owner grant.
package pairing

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math/big"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/authz"
	walletpairing "github.com/louisbranch/warden/internal/wallet/pairing"
)

const maxBodyBytes = 64 << 10

// Server exposes the session store HTTP API.
type Server struct {
	config Config
	store  *Store
	clock  func() time.Time
	tracer trace.Tracer
}

// NewServer builds a session store server over its persistence.
func NewServer(config Config, store *Store) *Server {
	return &Server{
		config: config,
		store:  store,
		clock:  time.Now,
		tracer: otel.Tracer("warden/services/pairing"),
	}
}

// RegisterRoutes registers the session API on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("PUT /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleCompleteSession)
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// StartCleanup starts periodic removal of expired sessions.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.store.CleanupExpired(s.clock().UTC()); removed > 0 {
					log.Printf("removed %d expired pairing sessions", removed)
				}
			}
		}
	}()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "pairing.create_session")
	defer span.End()

	var req walletpairing.CreateSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.CodeSessionInvalidDevice, "decode create request", err))
		return
	}
	if req.SessionID == "" || len(req.SessionID) > 128 {
		writeError(w, errors.New(errors.CodeSessionInvalidDevice, "session id must be 1-128 characters"))
		return
	}
	addr, err := account.ParseAddress(req.AccountAddress)
	if err != nil {
		writeError(w, err)
		return
	}

	verifier, err := ownerVerifier(req.OwnerPublicKey, addr)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := verifier.VerifyPairingGrant(req.OwnerGrant, req.SessionID, addr); err != nil {
		writeError(w, err)
		return
	}

	now := s.clock().UTC()
	session := Session{
		ID:             req.SessionID,
		AccountAddress: string(addr),
		OwnerPublicKey: req.OwnerPublicKey,
		Status:         walletpairing.SessionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, walletpairing.SessionInfo{
		ID:        session.ID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "pairing.get_session")
	defer span.End()

	session, err := s.store.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	now := s.clock().UTC()
	if session.Status == walletpairing.SessionPending && !session.ExpiresAt.After(now) {
		writeError(w, errors.New(errors.CodeSessionExpired, "pairing session has expired"))
		return
	}

	state := walletpairing.SessionState{
		Status:    session.Status,
		ExpiresAt: session.ExpiresAt,
	}
	if session.Status == walletpairing.SessionCompleted && session.DeviceJSON != "" {
		device, err := walletpairing.ParseDeviceData([]byte(session.DeviceJSON))
		if err != nil {
			writeError(w, err)
			return
		}
		state.Device = &device
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "pairing.complete_session")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeSessionInvalidDevice, "read device data", err))
		return
	}
	device, err := walletpairing.ParseDeviceData(body)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := json.Marshal(device)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.CompleteSession(ctx, r.PathValue("id"), string(payload), s.clock().UTC()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownerVerifier validates the uncompressed owner public key and binds it to
// the claimed account address before building a grant verifier. The binding
// is cryptographic: the account address is derived from the key itself.
func ownerVerifier(ownerPublicKey []byte, addr account.Address) (*authz.OwnerVerifier, error) {
	if len(ownerPublicKey) != 65 || ownerPublicKey[0] != 0x04 {
		return nil, errors.New(errors.CodeSessionOwnerSignature, "owner public key must be a 65-byte uncompressed point")
	}
	derived, err := account.DeriveAddress(ownerPublicKey)
	if err != nil {
		return nil, errors.Wrap(errors.CodeSessionOwnerSignature, "derive account address", err)
	}
	if derived != addr {
		return nil, errors.New(errors.CodeSessionOwnerSignature, "owner public key does not control this account")
	}
	point := account.PublicKeyPoint{
		X: new(big.Int).SetBytes(ownerPublicKey[1:33]),
		Y: new(big.Int).SetBytes(ownerPublicKey[33:65]),
	}
	return authz.NewOwnerVerifier(point), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}
