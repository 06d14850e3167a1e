package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/warden/internal/platform/id"
	"github.com/louisbranch/warden/internal/wallet/account"
)

// DefaultSessionTTL bounds how long a pairing link stays usable.
const DefaultSessionTTL = 10 * time.Minute

// OwnerAuthorizer produces the owner-side authorization a session requires.
// *authz.OwnerKey satisfies it.
type OwnerAuthorizer interface {
	SignPairingGrant(sessionID string, addr account.Address, expiresAt time.Time) (string, error)
	PublicKeyBytes() []byte
}

// Session is the primary device's handle on an open pairing attempt.
type Session struct {
	ID             string
	AccountAddress account.Address
	ExpiresAt      time.Time

	origin string
}

// Link renders the URL the new device opens to join the session.
func (s Session) Link() string {
	return s.origin + "/register-device?session=" + s.ID
}

// Coordinator runs the primary-device side of pairing.
type Coordinator struct {
	store  StoreClient
	origin string
	ttl    time.Duration

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() (string, error)
}

// NewCoordinator builds a coordinator against a session store. The origin is
// the public base URL rendered into pairing links.
func NewCoordinator(store StoreClient, origin string) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store client is required")
	}
	if origin == "" {
		return nil, fmt.Errorf("public origin is required")
	}
	return &Coordinator{
		store:  store,
		origin: origin,
		ttl:    DefaultSessionTTL,
		clock:  time.Now,
		sleep:  sleepContext,
		newID:  id.NewID,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CreateSession opens a pairing session. The session ID is generated locally
// so the owner grant can be signed over it, then registered with the store.
func (c *Coordinator) CreateSession(ctx context.Context, owner OwnerAuthorizer, addr account.Address) (Session, error) {
	if owner == nil {
		return Session{}, fmt.Errorf("owner authorizer is required")
	}
	sessionID, err := c.newID()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}
	expiresAt := c.clock().UTC().Add(c.ttl)

	grant, err := owner.SignPairingGrant(sessionID, addr, expiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("sign pairing grant: %w", err)
	}

	info, err := c.store.CreateSession(ctx, CreateSessionRequest{
		SessionID:      sessionID,
		AccountAddress: string(addr),
		OwnerPublicKey: owner.PublicKeyBytes(),
		OwnerGrant:     grant,
	})
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:             info.ID,
		AccountAddress: addr,
		ExpiresAt:      info.ExpiresAt,
		origin:         c.origin,
	}, nil
}

// CompleteSession is the new-device side: publish device data exactly once.
func (c *Coordinator) CompleteSession(ctx context.Context, sessionID string, device DeviceData) error {
	return c.store.CompleteSession(ctx, sessionID, device)
}

// PollUntilComplete waits for the new device with a fixed-interval loop.
// Store-visible expiry fails immediately; running out of the local timeout
// returns ErrPollTimeout and leaves the session untouched on the server.
func (c *Coordinator) PollUntilComplete(ctx context.Context, sessionID string, timeout, interval time.Duration) (DeviceData, error) {
	if interval <= 0 {
		return DeviceData{}, fmt.Errorf("poll interval must be positive")
	}
	deadline := c.clock().UTC().Add(timeout)

	for {
		state, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return DeviceData{}, err
		}
		if state.Status == SessionCompleted {
			if state.Device == nil {
				return DeviceData{}, ErrInvalidDevice
			}
			return *state.Device, nil
		}
		if !c.clock().UTC().Add(interval).After(deadline) {
			if err := c.sleep(ctx, interval); err != nil {
				return DeviceData{}, err
			}
			continue
		}
		return DeviceData{}, ErrPollTimeout
	}
}
