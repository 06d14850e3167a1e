package pairing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/warden/internal/wallet/account"
)

type fakeStoreClient struct {
	created    *CreateSessionRequest
	createInfo SessionInfo
	createErr  error

	states   []SessionState
	stateErr error
	getCalls int

	completed map[string]DeviceData
}

func (f *fakeStoreClient) CreateSession(_ context.Context, req CreateSessionRequest) (SessionInfo, error) {
	f.created = &req
	if f.createErr != nil {
		return SessionInfo{}, f.createErr
	}
	if f.createInfo.ID == "" {
		f.createInfo = SessionInfo{ID: req.SessionID}
	}
	return f.createInfo, nil
}

func (f *fakeStoreClient) GetSession(context.Context, string) (SessionState, error) {
	if f.stateErr != nil {
		return SessionState{}, f.stateErr
	}
	state := f.states[len(f.states)-1]
	if f.getCalls < len(f.states) {
		state = f.states[f.getCalls]
	}
	f.getCalls++
	return state, nil
}

func (f *fakeStoreClient) CompleteSession(_ context.Context, sessionID string, device DeviceData) error {
	if f.completed == nil {
		f.completed = make(map[string]DeviceData)
	}
	f.completed[sessionID] = device
	return nil
}

type fakeOwner struct {
	grants []string
}

func (f *fakeOwner) SignPairingGrant(sessionID string, addr account.Address, expiresAt time.Time) (string, error) {
	grant := "grant:" + sessionID + ":" + string(addr) + ":" + expiresAt.UTC().Format(time.RFC3339)
	f.grants = append(f.grants, grant)
	return grant, nil
}

func (f *fakeOwner) PublicKeyBytes() []byte { return []byte{0x04, 0x01, 0x02} }

func testCoordinator(t *testing.T, store StoreClient) (*Coordinator, *time.Time) {
	t.Helper()
	coordinator, err := NewCoordinator(store, "https://wallet.example")
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coordinator.clock = func() time.Time { return now }
	coordinator.sleep = func(ctx context.Context, d time.Duration) error {
		now = now.Add(d)
		return ctx.Err()
	}
	coordinator.newID = func() (string, error) { return "session-test-id", nil }
	return coordinator, &now
}

func TestCreateSessionSignsGrantOverSessionID(t *testing.T) {
	store := &fakeStoreClient{}
	coordinator, _ := testCoordinator(t, store)
	owner := &fakeOwner{}
	addr := account.Address("0x1111111111111111111111111111111111111111")

	session, err := coordinator.CreateSession(context.Background(), owner, addr)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "session-test-id" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	if store.created == nil {
		t.Fatal("expected store create call")
	}
	if store.created.OwnerGrant == "" || !strings.Contains(store.created.OwnerGrant, "session-test-id") {
		t.Fatalf("expected grant bound to session id, got %q", store.created.OwnerGrant)
	}
	if len(store.created.OwnerPublicKey) == 0 {
		t.Fatal("expected owner public key in create request")
	}

	link := session.Link()
	want := "https://wallet.example/register-device?session=session-test-id"
	if link != want {
		t.Fatalf("expected link %q, got %q", want, link)
	}
}

func TestPollUntilCompleteReturnsDevice(t *testing.T) {
	device := DeviceData{Version: 1, Name: "Pixel", Kind: "mobile", CredentialID: "c", RawID: []byte("r"), PublicKeyX: "1", PublicKeyY: "2"}
	store := &fakeStoreClient{states: []SessionState{
		{Status: SessionPending},
		{Status: SessionPending},
		{Status: SessionCompleted, Device: &device},
	}}
	coordinator, _ := testCoordinator(t, store)

	got, err := coordinator.PollUntilComplete(context.Background(), "session-test-id", time.Minute, 2*time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got.Name != "Pixel" {
		t.Fatalf("unexpected device %+v", got)
	}
	if store.getCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", store.getCalls)
	}
}

func TestPollUntilCompleteTimesOut(t *testing.T) {
	store := &fakeStoreClient{states: []SessionState{{Status: SessionPending}}}
	coordinator, _ := testCoordinator(t, store)

	_, err := coordinator.PollUntilComplete(context.Background(), "session-test-id", 10*time.Second, 3*time.Second)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected poll timeout, got %v", err)
	}
	// 0s, 3s, 6s, then 9s+3s would overshoot the 10s budget.
	if store.getCalls != 4 {
		t.Fatalf("expected 4 polls before timeout, got %d", store.getCalls)
	}
}

func TestPollUntilCompleteFailsFastOnExpiry(t *testing.T) {
	store := &fakeStoreClient{stateErr: ErrSessionExpired}
	coordinator, _ := testCoordinator(t, store)

	_, err := coordinator.PollUntilComplete(context.Background(), "session-test-id", time.Minute, time.Second)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected immediate expiry failure, got %v", err)
	}
	if store.getCalls != 0 {
		t.Fatalf("expected no successful polls, got %d", store.getCalls)
	}
}

func TestPollUntilCompleteStopsOnContextCancel(t *testing.T) {
	store := &fakeStoreClient{states: []SessionState{{Status: SessionPending}}}
	coordinator, err := NewCoordinator(store, "https://wallet.example")
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coordinator.clock = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	coordinator.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err = coordinator.PollUntilComplete(ctx, "session-test-id", time.Minute, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCompleteSessionForwardsDevice(t *testing.T) {
	store := &fakeStoreClient{}
	coordinator, _ := testCoordinator(t, store)
	device := DeviceData{Version: 1, Name: "Pixel", Kind: "mobile", CredentialID: "c", RawID: []byte("r"), PublicKeyX: "1", PublicKeyY: "2"}

	if err := coordinator.CompleteSession(context.Background(), "session-test-id", device); err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if got, ok := store.completed["session-test-id"]; !ok || got.Name != "Pixel" {
		t.Fatalf("expected completion forwarded, got %+v", store.completed)
	}
}
