package pairing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/authz"
	walletpairing "github.com/louisbranch/warden/internal/wallet/pairing"
)

type testEnv struct {
	server  *Server
	store   *Store
	client  *walletpairing.HTTPStoreClient
	httpSrv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := OpenStore(t.TempDir() + "/pairing.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	server := NewServer(Config{SessionTTL: 10 * time.Minute}, store)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpSrv := httptest.NewServer(mux)
	t.Cleanup(httpSrv.Close)

	client, err := walletpairing.NewHTTPStoreClient(httpSrv.URL, httpSrv.Client())
	if err != nil {
		t.Fatalf("new store client: %v", err)
	}
	return &testEnv{server: server, store: store, client: client, httpSrv: httpSrv}
}

type ownerFixture struct {
	key  *authz.OwnerKey
	addr account.Address
}

func newOwnerFixture(t *testing.T) ownerFixture {
	t.Helper()
	key, err := authz.GenerateOwnerKey()
	if err != nil {
		t.Fatalf("generate owner key: %v", err)
	}
	addr, err := key.Address()
	if err != nil {
		t.Fatalf("derive address: %v", err)
	}
	return ownerFixture{key: key, addr: addr}
}

func (o ownerFixture) createRequest(t *testing.T, sessionID string) walletpairing.CreateSessionRequest {
	t.Helper()
	grant, err := o.key.SignPairingGrant(sessionID, o.addr, time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	return walletpairing.CreateSessionRequest{
		SessionID:      sessionID,
		AccountAddress: string(o.addr),
		OwnerPublicKey: o.key.PublicKeyBytes(),
		OwnerGrant:     grant,
	}
}

func testDeviceData() walletpairing.DeviceData {
	return walletpairing.DeviceData{
		Version:      1,
		Name:         "Pixel 9",
		Kind:         "mobile",
		CredentialID: "cred-abc",
		RawID:        []byte("raw-abc"),
		PublicKeyX:   "7",
		PublicKeyY:   "9",
		Attestation:  map[string]string{"fmt": "packed"},
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	ctx := context.Background()

	info, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-lifecycle"))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if info.ID != "session-lifecycle" {
		t.Fatalf("unexpected session id %q", info.ID)
	}
	if !info.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", info.ExpiresAt)
	}

	state, err := env.client.GetSession(ctx, info.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if state.Status != walletpairing.SessionPending || state.Device != nil {
		t.Fatalf("unexpected pending state %+v", state)
	}

	if err := env.client.CompleteSession(ctx, info.ID, testDeviceData()); err != nil {
		t.Fatalf("complete session: %v", err)
	}

	state, err = env.client.GetSession(ctx, info.ID)
	if err != nil {
		t.Fatalf("get completed session: %v", err)
	}
	if state.Status != walletpairing.SessionCompleted {
		t.Fatalf("expected completed, got %q", state.Status)
	}
	if state.Device == nil || state.Device.Name != "Pixel 9" {
		t.Fatalf("expected device data, got %+v", state.Device)
	}
	if string(state.Device.RawID) != "raw-abc" {
		t.Fatalf("expected raw credential id to survive the round trip, got %q", state.Device.RawID)
	}
	if state.Device.Attestation["fmt"] != "packed" {
		t.Fatalf("expected attestation metadata to survive the round trip, got %+v", state.Device.Attestation)
	}
}

func TestCompleteSessionIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	ctx := context.Background()

	if _, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-once")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := env.client.CompleteSession(ctx, "session-once", testDeviceData()); err != nil {
		t.Fatalf("first completion: %v", err)
	}

	second := testDeviceData()
	second.Name = "Racing Device"
	err := env.client.CompleteSession(ctx, "session-once", second)
	if !errors.Is(err, walletpairing.ErrSessionCompleted) {
		t.Fatalf("expected already-completed rejection, got %v", err)
	}

	// First writer's data is the one that sticks.
	state, err := env.client.GetSession(ctx, "session-once")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if state.Device.Name != "Pixel 9" {
		t.Fatalf("expected first writer to win, got %+v", state.Device)
	}
}

func TestCreateSessionRejectsBadGrant(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)

	// Grant signed for a different session ID.
	req := owner.createRequest(t, "session-a")
	req.SessionID = "session-b"
	_, err := env.client.CreateSession(context.Background(), req)
	if !errors.Is(err, walletpairing.ErrOwnerSignature) {
		t.Fatalf("expected owner signature rejection, got %v", err)
	}
}

func TestCreateSessionRejectsForeignOwnerKey(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	imposter := newOwnerFixture(t)

	// The imposter signs a valid grant, but their key does not derive the
	// claimed account address.
	req := imposter.createRequest(t, "session-foreign")
	req.AccountAddress = string(owner.addr)
	grant, err := imposter.key.SignPairingGrant("session-foreign", owner.addr, time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	req.OwnerGrant = grant

	_, err = env.client.CreateSession(context.Background(), req)
	if !errors.Is(err, walletpairing.ErrOwnerSignature) {
		t.Fatalf("expected key binding rejection, got %v", err)
	}
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	ctx := context.Background()

	if _, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-dup")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-dup"))
	if err == nil {
		t.Fatal("expected duplicate session rejection")
	}
}

func TestGetSessionMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.GetSession(context.Background(), "nope")
	if !errors.Is(err, walletpairing.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	ctx := context.Background()

	if _, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-exp")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	env.server.clock = func() time.Time { return time.Now().Add(11 * time.Minute) }

	if _, err := env.client.GetSession(ctx, "session-exp"); !errors.Is(err, walletpairing.ErrSessionExpired) {
		t.Fatalf("expected expired on read, got %v", err)
	}
	if err := env.client.CompleteSession(ctx, "session-exp", testDeviceData()); !errors.Is(err, walletpairing.ErrSessionExpired) {
		t.Fatalf("expected expired on completion, got %v", err)
	}
}

func TestCompleteSessionRejectsMalformedDevice(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwnerFixture(t)
	ctx := context.Background()

	if _, err := env.client.CreateSession(ctx, owner.createRequest(t, "session-bad-dev")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	bad := testDeviceData()
	bad.Version = 2
	err := env.client.CompleteSession(ctx, "session-bad-dev", bad)
	if !errors.Is(err, walletpairing.ErrInvalidDevice) {
		t.Fatalf("expected invalid device rejection, got %v", err)
	}

	// The failed completion must not consume the session.
	state, err := env.client.GetSession(ctx, "session-bad-dev")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if state.Status != walletpairing.SessionPending {
		t.Fatalf("expected session still pending, got %q", state.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.httpSrv.Client().Get(env.httpSrv.URL + "/up")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
