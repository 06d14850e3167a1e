// Package credential creates and inspects the hardware-backed passkey that
// anchors a device to a smart account. The private key never leaves the
// platform authenticator; this package only ever sees the public half.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
	"golang.org/x/crypto/hkdf"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/storage"
)

// Sentinel errors surfaced by enrollment. Platform refusals pass through
// verbatim and are never retried automatically.
var (
	ErrCredentialExists     = errors.New(errors.CodeCredentialExists, "a passkey already exists for this account on this device")
	ErrUnsupportedPlatform  = errors.New(errors.CodeCredentialUnsupportedPlatform, "platform authenticator is not available")
	ErrUserCancelled        = errors.New(errors.CodeCredentialUserCancelled, "user cancelled the passkey ceremony")
	ErrMalformedAttestation = errors.New(errors.CodeCredentialMalformedAttestation, "attestation object could not be decoded")
	ErrNoCredentialFound    = errors.New(errors.CodeCredentialNotFound, "no resident credential found")
)

// Credential is a device-local passkey bound to an account.
type Credential struct {
	ID        string `json:"id"`
	RawID     []byte `json:"raw_id"`
	PublicKey account.PublicKeyPoint
	Challenge []byte    `json:"challenge"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON flattens the public key into decimal strings so the record
// survives JSON round-trips without float coercion.
func (c Credential) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID         string    `json:"id"`
		RawID      []byte    `json:"raw_id"`
		PublicKeyX string    `json:"public_key_x"`
		PublicKeyY string    `json:"public_key_y"`
		Challenge  []byte    `json:"challenge"`
		CreatedAt  time.Time `json:"created_at"`
	}
	encoded := alias{
		ID:        c.ID,
		RawID:     c.RawID,
		Challenge: c.Challenge,
		CreatedAt: c.CreatedAt,
	}
	if c.PublicKey.X != nil {
		encoded.PublicKeyX = c.PublicKey.X.String()
	}
	if c.PublicKey.Y != nil {
		encoded.PublicKeyY = c.PublicKey.Y.String()
	}
	return json.Marshal(encoded)
}

// UnmarshalJSON restores a credential from its stored form.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var decoded struct {
		ID         string    `json:"id"`
		RawID      []byte    `json:"raw_id"`
		PublicKeyX string    `json:"public_key_x"`
		PublicKeyY string    `json:"public_key_y"`
		Challenge  []byte    `json:"challenge"`
		CreatedAt  time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	c.ID = decoded.ID
	c.RawID = decoded.RawID
	c.Challenge = decoded.Challenge
	c.CreatedAt = decoded.CreatedAt
	c.PublicKey = account.PublicKeyPoint{}
	if decoded.PublicKeyX != "" {
		x, ok := new(big.Int).SetString(decoded.PublicKeyX, 10)
		if !ok {
			return fmt.Errorf("decode public key x")
		}
		c.PublicKey.X = x
	}
	if decoded.PublicKeyY != "" {
		y, ok := new(big.Int).SetString(decoded.PublicKeyY, 10)
		if !ok {
			return fmt.Errorf("decode public key y")
		}
		c.PublicKey.Y = y
	}
	return nil
}

// Discovery reports the result of an advisory resident-credential probe.
//
// An assertion cannot recover a public key, so discovery only proves that
// some credential exists; it never substitutes for creation.
type Discovery struct {
	CredentialID string
}

// Authenticator runs the platform credential ceremonies. Implementations
// bridge to the device's WebAuthn surface; a fake drives tests.
type Authenticator interface {
	Create(ctx context.Context, options *protocol.CredentialCreation) (*protocol.ParsedCredentialCreationData, error)
	Assert(ctx context.Context, options *protocol.CredentialAssertion) (*protocol.ParsedCredentialAssertionData, error)
}

// ceremonyProvider abstracts the WebAuthn relying-party operations so tests
// can substitute a fake without a full ceremony.
type ceremonyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
}

// Enroller creates and discovers device passkeys for accounts.
type Enroller struct {
	config        Config
	provider      ceremonyProvider
	authenticator Authenticator
	credentials   storage.CredentialStore
	clock         func() time.Time
}

// NewEnroller builds an enroller from relying-party configuration.
func NewEnroller(config Config, authenticator Authenticator, credentials storage.CredentialStore) (*Enroller, error) {
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	provider, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPDisplayName,
		RPID:          config.RPID,
		RPOrigins:     config.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Enroller{
		config:        config,
		provider:      provider,
		authenticator: authenticator,
		credentials:   credentials,
		clock:         time.Now,
	}, nil
}

// walletUser adapts an account to the WebAuthn user contract.
type walletUser struct {
	handle  []byte
	name    string
	display string
}

func (u *walletUser) WebAuthnID() []byte                         { return u.handle }
func (u *walletUser) WebAuthnName() string                       { return u.name }
func (u *walletUser) WebAuthnDisplayName() string                { return u.display }
func (u *walletUser) WebAuthnIcon() string                       { return "" }
func (u *walletUser) WebAuthnCredentials() []webauthn.Credential { return nil }

// deriveUserHandle maps the owner address to a stable 32-byte user handle.
//
// The handle makes repeated enrollments by the same owner recognizable to the
// authenticator; the key pair itself is freshly random on every creation.
func deriveUserHandle(rpID string, addr account.Address) ([]byte, error) {
	reader := hkdf.New(sha256.New, addr.Bytes(), []byte(rpID), []byte("warden passkey user handle"))
	handle := make([]byte, 32)
	if _, err := io.ReadFull(reader, handle); err != nil {
		return nil, fmt.Errorf("derive user handle: %w", err)
	}
	return handle, nil
}

// CreateCredential runs the attestation ceremony and persists the resulting
// passkey. A device holds at most one passkey per account: when one already
// exists the call fails and the caller must ClearCredential explicitly first.
func (e *Enroller) CreateCredential(ctx context.Context, acct account.Account) (Credential, error) {
	if _, err := e.credentials.GetCredential(ctx, string(acct.Address)); err == nil {
		return Credential{}, ErrCredentialExists
	} else if code := errors.CodeOf(err); code != errors.CodeNotFound {
		return Credential{}, fmt.Errorf("check existing credential: %w", err)
	}

	handle, err := deriveUserHandle(e.config.RPID, acct.Address)
	if err != nil {
		return Credential{}, err
	}
	user := &walletUser{
		handle:  handle,
		name:    string(acct.Address),
		display: acct.OwnerID,
	}

	creation, session, err := e.provider.BeginRegistration(user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithConveyancePreference(protocol.PreferDirectAttestation),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationRequired,
		}),
		webauthn.WithCredentialParameters([]protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
		}),
	)
	if err != nil {
		return Credential{}, fmt.Errorf("begin registration: %w", err)
	}

	parsed, err := e.authenticator.Create(ctx, creation)
	if err != nil {
		// Platform refusals surface verbatim per the error contract.
		return Credential{}, err
	}

	validated, err := e.provider.CreateCredential(user, *session, parsed)
	if err != nil {
		return Credential{}, fmt.Errorf("validate credential: %w", err)
	}

	point, err := parseCOSEKey(validated.PublicKey)
	if err != nil {
		return Credential{}, err
	}

	challenge, err := base64.RawURLEncoding.DecodeString(session.Challenge)
	if err != nil {
		return Credential{}, fmt.Errorf("decode challenge: %w", err)
	}

	created := Credential{
		ID:        base64.RawURLEncoding.EncodeToString(validated.ID),
		RawID:     validated.ID,
		PublicKey: point,
		Challenge: challenge,
		CreatedAt: e.clock().UTC(),
	}
	if err := e.save(ctx, acct.Address, created); err != nil {
		return Credential{}, err
	}
	return created, nil
}

// DiscoverExisting probes for any resident credential on the device.
func (e *Enroller) DiscoverExisting(ctx context.Context) (Discovery, error) {
	assertion, _, err := e.provider.BeginDiscoverableLogin()
	if err != nil {
		return Discovery{}, fmt.Errorf("begin discovery: %w", err)
	}
	parsed, err := e.authenticator.Assert(ctx, assertion)
	if err != nil {
		return Discovery{}, err
	}
	return Discovery{
		CredentialID: base64.RawURLEncoding.EncodeToString(parsed.RawID),
	}, nil
}

// LoadCredential returns the locally persisted passkey for an account.
func (e *Enroller) LoadCredential(ctx context.Context, addr account.Address) (Credential, error) {
	record, err := e.credentials.GetCredential(ctx, string(addr))
	if err != nil {
		return Credential{}, err
	}
	var credential Credential
	if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
		return Credential{}, fmt.Errorf("decode stored credential: %w", err)
	}
	return credential, nil
}

// ClearCredential removes the local passkey record for an account, allowing
// a subsequent CreateCredential to run.
func (e *Enroller) ClearCredential(ctx context.Context, addr account.Address) error {
	return e.credentials.DeleteCredential(ctx, string(addr))
}

func (e *Enroller) save(ctx context.Context, addr account.Address, credential Credential) error {
	payload, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	now := e.clock().UTC()
	return e.credentials.PutCredential(ctx, storage.CredentialRecord{
		AccountAddress: string(addr),
		CredentialID:   credential.ID,
		CredentialJSON: string(payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
