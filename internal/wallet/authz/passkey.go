package authz

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/chain"
	"github.com/louisbranch/warden/internal/wallet/credential"
)

// PasskeySigner obtains the passkey-domain signature by running an assertion
// ceremony with the operation hash as the challenge. The platform prompt this
// triggers is the user-facing approval step, so the composer schedules it
// last.
type PasskeySigner struct {
	rpID          string
	credential    credential.Credential
	authenticator credential.Authenticator
}

// NewPasskeySigner binds a signer to a specific device credential.
func NewPasskeySigner(rpID string, cred credential.Credential, authenticator credential.Authenticator) *PasskeySigner {
	return &PasskeySigner{rpID: rpID, credential: cred, authenticator: authenticator}
}

// Factor identifies the passkey signer domain.
func (s *PasskeySigner) Factor() account.Factor {
	return account.FactorPasskey
}

// Sign runs the assertion ceremony. Authenticator refusals pass through
// verbatim so callers can distinguish rejection from unavailability.
func (s *PasskeySigner) Sign(ctx context.Context, opHash [32]byte) (chain.Signature, error) {
	assertion := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:        protocol.URLEncodedBase64(opHash[:]),
			RelyingPartyID:   s.rpID,
			UserVerification: protocol.VerificationRequired,
			AllowedCredentials: []protocol.CredentialDescriptor{
				{Type: protocol.PublicKeyCredentialType, CredentialID: s.credential.RawID},
			},
		},
	}
	parsed, err := s.authenticator.Assert(ctx, assertion)
	if err != nil {
		return chain.Signature{}, err
	}
	return chain.Signature{Domain: account.FactorPasskey, Bytes: parsed.Response.Signature}, nil
}
