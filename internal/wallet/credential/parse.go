package credential

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
)

// attestationEnvelope is the top-level CBOR map of a WebAuthn attestation
// object. Only the authenticator data matters here; the statement is ignored.
type attestationEnvelope struct {
	AuthData     []byte         `cbor:"authData"`
	Format       string         `cbor:"fmt"`
	AttStatement map[string]any `cbor:"attStmt"`
}

// ParsePublicKey extracts the P-256 public key coordinates from a raw
// attestation object. The walk is CBOR envelope, then authenticator data,
// then the COSE-encoded credential public key.
func ParsePublicKey(attestationObject []byte) (account.PublicKeyPoint, error) {
	var envelope attestationEnvelope
	if err := cbor.Unmarshal(attestationObject, &envelope); err != nil {
		return account.PublicKeyPoint{}, errors.Wrap(errors.CodeCredentialMalformedAttestation, "decode attestation object", err)
	}
	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(envelope.AuthData); err != nil {
		return account.PublicKeyPoint{}, errors.Wrap(errors.CodeCredentialMalformedAttestation, "decode authenticator data", err)
	}
	if !authData.Flags.HasAttestedCredentialData() {
		return account.PublicKeyPoint{}, ErrMalformedAttestation
	}
	return parseCOSEKey(authData.AttData.CredentialPublicKey)
}

// parseCOSEKey decodes a COSE key and requires an EC2 key on P-256.
func parseCOSEKey(coseKey []byte) (account.PublicKeyPoint, error) {
	parsed, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return account.PublicKeyPoint{}, errors.Wrap(errors.CodeCredentialMalformedAttestation, "parse credential public key", err)
	}
	ec2, ok := parsed.(webauthncose.EC2PublicKeyData)
	if !ok {
		return account.PublicKeyPoint{}, errors.New(errors.CodeCredentialMalformedAttestation, "credential public key is not an EC2 key")
	}
	if webauthncose.COSEAlgorithmIdentifier(ec2.Algorithm) != webauthncose.AlgES256 {
		return account.PublicKeyPoint{}, errors.New(errors.CodeCredentialMalformedAttestation, "credential public key is not ES256")
	}
	return account.PublicKeyPoint{
		X: new(big.Int).SetBytes(ec2.XCoord),
		Y: new(big.Int).SetBytes(ec2.YCoord),
	}, nil
}
