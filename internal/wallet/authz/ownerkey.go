package authz

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/chain"
)

// pairingGrantAudience scopes owner grants to device pairing so an operation
// artifact can never be replayed as a pairing authorization.
const pairingGrantAudience = "warden:pairing"

// operationClaims binds an owner-domain JWS to a single operation hash.
type operationClaims struct {
	OperationHash string `json:"op_hash"`
	jwt.RegisteredClaims
}

// pairingGrantClaims binds an owner grant to one pairing session.
type pairingGrantClaims struct {
	AccountAddress string `json:"acct"`
	jwt.RegisteredClaims
}

// OwnerKey is the ES256 signing key derived from the social-login identity.
// It holds the only private key material this process ever sees; passkey
// private keys stay inside the platform authenticator.
type OwnerKey struct {
	key   *ecdsa.PrivateKey
	clock func() time.Time
}

// GenerateOwnerKey creates a fresh P-256 owner key.
func GenerateOwnerKey() (*OwnerKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate owner key: %w", err)
	}
	return &OwnerKey{key: key, clock: time.Now}, nil
}

// LoadOwnerKeyPEM parses a PEM-encoded EC private key.
func LoadOwnerKeyPEM(data []byte) (*OwnerKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in owner key data")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse owner key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("owner key must be P-256, got %s", key.Curve.Params().Name)
	}
	return &OwnerKey{key: key, clock: time.Now}, nil
}

// EncodePEM serializes the private key for storage.
func (k *OwnerKey) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(k.key)
	if err != nil {
		return nil, fmt.Errorf("encode owner key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyBytes returns the uncompressed public key for address derivation.
func (k *OwnerKey) PublicKeyBytes() []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	k.key.PublicKey.X.FillBytes(out[1:33])
	k.key.PublicKey.Y.FillBytes(out[33:65])
	return out
}

// Address derives the smart account address controlled by this key.
func (k *OwnerKey) Address() (account.Address, error) {
	return account.DeriveAddress(k.PublicKeyBytes())
}

// Verifier returns the verification half of this key.
func (k *OwnerKey) Verifier() *OwnerVerifier {
	return &OwnerVerifier{key: &k.key.PublicKey, clock: k.clock}
}

// Factor identifies the owner signer domain.
func (k *OwnerKey) Factor() account.Factor {
	return account.FactorOwner
}

// Sign produces the owner-domain signature over an operation hash: a compact
// ES256 JWS whose claims carry the hex-encoded hash.
func (k *OwnerKey) Sign(_ context.Context, opHash [32]byte) (chain.Signature, error) {
	now := k.clock().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, operationClaims{
		OperationHash: hex.EncodeToString(opHash[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(k.key)
	if err != nil {
		return chain.Signature{}, errors.Wrap(errors.CodeAuthzSignerUnavailable, "sign operation with owner key", err)
	}
	return chain.Signature{Domain: account.FactorOwner, Bytes: []byte(signed)}, nil
}

// SignPairingGrant issues the owner authorization that a pairing session
// create call must present. The grant expires with the session.
func (k *OwnerKey) SignPairingGrant(sessionID string, addr account.Address, expiresAt time.Time) (string, error) {
	now := k.clock().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, pairingGrantClaims{
		AccountAddress: string(addr),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Audience:  jwt.ClaimStrings{pairingGrantAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
	})
	signed, err := token.SignedString(k.key)
	if err != nil {
		return "", fmt.Errorf("sign pairing grant: %w", err)
	}
	return signed, nil
}

// OwnerVerifier checks owner-domain artifacts against the owner public key.
type OwnerVerifier struct {
	key   *ecdsa.PublicKey
	clock func() time.Time
}

// NewOwnerVerifier builds a verifier from a public key point.
func NewOwnerVerifier(point account.PublicKeyPoint) *OwnerVerifier {
	return &OwnerVerifier{
		key:   &ecdsa.PublicKey{Curve: elliptic.P256(), X: point.X, Y: point.Y},
		clock: time.Now,
	}
}

// VerifyOperation checks that an owner-domain signature covers the given
// operation hash.
func (v *OwnerVerifier) VerifyOperation(signature chain.Signature, opHash [32]byte) error {
	if signature.Domain != account.FactorOwner {
		return errors.New(errors.CodeAuthzFactorMismatch, "signature is not owner-domain")
	}
	var claims operationClaims
	_, err := jwt.ParseWithClaims(string(signature.Bytes), &claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return errors.Wrap(errors.CodeSessionOwnerSignature, "verify owner operation signature", err)
	}
	if claims.OperationHash != hex.EncodeToString(opHash[:]) {
		return errors.New(errors.CodeSessionOwnerSignature, "owner signature covers a different operation")
	}
	return nil
}

// VerifyPairingGrant checks that a grant authorizes the given session for the
// given account and has not expired.
func (v *OwnerVerifier) VerifyPairingGrant(grant string, sessionID string, addr account.Address) error {
	var claims pairingGrantClaims
	_, err := jwt.ParseWithClaims(grant, &claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(pairingGrantAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return errors.Wrap(errors.CodeSessionOwnerSignature, "verify pairing grant", err)
	}
	if claims.Subject != sessionID {
		return errors.New(errors.CodeSessionOwnerSignature, "pairing grant is for a different session")
	}
	if claims.AccountAddress != string(addr) {
		return errors.New(errors.CodeSessionOwnerSignature, "pairing grant is for a different account")
	}
	return nil
}
