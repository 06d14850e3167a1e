package credential

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// buildAttestationObject assembles a minimal packed attestation: CBOR
// envelope wrapping authenticator data with the attested credential section.
func buildAttestationObject(t *testing.T, coseKey []byte) []byte {
	t.Helper()

	rpIDHash := sha256.Sum256([]byte("warden.example"))
	credentialID := []byte("0123456789abcdef")

	authData := make([]byte, 0, 64+len(credentialID)+len(coseKey))
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x45) // UP | UV | AT
	authData = append(authData, 0, 0, 0, 1)
	authData = append(authData, make([]byte, 16)...) // AAGUID
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(credentialID)))
	authData = append(authData, credentialID...)
	authData = append(authData, coseKey...)

	payload, err := cbor.Marshal(map[string]any{
		"fmt":      "packed",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		t.Fatalf("encode attestation object: %v", err)
	}
	return payload
}

func TestParsePublicKey(t *testing.T) {
	x, y := testPoint(t)
	attestation := buildAttestationObject(t, encodeCOSEKey(t, x, y))

	point, err := ParsePublicKey(attestation)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if point.X.Cmp(new(big.Int).SetBytes(x)) != 0 {
		t.Fatalf("unexpected x coordinate %v", point.X)
	}
	if point.Y.Cmp(new(big.Int).SetBytes(y)) != 0 {
		t.Fatalf("unexpected y coordinate %v", point.Y)
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKey([]byte("not cbor at all"))
	if !errors.Is(err, ErrMalformedAttestation) {
		t.Fatalf("expected malformed attestation, got %v", err)
	}
}

func TestParsePublicKeyRejectsMissingAttestedData(t *testing.T) {
	rpIDHash := sha256.Sum256([]byte("warden.example"))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x01) // UP only, no attested credential data
	authData = append(authData, 0, 0, 0, 1)

	payload, err := cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		t.Fatalf("encode attestation object: %v", err)
	}

	_, err = ParsePublicKey(payload)
	if !errors.Is(err, ErrMalformedAttestation) {
		t.Fatalf("expected malformed attestation, got %v", err)
	}
}

func TestParsePublicKeyRejectsWrongAlgorithm(t *testing.T) {
	x, y := testPoint(t)
	key, err := cbor.Marshal(map[int]any{
		1:  2,
		3:  -35, // ES384
		-1: 2,
		-2: x,
		-3: y,
	})
	if err != nil {
		t.Fatalf("encode cose key: %v", err)
	}

	_, err = ParsePublicKey(buildAttestationObject(t, key))
	if !errors.Is(err, ErrMalformedAttestation) {
		t.Fatalf("expected malformed attestation for non-ES256 key, got %v", err)
	}
}
