// Package account defines the on-chain smart account identity managed by the
// wallet core: its address, the social-login owner that controls it, the
// passkeys enrolled against it, and the factors an operation must carry.
package account

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/louisbranch/warden/internal/platform/errors"
)

// Address is a 20-byte account or contract address in 0x-prefixed hex.
type Address string

// ParseAddress validates and normalizes an address to lowercase 0x-hex.
func ParseAddress(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", errors.New(errors.CodeAccountInvalidAddress, "address must be 0x-prefixed")
	}
	body := trimmed[2:]
	if len(body) != 40 {
		return "", errors.WithMetadata(errors.CodeAccountInvalidAddress, "address must encode 20 bytes", map[string]string{
			"address": trimmed,
		})
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", errors.Wrap(errors.CodeAccountInvalidAddress, "address is not valid hex", err)
	}
	return Address("0x" + strings.ToLower(body)), nil
}

// Bytes returns the raw 20 address bytes. The address must be valid.
func (a Address) Bytes() []byte {
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(string(a)), "0x"))
	if err != nil {
		return nil
	}
	return decoded
}

// DeriveAddress computes the account address for an uncompressed owner public
// key: the last 20 bytes of the Keccak-256 digest of the key material.
func DeriveAddress(ownerPublicKey []byte) (Address, error) {
	if len(ownerPublicKey) == 0 {
		return "", fmt.Errorf("owner public key is required")
	}
	digest := sha3.NewLegacyKeccak256()
	digest.Write(ownerPublicKey)
	sum := digest.Sum(nil)
	return Address("0x" + hex.EncodeToString(sum[12:])), nil
}

// Factor identifies a signer domain required to authorize an operation.
type Factor string

const (
	// FactorOwner is the signature authority derived from the social login key.
	FactorOwner Factor = "owner"
	// FactorPasskey is the hardware-backed platform credential on the device.
	FactorPasskey Factor = "passkey"
)

// PublicKeyPoint is a P-256 public key as affine coordinates.
type PublicKeyPoint struct {
	X *big.Int
	Y *big.Int
}

// DeviceKeyStatus tracks how far an enrolled device key has progressed
// toward being recognized on-chain.
type DeviceKeyStatus string

const (
	// DeviceKeyLocalOnly means the key is recorded locally for an account
	// that has not been deployed yet; it ships with the first deployment.
	DeviceKeyLocalOnly DeviceKeyStatus = "local_only"
	// DeviceKeyPendingActivation means the pairing succeeded but the add-key
	// operation has not been confirmed on-chain.
	DeviceKeyPendingActivation DeviceKeyStatus = "pending_activation"
	// DeviceKeyActive means the chain has confirmed the key.
	DeviceKeyActive DeviceKeyStatus = "active"
)

// DeviceKey is an additional passkey enrolled from a paired device.
type DeviceKey struct {
	CredentialID string
	PublicKey    PublicKeyPoint
	Name         string
	Kind         string
	Status       DeviceKeyStatus
	AddedAt      time.Time
}

// Account is the identity under management.
//
// The two-factor flag and the device list are advisory local state: they are
// only mutated after a successfully authorized on-chain operation confirms.
type Account struct {
	Address    Address
	OwnerID    string // subject of the social-login identity
	OwnerKey   []byte // uncompressed owner public key
	TwoFactor  bool
	Passkey    *PublicKeyPoint // primary passkey, nil until enrolled
	DeviceKeys []DeviceKey
	CreatedAt  time.Time
}
