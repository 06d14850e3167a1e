// Package pairing coordinates cross-device enrollment: a primary device opens
// a short-lived session in the shared session store, a new device completes
// it with its passkey material, and the primary polls until the handoff is
// done and the new key can be activated on-chain.
package pairing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
)

// deviceDataVersion is the only wire version this build accepts. Bumping the
// schema means bumping the version, never silently reinterpreting fields.
const deviceDataVersion = 1

// Sentinel errors shared by both ends of the pairing flow.
var (
	ErrSessionNotFound  = errors.New(errors.CodeSessionNotFound, "pairing session not found")
	ErrSessionExpired   = errors.New(errors.CodeSessionExpired, "pairing session has expired")
	ErrSessionCompleted = errors.New(errors.CodeSessionAlreadyCompleted, "pairing session was already completed")
	ErrPollTimeout      = errors.New(errors.CodeSessionPollTimeout, "gave up waiting for the pairing session to complete")
	ErrOwnerSignature   = errors.New(errors.CodeSessionOwnerSignature, "owner authorization was rejected")
	ErrInvalidDevice    = errors.New(errors.CodeSessionInvalidDevice, "device data is malformed")
)

// DeviceData is the fixed, versioned record a new device publishes when it
// completes a pairing session. The public key travels as decimal strings;
// the raw credential ID travels as base64. Attestation metadata is the only
// optional field.
type DeviceData struct {
	Version      int               `json:"version"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind"`
	CredentialID string            `json:"credential_id"`
	RawID        []byte            `json:"raw_id"`
	PublicKeyX   string            `json:"public_key_x"`
	PublicKeyY   string            `json:"public_key_y"`
	Attestation  map[string]string `json:"attestation,omitempty"`
}

// NewDeviceData builds the record for a freshly created device credential.
// Attestation metadata may be nil.
func NewDeviceData(name, kind, credentialID string, rawID []byte, key account.PublicKeyPoint, attestation map[string]string) (DeviceData, error) {
	if key.X == nil || key.Y == nil {
		return DeviceData{}, errors.New(errors.CodeSessionInvalidDevice, "device public key is incomplete")
	}
	data := DeviceData{
		Version:      deviceDataVersion,
		Name:         name,
		Kind:         kind,
		CredentialID: credentialID,
		RawID:        rawID,
		PublicKeyX:   key.X.String(),
		PublicKeyY:   key.Y.String(),
		Attestation:  attestation,
	}
	if err := data.validate(); err != nil {
		return DeviceData{}, err
	}
	return data, nil
}

// ParseDeviceData decodes and validates a device record. Unknown fields are
// rejected so schema drift is caught at the boundary instead of being
// silently dropped.
func ParseDeviceData(payload []byte) (DeviceData, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	var data DeviceData
	if err := decoder.Decode(&data); err != nil {
		return DeviceData{}, errors.Wrap(errors.CodeSessionInvalidDevice, "decode device data", err)
	}
	if decoder.More() {
		return DeviceData{}, errors.New(errors.CodeSessionInvalidDevice, "trailing data after device record")
	}
	if err := data.validate(); err != nil {
		return DeviceData{}, err
	}
	return data, nil
}

func (d DeviceData) validate() error {
	if d.Version != deviceDataVersion {
		return errors.WithMetadata(errors.CodeSessionInvalidDevice, "unsupported device data version", map[string]string{
			"version": fmt.Sprintf("%d", d.Version),
		})
	}
	if d.Name == "" {
		return errors.New(errors.CodeSessionInvalidDevice, "device name is required")
	}
	if d.CredentialID == "" {
		return errors.New(errors.CodeSessionInvalidDevice, "credential id is required")
	}
	if len(d.RawID) == 0 {
		return errors.New(errors.CodeSessionInvalidDevice, "raw credential id is required")
	}
	if _, err := d.PublicKey(); err != nil {
		return err
	}
	return nil
}

// PublicKey parses the device's P-256 coordinates.
func (d DeviceData) PublicKey() (account.PublicKeyPoint, error) {
	x, ok := new(big.Int).SetString(d.PublicKeyX, 10)
	if !ok {
		return account.PublicKeyPoint{}, errors.New(errors.CodeSessionInvalidDevice, "device public key x is not a decimal integer")
	}
	y, ok := new(big.Int).SetString(d.PublicKeyY, 10)
	if !ok {
		return account.PublicKeyPoint{}, errors.New(errors.CodeSessionInvalidDevice, "device public key y is not a decimal integer")
	}
	return account.PublicKeyPoint{X: x, Y: y}, nil
}
