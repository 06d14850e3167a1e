package pairing

import (
	"errors"
	"math/big"
	"testing"

	"github.com/louisbranch/warden/internal/wallet/account"
)

func validDeviceJSON() []byte {
	return []byte(`{
		"version": 1,
		"name": "Pixel 9",
		"kind": "mobile",
		"credential_id": "cred-abc",
		"raw_id": "cmF3LWFiYw==",
		"public_key_x": "12345678901234567890",
		"public_key_y": "98765432109876543210",
		"attestation": {"fmt": "packed"}
	}`)
}

func TestParseDeviceData(t *testing.T) {
	data, err := ParseDeviceData(validDeviceJSON())
	if err != nil {
		t.Fatalf("parse device data: %v", err)
	}
	if data.Name != "Pixel 9" || data.CredentialID != "cred-abc" {
		t.Fatalf("unexpected device data %+v", data)
	}
	if string(data.RawID) != "raw-abc" {
		t.Fatalf("unexpected raw id %q", data.RawID)
	}
	if data.Attestation["fmt"] != "packed" {
		t.Fatalf("unexpected attestation metadata %+v", data.Attestation)
	}
	key, err := data.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	want, _ := new(big.Int).SetString("12345678901234567890", 10)
	if key.X.Cmp(want) != 0 {
		t.Fatalf("unexpected x coordinate %v", key.X)
	}
}

func TestParseDeviceDataRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"unknown field", `{"version":1,"name":"a","kind":"mobile","credential_id":"c","raw_id":"cg==","public_key_x":"1","public_key_y":"2","extra":true}`},
		{"wrong version", `{"version":2,"name":"a","kind":"mobile","credential_id":"c","raw_id":"cg==","public_key_x":"1","public_key_y":"2"}`},
		{"missing name", `{"version":1,"kind":"mobile","credential_id":"c","raw_id":"cg==","public_key_x":"1","public_key_y":"2"}`},
		{"missing credential", `{"version":1,"name":"a","kind":"mobile","raw_id":"cg==","public_key_x":"1","public_key_y":"2"}`},
		{"missing raw id", `{"version":1,"name":"a","kind":"mobile","credential_id":"c","public_key_x":"1","public_key_y":"2"}`},
		{"non-decimal key", `{"version":1,"name":"a","kind":"mobile","credential_id":"c","raw_id":"cg==","public_key_x":"0xff","public_key_y":"2"}`},
		{"not json", `nope`},
		{"trailing data", `{"version":1,"name":"a","kind":"mobile","credential_id":"c","raw_id":"cg==","public_key_x":"1","public_key_y":"2"}{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDeviceData([]byte(tc.payload)); !errors.Is(err, ErrInvalidDevice) {
				t.Fatalf("expected invalid device error, got %v", err)
			}
		})
	}
}

func TestNewDeviceData(t *testing.T) {
	key := account.PublicKeyPoint{X: big.NewInt(7), Y: big.NewInt(9)}
	data, err := NewDeviceData("Laptop", "desktop", "cred-1", []byte("raw-1"), key, map[string]string{"fmt": "none"})
	if err != nil {
		t.Fatalf("new device data: %v", err)
	}
	if data.Version != deviceDataVersion {
		t.Fatalf("expected current version, got %d", data.Version)
	}
	if string(data.RawID) != "raw-1" || data.Attestation["fmt"] != "none" {
		t.Fatalf("unexpected device data %+v", data)
	}

	if _, err := NewDeviceData("Laptop", "desktop", "cred-1", []byte("raw-1"), account.PublicKeyPoint{}, nil); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected rejection for incomplete key, got %v", err)
	}
	if _, err := NewDeviceData("Laptop", "desktop", "cred-1", nil, key, nil); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("expected rejection for missing raw id, got %v", err)
	}
}
