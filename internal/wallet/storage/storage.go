// Package storage defines the local durable store for the wallet core.
//
// Local persistence is the durable record of intent: device enrollment and
// recovery state survive process restarts and failed chain submissions, so
// on-chain activation can be retried without re-running any ceremony.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/warden/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// CredentialRecord stores the device-local passkey for an account.
// At most one credential exists per account on a device.
type CredentialRecord struct {
	AccountAddress string
	CredentialID   string
	CredentialJSON string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeviceRecord stores an enrolled device key and its activation progress.
type DeviceRecord struct {
	ID             string
	AccountAddress string
	CredentialID   string
	DeviceJSON     string
	Status         string
	TxID           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProposalRecord stores a guardian recovery proposal.
type ProposalRecord struct {
	AccountAddress string
	Nonce          uint64
	ProposalJSON   string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionKeyRecord stores a delegated session key.
type SessionKeyRecord struct {
	ID             string
	AccountAddress string
	KeyJSON        string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CredentialStore persists the per-account device passkey.
type CredentialStore interface {
	PutCredential(ctx context.Context, record CredentialRecord) error
	GetCredential(ctx context.Context, accountAddress string) (CredentialRecord, error)
	DeleteCredential(ctx context.Context, accountAddress string) error
}

// DeviceStore persists enrolled device records.
type DeviceStore interface {
	PutDevice(ctx context.Context, record DeviceRecord) error
	GetDevice(ctx context.Context, id string) (DeviceRecord, error)
	ListDevicesByAccount(ctx context.Context, accountAddress string) ([]DeviceRecord, error)
	UpdateDeviceStatus(ctx context.Context, id string, status string, txID string, updatedAt time.Time) error
}

// ProposalStore persists recovery proposals.
type ProposalStore interface {
	PutProposal(ctx context.Context, record ProposalRecord) error
	GetProposal(ctx context.Context, accountAddress string, nonce uint64) (ProposalRecord, error)
	ListProposalsByAccount(ctx context.Context, accountAddress string) ([]ProposalRecord, error)
}

// SessionKeyStore persists delegated session keys.
type SessionKeyStore interface {
	PutSessionKey(ctx context.Context, record SessionKeyRecord) error
	GetSessionKey(ctx context.Context, id string) (SessionKeyRecord, error)
	ListSessionKeysByAccount(ctx context.Context, accountAddress string) ([]SessionKeyRecord, error)
}
