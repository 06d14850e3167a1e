package chain

import (
	"context"
	"time"

	"github.com/louisbranch/warden/internal/wallet/account"
)

// TxStatus is the inclusion status of a submitted operation.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusNotFound  TxStatus = "not_found"
)

// AccountConfig is the on-chain configuration read for a deployed account.
type AccountConfig struct {
	TwoFactor     bool
	Guardians     []account.Address
	Threshold     int
	TimelockDelay time.Duration
}

// Client reads account state and submits signed operations.
//
// The chain is trusted but unreliable: reads may be retried freely, writes
// are idempotent only because each attempt carries a unique operation nonce.
type Client interface {
	IsDeployed(ctx context.Context, addr account.Address) (bool, error)
	AccountConfig(ctx context.Context, addr account.Address) (AccountConfig, error)
	SubmitOperation(ctx context.Context, op Operation, signatures []Signature) (string, error)
	OperationStatus(ctx context.Context, txID string) (TxStatus, error)
}
