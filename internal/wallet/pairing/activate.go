package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/warden/internal/platform/id"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/authz"
	"github.com/louisbranch/warden/internal/wallet/chain"
	"github.com/louisbranch/warden/internal/wallet/storage"
)

// Activator turns a completed pairing into an on-chain device key. The local
// device record is always written before any chain interaction: a failed
// submission defers activation, it never loses the pairing.
type Activator struct {
	devices  storage.DeviceStore
	chain    chain.Client
	composer authz.Composer
	clock    func() time.Time
	newID    func() (string, error)
}

// NewActivator builds an activator over the local device store and a chain
// client.
func NewActivator(devices storage.DeviceStore, chainClient chain.Client) (*Activator, error) {
	if devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is required")
	}
	return &Activator{
		devices: devices,
		chain:   chainClient,
		clock:   time.Now,
		newID:   id.NewID,
	}, nil
}

// ActivationResult reports how far activation progressed.
type ActivationResult struct {
	DeviceID string
	Status   account.DeviceKeyStatus
	TxID     string
	// Deferred is set when the pairing succeeded but the chain submission
	// did not happen; the record stays pending and can be retried.
	Deferred bool
}

// Activate records the paired device locally and, when the account is
// deployed, submits the add-device-key operation. For an undeployed account
// the key is local-only and ships with the first deployment.
func (a *Activator) Activate(ctx context.Context, acct account.Account, device DeviceData, nonce uint64, signers []authz.Signer) (ActivationResult, error) {
	key, err := device.PublicKey()
	if err != nil {
		return ActivationResult{}, err
	}
	deviceID, err := a.newID()
	if err != nil {
		return ActivationResult{}, fmt.Errorf("generate device id: %w", err)
	}

	deployed, deployErr := a.chain.IsDeployed(ctx, acct.Address)

	status := account.DeviceKeyPendingActivation
	if deployErr == nil && !deployed {
		status = account.DeviceKeyLocalOnly
	}
	if err := a.save(ctx, deviceID, acct.Address, device, status); err != nil {
		return ActivationResult{}, err
	}

	if deployErr != nil {
		log.Printf("pairing: deployment check for %s failed, deferring activation: %v", acct.Address, deployErr)
		return ActivationResult{DeviceID: deviceID, Status: status, Deferred: true}, nil
	}
	if !deployed {
		return ActivationResult{DeviceID: deviceID, Status: status}, nil
	}

	op := chain.NewAddDeviceKeyOperation(acct.Address, key, nonce)
	signatures, err := a.composer.Authorize(ctx, acct, op, signers)
	if err != nil {
		// The pairing itself stands; the caller decides whether to retry
		// authorization against the persisted record.
		return ActivationResult{}, err
	}

	txID, err := a.chain.SubmitOperation(ctx, op, signatures)
	if err != nil {
		log.Printf("pairing: submit add-device-key for %s failed, deferring activation: %v", acct.Address, err)
		return ActivationResult{DeviceID: deviceID, Status: account.DeviceKeyPendingActivation, Deferred: true}, nil
	}

	now := a.clock().UTC()
	if err := a.devices.UpdateDeviceStatus(ctx, deviceID, string(account.DeviceKeyPendingActivation), txID, now); err != nil {
		return ActivationResult{}, err
	}
	return ActivationResult{DeviceID: deviceID, Status: account.DeviceKeyPendingActivation, TxID: txID}, nil
}

// ConfirmActivation advances a pending device record based on the submitted
// operation's chain status. A failed operation clears the transaction so the
// submission can be retried; the record itself is never dropped.
func (a *Activator) ConfirmActivation(ctx context.Context, deviceID string) (ActivationResult, error) {
	record, err := a.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return ActivationResult{}, err
	}
	result := ActivationResult{
		DeviceID: deviceID,
		Status:   account.DeviceKeyStatus(record.Status),
		TxID:     record.TxID,
	}
	if record.Status != string(account.DeviceKeyPendingActivation) || record.TxID == "" {
		return result, nil
	}

	status, err := a.chain.OperationStatus(ctx, record.TxID)
	if err != nil {
		return ActivationResult{}, err
	}
	now := a.clock().UTC()
	switch status {
	case chain.TxStatusConfirmed:
		if err := a.devices.UpdateDeviceStatus(ctx, deviceID, string(account.DeviceKeyActive), record.TxID, now); err != nil {
			return ActivationResult{}, err
		}
		result.Status = account.DeviceKeyActive
	case chain.TxStatusFailed:
		if err := a.devices.UpdateDeviceStatus(ctx, deviceID, string(account.DeviceKeyPendingActivation), "", now); err != nil {
			return ActivationResult{}, err
		}
		result.TxID = ""
		result.Deferred = true
	}
	return result, nil
}

func (a *Activator) save(ctx context.Context, deviceID string, addr account.Address, device DeviceData, status account.DeviceKeyStatus) error {
	payload, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encode device data: %w", err)
	}
	now := a.clock().UTC()
	return a.devices.PutDevice(ctx, storage.DeviceRecord{
		ID:             deviceID,
		AccountAddress: string(addr),
		CredentialID:   device.CredentialID,
		DeviceJSON:     string(payload),
		Status:         string(status),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
