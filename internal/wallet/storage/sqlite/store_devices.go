package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/warden/internal/wallet/storage"
)

// PutDevice stores an enrolled device record.
func (s *Store) PutDevice(ctx context.Context, record storage.DeviceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("device id is required")
	}
	if strings.TrimSpace(record.AccountAddress) == "" {
		return fmt.Errorf("account address is required")
	}
	if strings.TrimSpace(record.Status) == "" {
		return fmt.Errorf("device status is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_devices (id, account_address, credential_id, device_json, status, tx_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	device_json = excluded.device_json,
	status = excluded.status,
	tx_id = excluded.tx_id,
	updated_at = excluded.updated_at`,
		record.ID,
		record.AccountAddress,
		record.CredentialID,
		record.DeviceJSON,
		record.Status,
		record.TxID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put device: %w", err)
	}
	return nil
}

// GetDevice fetches a device record by id.
func (s *Store) GetDevice(ctx context.Context, id string) (storage.DeviceRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeviceRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeviceRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return storage.DeviceRecord{}, fmt.Errorf("device id is required")
	}

	record, err := scanDevice(s.sqlDB.QueryRowContext(ctx, `
SELECT id, account_address, credential_id, device_json, status, tx_id, created_at, updated_at
FROM wallet_devices
WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DeviceRecord{}, storage.ErrNotFound
		}
		return storage.DeviceRecord{}, fmt.Errorf("get device: %w", err)
	}
	return record, nil
}

// ListDevicesByAccount returns device records for an account ordered by creation.
func (s *Store) ListDevicesByAccount(ctx context.Context, accountAddress string) ([]storage.DeviceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(accountAddress) == "" {
		return nil, fmt.Errorf("account address is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, account_address, credential_id, device_json, status, tx_id, created_at, updated_at
FROM wallet_devices
WHERE account_address = ?
ORDER BY created_at ASC, id ASC`, accountAddress)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var records []storage.DeviceRecord
	for rows.Next() {
		record, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return records, nil
}

// UpdateDeviceStatus advances a device record's activation status.
func (s *Store) UpdateDeviceStatus(ctx context.Context, id string, status string, txID string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("device id is required")
	}
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("device status is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE wallet_devices SET status = ?, tx_id = ?, updated_at = ? WHERE id = ?`,
		status, txID, toMillis(updatedAt), id)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (storage.DeviceRecord, error) {
	var record storage.DeviceRecord
	var createdAt, updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.AccountAddress,
		&record.CredentialID,
		&record.DeviceJSON,
		&record.Status,
		&record.TxID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.DeviceRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
