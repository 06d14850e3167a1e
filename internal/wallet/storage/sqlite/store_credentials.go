package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/warden/internal/wallet/storage"
)

// PutCredential stores the device passkey for an account, replacing any
// previous record. Callers enforce the one-credential-per-account rule before
// writing; the store just keeps the latest.
func (s *Store) PutCredential(ctx context.Context, record storage.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.AccountAddress) == "" {
		return fmt.Errorf("account address is required")
	}
	if strings.TrimSpace(record.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(record.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_credentials (account_address, credential_id, credential_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account_address) DO UPDATE SET
	credential_id = excluded.credential_id,
	credential_json = excluded.credential_json,
	updated_at = excluded.updated_at`,
		record.AccountAddress,
		record.CredentialID,
		record.CredentialJSON,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential fetches the stored passkey for an account.
func (s *Store) GetCredential(ctx context.Context, accountAddress string) (storage.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CredentialRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CredentialRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(accountAddress) == "" {
		return storage.CredentialRecord{}, fmt.Errorf("account address is required")
	}

	var record storage.CredentialRecord
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT account_address, credential_id, credential_json, created_at, updated_at
FROM wallet_credentials
WHERE account_address = ?`, accountAddress).Scan(
		&record.AccountAddress,
		&record.CredentialID,
		&record.CredentialJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CredentialRecord{}, storage.ErrNotFound
		}
		return storage.CredentialRecord{}, fmt.Errorf("get credential: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// DeleteCredential removes the stored passkey for an account.
func (s *Store) DeleteCredential(ctx context.Context, accountAddress string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(accountAddress) == "" {
		return fmt.Errorf("account address is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM wallet_credentials WHERE account_address = ?`, accountAddress)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
