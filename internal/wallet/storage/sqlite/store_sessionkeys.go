package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/warden/internal/wallet/storage"
)

// PutSessionKey stores a delegated session key.
func (s *Store) PutSessionKey(ctx context.Context, record storage.SessionKeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("session key id is required")
	}
	if strings.TrimSpace(record.AccountAddress) == "" {
		return fmt.Errorf("account address is required")
	}
	if strings.TrimSpace(record.KeyJSON) == "" {
		return fmt.Errorf("key json is required")
	}

	active := 0
	if record.Active {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_session_keys (id, account_address, key_json, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	key_json = excluded.key_json,
	active = excluded.active,
	updated_at = excluded.updated_at`,
		record.ID,
		record.AccountAddress,
		record.KeyJSON,
		active,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put session key: %w", err)
	}
	return nil
}

// GetSessionKey fetches a session key by id.
func (s *Store) GetSessionKey(ctx context.Context, id string) (storage.SessionKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionKeyRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionKeyRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return storage.SessionKeyRecord{}, fmt.Errorf("session key id is required")
	}

	var record storage.SessionKeyRecord
	var active int
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, account_address, key_json, active, created_at, updated_at
FROM wallet_session_keys
WHERE id = ?`, id).Scan(
		&record.ID,
		&record.AccountAddress,
		&record.KeyJSON,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionKeyRecord{}, storage.ErrNotFound
		}
		return storage.SessionKeyRecord{}, fmt.Errorf("get session key: %w", err)
	}
	record.Active = active != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListSessionKeysByAccount returns session keys for an account.
func (s *Store) ListSessionKeysByAccount(ctx context.Context, accountAddress string) ([]storage.SessionKeyRecord, error) {
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
SELECT id, account_address, key_json, active, created_at, updated_at
FROM wallet_session_keys
WHERE account_address = ?
ORDER BY created_at ASC, id ASC`, accountAddress)
	if err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}
	defer rows.Close()

	var records []storage.SessionKeyRecord
	for rows.Next() {
		var record storage.SessionKeyRecord
		var active int
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.AccountAddress,
			&record.KeyJSON,
			&active,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session key: %w", err)
		}
		record.Active = active != 0
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}
	return records, nil
}
