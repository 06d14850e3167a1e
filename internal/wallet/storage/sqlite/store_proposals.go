package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/warden/internal/wallet/storage"
)

// PutProposal stores a recovery proposal keyed by account and nonce.
func (s *Store) PutProposal(ctx context.Context, record storage.ProposalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.AccountAddress) == "" {
		return fmt.Errorf("account address is required")
	}
	if strings.TrimSpace(record.ProposalJSON) == "" {
		return fmt.Errorf("proposal json is required")
	}
	if strings.TrimSpace(record.Status) == "" {
		return fmt.Errorf("proposal status is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_proposals (account_address, nonce, proposal_json, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(account_address, nonce) DO UPDATE SET
	proposal_json = excluded.proposal_json,
	status = excluded.status,
	updated_at = excluded.updated_at`,
		record.AccountAddress,
		record.Nonce,
		record.ProposalJSON,
		record.Status,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put proposal: %w", err)
	}
	return nil
}

// GetProposal fetches a proposal by account and nonce.
func (s *Store) GetProposal(ctx context.Context, accountAddress string, nonce uint64) (storage.ProposalRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProposalRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProposalRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(accountAddress) == "" {
		return storage.ProposalRecord{}, fmt.Errorf("account address is required")
	}

	var record storage.ProposalRecord
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT account_address, nonce, proposal_json, status, created_at, updated_at
FROM wallet_proposals
WHERE account_address = ? AND nonce = ?`, accountAddress, nonce).Scan(
		&record.AccountAddress,
		&record.Nonce,
		&record.ProposalJSON,
		&record.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProposalRecord{}, storage.ErrNotFound
		}
		return storage.ProposalRecord{}, fmt.Errorf("get proposal: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListProposalsByAccount returns proposals for an account ordered by nonce.
func (s *Store) ListProposalsByAccount(ctx context.Context, accountAddress string) ([]storage.ProposalRecord, error) {
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
SELECT account_address, nonce, proposal_json, status, created_at, updated_at
FROM wallet_proposals
WHERE account_address = ?
ORDER BY nonce ASC`, accountAddress)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var records []storage.ProposalRecord
	for rows.Next() {
		var record storage.ProposalRecord
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&record.AccountAddress,
			&record.Nonce,
			&record.ProposalJSON,
			&record.Status,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return records, nil
}
