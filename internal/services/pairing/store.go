package pairing

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/warden/internal/services/pairing/migrations"
	_ "modernc.org/sqlite"
)

// Session is the server-side record of one pairing attempt.
type Session struct {
	ID             string
	AccountAddress string
	OwnerPublicKey []byte
	Status         string
	DeviceJSON     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	CompletedAt    time.Time
}

// ErrSessionExists indicates a create collided with an existing session ID.
var ErrSessionExists = errors.New(errors.CodeSessionAlreadyCompleted, "a session with this id already exists")

// Store persists pairing sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// OpenStore opens the session database and applies bundled migrations.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// CreateSession inserts a new pending session.
func (s *Store) CreateSession(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pairing_sessions (id, account_address, owner_public_key, status, device_json, created_at, expires_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.AccountAddress,
		session.OwnerPublicKey,
		session.Status,
		session.DeviceJSON,
		toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt),
		toMillis(session.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrSessionExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession fetches one session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Session{}, fmt.Errorf("storage is not configured")
	}

	var session Session
	var createdAt, expiresAt, completedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, account_address, owner_public_key, status, device_json, created_at, expires_at, completed_at
FROM pairing_sessions
WHERE id = ?`, sessionID).Scan(
		&session.ID,
		&session.AccountAddress,
		&session.OwnerPublicKey,
		&session.Status,
		&session.DeviceJSON,
		&createdAt,
		&expiresAt,
		&completedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Session{}, errors.New(errors.CodeSessionNotFound, "pairing session not found")
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.CompletedAt = fromMillis(completedAt)
	return session, nil
}

// CompleteSession transitions a session from pending to completed exactly
// once. The conditional update serializes racing devices: the first writer
// wins and every later attempt observes a terminal state.
func (s *Store) CompleteSession(ctx context.Context, sessionID string, deviceJSON string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE pairing_sessions
SET status = 'completed', device_json = ?, completed_at = ?
WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		deviceJSON,
		toMillis(now),
		sessionID,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// The update matched nothing; inspect the row to report why.
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == "completed" {
		return errors.New(errors.CodeSessionAlreadyCompleted, "pairing session was already completed")
	}
	if !session.ExpiresAt.After(now.UTC()) {
		return errors.New(errors.CodeSessionExpired, "pairing session has expired")
	}
	return fmt.Errorf("complete session: no rows updated")
}

// CleanupExpired removes sessions whose expiry has passed. Completed sessions
// are also reaped once expired; the primary device has had the whole session
// lifetime to collect the result.
func (s *Store) CleanupExpired(now time.Time) int64 {
	if s == nil || s.sqlDB == nil {
		return 0
	}
	result, err := s.sqlDB.Exec(`DELETE FROM pairing_sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return affected
}
