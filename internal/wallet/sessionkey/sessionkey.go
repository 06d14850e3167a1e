// Package sessionkey manages delegated spending keys: narrowly scoped
// authorities with a validity window, spend limits, and a target allow-list.
// Revocation is irreversible; a new delegation means a new key.
package sessionkey

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/platform/id"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/storage"
)

// Authorization failure reasons. Each maps to one specific policy violation
// so callers can tell the user what to fix.
var (
	ErrInactive         = errors.New(errors.CodeSessionKeyInactive, "session key is revoked or inactive")
	ErrExpired          = errors.New(errors.CodeSessionKeyExpired, "session key validity window has ended")
	ErrNotYetValid      = errors.New(errors.CodeSessionKeyNotYetValid, "session key validity window has not started")
	ErrPerTxLimit       = errors.New(errors.CodeSessionKeyPerTxLimit, "amount exceeds the per-transaction limit")
	ErrTotalLimit       = errors.New(errors.CodeSessionKeyTotalLimit, "amount exceeds the remaining total limit")
	ErrTargetNotAllowed = errors.New(errors.CodeSessionKeyTargetNotAllowed, "target is not on the allow-list")
)

// Key is one delegated spending authority.
type Key struct {
	ID             string
	AccountAddress account.Address
	Delegate       account.Address
	ValidAfter     time.Time
	ValidUntil     time.Time
	PerTxLimit     *big.Int
	TotalLimit     *big.Int
	Spent          *big.Int
	AllowedTargets []account.Address
	Active         bool
	CreatedAt      time.Time
}

// Remaining returns the unspent portion of the total limit.
func (k Key) Remaining() *big.Int {
	remaining := new(big.Int).Sub(k.TotalLimit, k.Spent)
	if remaining.Sign() < 0 {
		return new(big.Int)
	}
	return remaining
}

func (k Key) allowsTarget(target account.Address) bool {
	if len(k.AllowedTargets) == 0 {
		return true
	}
	for _, allowed := range k.AllowedTargets {
		if allowed == target {
			return true
		}
	}
	return false
}

// AuthorizeSpend is the pure policy check for one spend attempt. It inspects
// the key as-is and never mutates it; accounting happens in CommitSpend after
// the chain confirms.
//
// The window is inclusive on both ends. An empty allow-list permits any
// target.
func AuthorizeSpend(key Key, target account.Address, amount *big.Int, now time.Time) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amount must be a non-negative integer")
	}
	if !key.Active {
		return ErrInactive
	}
	if now.Before(key.ValidAfter) {
		return ErrNotYetValid
	}
	if now.After(key.ValidUntil) {
		return ErrExpired
	}
	if !key.allowsTarget(target) {
		return ErrTargetNotAllowed
	}
	if key.PerTxLimit != nil && amount.Cmp(key.PerTxLimit) > 0 {
		return ErrPerTxLimit
	}
	if key.TotalLimit != nil {
		spent := key.Spent
		if spent == nil {
			spent = new(big.Int)
		}
		if new(big.Int).Add(spent, amount).Cmp(key.TotalLimit) > 0 {
			return ErrTotalLimit
		}
	}
	return nil
}

// GrantParams describes a new delegation.
type GrantParams struct {
	AccountAddress account.Address
	Delegate       account.Address
	ValidAfter     time.Time
	ValidUntil     time.Time
	PerTxLimit     *big.Int
	TotalLimit     *big.Int
	AllowedTargets []account.Address
}

// Registry persists delegated keys and applies spend accounting.
type Registry struct {
	store storage.SessionKeyStore
	clock func() time.Time
	newID func() (string, error)

	mu sync.Mutex
}

// NewRegistry builds a registry over a session key store.
func NewRegistry(store storage.SessionKeyStore) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("session key store is required")
	}
	return &Registry{
		store: store,
		clock: time.Now,
		newID: id.NewID,
	}, nil
}

// Grant creates and persists a new active key.
func (r *Registry) Grant(ctx context.Context, params GrantParams) (Key, error) {
	if params.AccountAddress == "" {
		return Key{}, fmt.Errorf("account address is required")
	}
	if params.Delegate == "" {
		return Key{}, fmt.Errorf("delegate is required")
	}
	if !params.ValidUntil.After(params.ValidAfter) {
		return Key{}, fmt.Errorf("validity window must end after it starts")
	}
	if params.PerTxLimit != nil && params.PerTxLimit.Sign() < 0 {
		return Key{}, fmt.Errorf("per-transaction limit must not be negative")
	}
	if params.TotalLimit != nil && params.TotalLimit.Sign() < 0 {
		return Key{}, fmt.Errorf("total limit must not be negative")
	}

	keyID, err := r.newID()
	if err != nil {
		return Key{}, fmt.Errorf("generate key id: %w", err)
	}
	key := Key{
		ID:             keyID,
		AccountAddress: params.AccountAddress,
		Delegate:       params.Delegate,
		ValidAfter:     params.ValidAfter.UTC(),
		ValidUntil:     params.ValidUntil.UTC(),
		PerTxLimit:     params.PerTxLimit,
		TotalLimit:     params.TotalLimit,
		Spent:          new(big.Int),
		AllowedTargets: params.AllowedTargets,
		Active:         true,
		CreatedAt:      r.clock().UTC(),
	}
	if err := r.persist(ctx, key); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Authorize loads a key and runs the policy check against the current time.
func (r *Registry) Authorize(ctx context.Context, keyID string, target account.Address, amount *big.Int) error {
	key, err := r.Get(ctx, keyID)
	if err != nil {
		return err
	}
	return AuthorizeSpend(key, target, amount, r.clock().UTC())
}

// CommitSpend records a confirmed spend against the total limit. It is called
// only after the chain confirms the transaction; an authorized-but-failed
// spend never consumes budget. The total limit is re-checked under the lock:
// the Authorize pre-check is optimistic and two concurrently authorized
// spends may race for the same remaining budget, so the loser of that race
// is rejected here rather than pushed past the limit.
func (r *Registry) CommitSpend(ctx context.Context, keyID string, amount *big.Int) (Key, error) {
	if amount == nil || amount.Sign() < 0 {
		return Key{}, fmt.Errorf("amount must be a non-negative integer")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	if !key.Active {
		return Key{}, ErrInactive
	}
	spent := new(big.Int).Add(key.Spent, amount)
	if key.TotalLimit != nil && spent.Cmp(key.TotalLimit) > 0 {
		return Key{}, ErrTotalLimit
	}
	key.Spent = spent
	if err := r.persist(ctx, key); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Revoke permanently deactivates a key. There is no reactivation path.
func (r *Registry) Revoke(ctx context.Context, keyID string) (Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.Get(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	if !key.Active {
		return key, nil
	}
	key.Active = false
	if err := r.persist(ctx, key); err != nil {
		return Key{}, err
	}
	return key, nil
}

// Get returns one key by ID.
func (r *Registry) Get(ctx context.Context, keyID string) (Key, error) {
	record, err := r.store.GetSessionKey(ctx, keyID)
	if err != nil {
		return Key{}, err
	}
	return decodeKey(record)
}

// List returns all keys delegated by an account.
func (r *Registry) List(ctx context.Context, addr account.Address) ([]Key, error) {
	records, err := r.store.ListSessionKeysByAccount(ctx, string(addr))
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(records))
	for _, record := range records {
		key, err := decodeKey(record)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (r *Registry) persist(ctx context.Context, key Key) error {
	payload, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode session key: %w", err)
	}
	return r.store.PutSessionKey(ctx, storage.SessionKeyRecord{
		ID:             key.ID,
		AccountAddress: string(key.AccountAddress),
		KeyJSON:        string(payload),
		Active:         key.Active,
		CreatedAt:      key.CreatedAt,
		UpdatedAt:      r.clock().UTC(),
	})
}

func decodeKey(record storage.SessionKeyRecord) (Key, error) {
	var key Key
	if err := json.Unmarshal([]byte(record.KeyJSON), &key); err != nil {
		return Key{}, fmt.Errorf("decode session key %s: %w", record.ID, err)
	}
	return key, nil
}

// keyJSON is the persisted shape; limits travel as decimal strings.
type keyJSON struct {
	ID             string   `json:"id"`
	AccountAddress string   `json:"account_address"`
	Delegate       string   `json:"delegate"`
	ValidAfter     int64    `json:"valid_after_ms"`
	ValidUntil     int64    `json:"valid_until_ms"`
	PerTxLimit     string   `json:"per_tx_limit,omitempty"`
	TotalLimit     string   `json:"total_limit,omitempty"`
	Spent          string   `json:"spent"`
	AllowedTargets []string `json:"allowed_targets,omitempty"`
	Active         bool     `json:"active"`
	CreatedAt      int64    `json:"created_at_ms"`
}

// MarshalJSON implements the persisted encoding.
func (k Key) MarshalJSON() ([]byte, error) {
	encoded := keyJSON{
		ID:             k.ID,
		AccountAddress: string(k.AccountAddress),
		Delegate:       string(k.Delegate),
		ValidAfter:     k.ValidAfter.UnixMilli(),
		ValidUntil:     k.ValidUntil.UnixMilli(),
		Active:         k.Active,
		CreatedAt:      k.CreatedAt.UnixMilli(),
	}
	if k.PerTxLimit != nil {
		encoded.PerTxLimit = k.PerTxLimit.String()
	}
	if k.TotalLimit != nil {
		encoded.TotalLimit = k.TotalLimit.String()
	}
	spent := k.Spent
	if spent == nil {
		spent = new(big.Int)
	}
	encoded.Spent = spent.String()
	for _, target := range k.AllowedTargets {
		encoded.AllowedTargets = append(encoded.AllowedTargets, string(target))
	}
	return json.Marshal(encoded)
}

// UnmarshalJSON restores a key from its persisted encoding.
func (k *Key) UnmarshalJSON(data []byte) error {
	var decoded keyJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	k.ID = decoded.ID
	k.AccountAddress = account.Address(decoded.AccountAddress)
	k.Delegate = account.Address(decoded.Delegate)
	k.ValidAfter = time.UnixMilli(decoded.ValidAfter).UTC()
	k.ValidUntil = time.UnixMilli(decoded.ValidUntil).UTC()
	k.Active = decoded.Active
	k.CreatedAt = time.UnixMilli(decoded.CreatedAt).UTC()

	parse := func(value, field string) (*big.Int, error) {
		if value == "" {
			return nil, nil
		}
		parsed, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("decode %s", field)
		}
		return parsed, nil
	}
	var err error
	if k.PerTxLimit, err = parse(decoded.PerTxLimit, "per-tx limit"); err != nil {
		return err
	}
	if k.TotalLimit, err = parse(decoded.TotalLimit, "total limit"); err != nil {
		return err
	}
	if k.Spent, err = parse(decoded.Spent, "spent"); err != nil {
		return err
	}
	if k.Spent == nil {
		k.Spent = new(big.Int)
	}
	k.AllowedTargets = nil
	for _, target := range decoded.AllowedTargets {
		k.AllowedTargets = append(k.AllowedTargets, account.Address(target))
	}
	return nil
}
