// Package recovery implements guardian-driven account recovery: a threshold
// of guardians proposes and approves a new owner key, a timelock gives the
// current owner a veto window, and the owner can cancel unconditionally.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/storage"
)

// Sentinel errors for recovery transitions.
var (
	ErrNotAGuardian       = errors.New(errors.CodeRecoveryNotAGuardian, "caller is not a guardian of this account")
	ErrAlreadyApproved    = errors.New(errors.CodeRecoveryAlreadyApproved, "guardian has already approved this proposal")
	ErrProposalNotFound   = errors.New(errors.CodeRecoveryProposalNotFound, "recovery proposal not found")
	ErrProposalTerminal   = errors.New(errors.CodeRecoveryProposalTerminal, "recovery proposal is already executed or cancelled")
	ErrThresholdNotMet    = errors.New(errors.CodeRecoveryThresholdNotMet, "approvals are below the guardian threshold")
	ErrTimelockNotElapsed = errors.New(errors.CodeRecoveryTimelockNotElapsed, "the recovery timelock has not elapsed")
	ErrNotAuthorized      = errors.New(errors.CodeRecoveryNotAuthorized, "caller may not cancel this proposal")
)

// ProposalStatus is the lifecycle state of a recovery proposal.
type ProposalStatus string

const (
	// StatusPending means the proposal exists but approvals are below threshold.
	StatusPending ProposalStatus = "pending"
	// StatusReady means the threshold is met; execution waits on the timelock.
	StatusReady ProposalStatus = "ready"
	// StatusExecuted is terminal: the new owner material was applied.
	StatusExecuted ProposalStatus = "executed"
	// StatusCancelled is terminal.
	StatusCancelled ProposalStatus = "cancelled"
)

func (s ProposalStatus) terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Proposal is one recovery attempt against an account.
type Proposal struct {
	AccountAddress account.Address
	Nonce          uint64
	NewOwnerKey    []byte
	NewPasskey     *account.PublicKeyPoint
	Proposer       string
	Approvals      []string
	Status         ProposalStatus
	CreatedAt      time.Time
	ExecuteAfter   time.Time
}

// Approved reports whether the guardian has already approved.
func (p Proposal) Approved(guardian string) bool {
	for _, approved := range p.Approvals {
		if approved == guardian {
			return true
		}
	}
	return false
}

// StateMachine drives recovery proposals for a single account. All mutations
// go through the proposal store so restarts resume where they left off.
type StateMachine struct {
	address   account.Address
	owner     string
	guardians []string
	threshold int
	timelock  time.Duration

	store storage.ProposalStore
	clock func() time.Time

	mu        sync.Mutex
	nextNonce uint64
}

// NewStateMachine restores recovery state for an account. Nonces continue
// monotonically from the highest persisted proposal.
func NewStateMachine(ctx context.Context, addr account.Address, owner string, guardians []string, threshold int, timelock time.Duration, store storage.ProposalStore) (*StateMachine, error) {
	if store == nil {
		return nil, fmt.Errorf("proposal store is required")
	}
	if threshold < 1 || threshold > len(guardians) {
		return nil, fmt.Errorf("threshold %d is out of range for %d guardians", threshold, len(guardians))
	}
	if timelock < 0 {
		return nil, fmt.Errorf("timelock must not be negative")
	}

	records, err := store.ListProposalsByAccount(ctx, string(addr))
	if err != nil {
		return nil, fmt.Errorf("restore proposals: %w", err)
	}
	var next uint64 = 1
	for _, record := range records {
		if record.Nonce >= next {
			next = record.Nonce + 1
		}
	}
	return &StateMachine{
		address:   addr,
		owner:     owner,
		guardians: guardians,
		threshold: threshold,
		timelock:  timelock,
		store:     store,
		clock:     time.Now,
		nextNonce: next,
	}, nil
}

func (m *StateMachine) isGuardian(caller string) bool {
	for _, guardian := range m.guardians {
		if guardian == caller {
			return true
		}
	}
	return false
}

// Propose opens a recovery attempt. The proposer's approval counts toward the
// threshold immediately, and the timelock starts at proposal time.
func (m *StateMachine) Propose(ctx context.Context, guardian string, newOwnerKey []byte, newPasskey *account.PublicKeyPoint) (Proposal, error) {
	if !m.isGuardian(guardian) {
		return Proposal{}, ErrNotAGuardian
	}
	if len(newOwnerKey) == 0 {
		return Proposal{}, fmt.Errorf("new owner key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().UTC()
	proposal := Proposal{
		AccountAddress: m.address,
		Nonce:          m.nextNonce,
		NewOwnerKey:    newOwnerKey,
		NewPasskey:     newPasskey,
		Proposer:       guardian,
		Approvals:      []string{guardian},
		Status:         StatusPending,
		CreatedAt:      now,
		ExecuteAfter:   now.Add(m.timelock),
	}
	if len(proposal.Approvals) >= m.threshold {
		proposal.Status = StatusReady
	}
	if err := m.persist(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	m.nextNonce++
	return proposal, nil
}

// Approve records one guardian's approval. Approvals are not idempotent: a
// repeated approval is an error so a confused guardian UI cannot silently
// inflate the count.
func (m *StateMachine) Approve(ctx context.Context, guardian string, nonce uint64) (Proposal, error) {
	if !m.isGuardian(guardian) {
		return Proposal{}, ErrNotAGuardian
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	proposal, err := m.load(ctx, nonce)
	if err != nil {
		return Proposal{}, err
	}
	if proposal.Status.terminal() {
		return Proposal{}, ErrProposalTerminal
	}
	if proposal.Approved(guardian) {
		return Proposal{}, ErrAlreadyApproved
	}

	proposal.Approvals = append(proposal.Approvals, guardian)
	if len(proposal.Approvals) >= m.threshold {
		proposal.Status = StatusReady
	}
	if err := m.persist(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// Execute applies a ready proposal once the timelock boundary is reached
// (inclusive). The executed state is persisted before the apply callback
// runs, so a persist failure never leads to a second apply of a swap that
// already happened; if the callback itself fails the proposal is rolled back
// to ready and can be retried.
func (m *StateMachine) Execute(ctx context.Context, nonce uint64, apply func(ctx context.Context, proposal Proposal) error) (Proposal, error) {
	if apply == nil {
		return Proposal{}, fmt.Errorf("apply callback is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	proposal, err := m.load(ctx, nonce)
	if err != nil {
		return Proposal{}, err
	}
	if proposal.Status.terminal() {
		return Proposal{}, ErrProposalTerminal
	}
	if len(proposal.Approvals) < m.threshold {
		return Proposal{}, ErrThresholdNotMet
	}
	if m.clock().UTC().Before(proposal.ExecuteAfter) {
		return Proposal{}, ErrTimelockNotElapsed
	}

	proposal.Status = StatusExecuted
	if err := m.persist(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	if err := apply(ctx, proposal); err != nil {
		proposal.Status = StatusReady
		if persistErr := m.persist(ctx, proposal); persistErr != nil {
			return Proposal{}, fmt.Errorf("apply recovery: %w (rollback failed: %v)", err, persistErr)
		}
		return Proposal{}, fmt.Errorf("apply recovery: %w", err)
	}
	return proposal, nil
}

// Cancel terminates a proposal. The owner can cancel unconditionally at any
// non-terminal state; a guardian can only cancel while the proposal is still
// below threshold.
func (m *StateMachine) Cancel(ctx context.Context, caller string, nonce uint64) (Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	proposal, err := m.load(ctx, nonce)
	if err != nil {
		return Proposal{}, err
	}
	if proposal.Status.terminal() {
		return Proposal{}, ErrProposalTerminal
	}

	switch {
	case caller == m.owner:
		// Unconditional owner veto.
	case m.isGuardian(caller):
		if proposal.Status != StatusPending {
			return Proposal{}, ErrNotAuthorized
		}
	default:
		return Proposal{}, ErrNotAuthorized
	}

	proposal.Status = StatusCancelled
	if err := m.persist(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// Proposal returns one proposal by nonce.
func (m *StateMachine) Proposal(ctx context.Context, nonce uint64) (Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, nonce)
}

// Proposals lists all proposals for the account ordered by nonce.
func (m *StateMachine) Proposals(ctx context.Context) ([]Proposal, error) {
	records, err := m.store.ListProposalsByAccount(ctx, string(m.address))
	if err != nil {
		return nil, err
	}
	proposals := make([]Proposal, 0, len(records))
	for _, record := range records {
		proposal, err := decodeProposal(record)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}

func (m *StateMachine) load(ctx context.Context, nonce uint64) (Proposal, error) {
	record, err := m.store.GetProposal(ctx, string(m.address), nonce)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			return Proposal{}, ErrProposalNotFound
		}
		return Proposal{}, err
	}
	return decodeProposal(record)
}

func (m *StateMachine) persist(ctx context.Context, proposal Proposal) error {
	payload, err := json.Marshal(proposal)
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}
	now := m.clock().UTC()
	return m.store.PutProposal(ctx, storage.ProposalRecord{
		AccountAddress: string(proposal.AccountAddress),
		Nonce:          proposal.Nonce,
		ProposalJSON:   string(payload),
		Status:         string(proposal.Status),
		CreatedAt:      proposal.CreatedAt,
		UpdatedAt:      now,
	})
}

func decodeProposal(record storage.ProposalRecord) (Proposal, error) {
	var proposal Proposal
	if err := json.Unmarshal([]byte(record.ProposalJSON), &proposal); err != nil {
		return Proposal{}, fmt.Errorf("decode proposal %d: %w", record.Nonce, err)
	}
	return proposal, nil
}

// proposalJSON is the persisted shape. Key coordinates travel as decimal
// strings to avoid JSON number precision loss.
type proposalJSON struct {
	AccountAddress string   `json:"account_address"`
	Nonce          uint64   `json:"nonce"`
	NewOwnerKey    []byte   `json:"new_owner_key"`
	NewPasskeyX    string   `json:"new_passkey_x,omitempty"`
	NewPasskeyY    string   `json:"new_passkey_y,omitempty"`
	Proposer       string   `json:"proposer"`
	Approvals      []string `json:"approvals"`
	Status         string   `json:"status"`
	CreatedAt      int64    `json:"created_at_ms"`
	ExecuteAfter   int64    `json:"execute_after_ms"`
}

// MarshalJSON implements the persisted encoding.
func (p Proposal) MarshalJSON() ([]byte, error) {
	encoded := proposalJSON{
		AccountAddress: string(p.AccountAddress),
		Nonce:          p.Nonce,
		NewOwnerKey:    p.NewOwnerKey,
		Proposer:       p.Proposer,
		Approvals:      p.Approvals,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt.UnixMilli(),
		ExecuteAfter:   p.ExecuteAfter.UnixMilli(),
	}
	if p.NewPasskey != nil {
		encoded.NewPasskeyX = p.NewPasskey.X.String()
		encoded.NewPasskeyY = p.NewPasskey.Y.String()
	}
	return json.Marshal(encoded)
}

// UnmarshalJSON restores a proposal from its persisted encoding.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var decoded proposalJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	p.AccountAddress = account.Address(decoded.AccountAddress)
	p.Nonce = decoded.Nonce
	p.NewOwnerKey = decoded.NewOwnerKey
	p.Proposer = decoded.Proposer
	p.Approvals = decoded.Approvals
	p.Status = ProposalStatus(decoded.Status)
	p.CreatedAt = time.UnixMilli(decoded.CreatedAt).UTC()
	p.ExecuteAfter = time.UnixMilli(decoded.ExecuteAfter).UTC()
	p.NewPasskey = nil
	if decoded.NewPasskeyX != "" && decoded.NewPasskeyY != "" {
		x, ok := new(big.Int).SetString(decoded.NewPasskeyX, 10)
		if !ok {
			return fmt.Errorf("decode passkey x")
		}
		y, ok := new(big.Int).SetString(decoded.NewPasskeyY, 10)
		if !ok {
			return fmt.Errorf("decode passkey y")
		}
		p.NewPasskey = &account.PublicKeyPoint{X: x, Y: y}
	}
	return nil
}
