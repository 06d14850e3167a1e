// Package authz composes multi-factor authorization artifacts for on-chain
// operations. Each enabled factor contributes exactly one signature over the
// operation hash; a partial artifact is never returned.
package authz

import (
	"context"

	"github.com/louisbranch/warden/internal/platform/errors"
	"github.com/louisbranch/warden/internal/wallet/account"
	"github.com/louisbranch/warden/internal/wallet/chain"
)

// Sentinel errors for authorization composition.
var (
	ErrSignerUnavailable = errors.New(errors.CodeAuthzSignerUnavailable, "a required signer is unavailable")
	ErrUserRejected      = errors.New(errors.CodeAuthzUserRejected, "the user rejected the signing prompt")
	ErrFactorMismatch    = errors.New(errors.CodeAuthzFactorMismatch, "provided signers do not match the required factors")
)

// Signer produces one factor's signature over an operation hash.
type Signer interface {
	Factor() account.Factor
	Sign(ctx context.Context, opHash [32]byte) (chain.Signature, error)
}

// RequiredFactors returns the signer domains an operation on the account must
// carry, in signing order. The passkey factor is always required; the owner
// factor joins it when two-factor authorization is enabled.
func RequiredFactors(acct account.Account) []account.Factor {
	if acct.TwoFactor {
		return []account.Factor{account.FactorOwner, account.FactorPasskey}
	}
	return []account.Factor{account.FactorPasskey}
}

// Composer assembles complete authorization artifacts.
type Composer struct{}

// Authorize collects one signature per required factor, owner first. The
// passkey prompt is the last interactive step, so an unavailable or rejected
// owner signer fails the operation before the user touches the authenticator.
// Any signer failure aborts the whole artifact.
func (Composer) Authorize(ctx context.Context, acct account.Account, op chain.Operation, signers []Signer) ([]chain.Signature, error) {
	required := RequiredFactors(acct)

	byFactor := make(map[account.Factor]Signer, len(signers))
	for _, signer := range signers {
		if signer == nil {
			return nil, ErrSignerUnavailable
		}
		if _, dup := byFactor[signer.Factor()]; dup {
			return nil, errors.WithMetadata(errors.CodeAuthzFactorMismatch, "duplicate signer for factor", map[string]string{
				"factor": string(signer.Factor()),
			})
		}
		byFactor[signer.Factor()] = signer
	}
	if len(byFactor) != len(required) {
		return nil, ErrFactorMismatch
	}
	for _, factor := range required {
		if _, ok := byFactor[factor]; !ok {
			return nil, errors.WithMetadata(errors.CodeAuthzFactorMismatch, "missing signer for required factor", map[string]string{
				"factor": string(factor),
			})
		}
	}

	opHash := op.Hash()
	signatures := make([]chain.Signature, 0, len(required))
	for _, factor := range required {
		signature, err := byFactor[factor].Sign(ctx, opHash)
		if err != nil {
			return nil, err
		}
		if signature.Domain != factor {
			return nil, errors.WithMetadata(errors.CodeAuthzFactorMismatch, "signer produced a signature for the wrong domain", map[string]string{
				"expected": string(factor),
				"got":      string(signature.Domain),
			})
		}
		signatures = append(signatures, signature)
	}
	return signatures, nil
}
