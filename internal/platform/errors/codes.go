// Package errors provides structured error handling for the wallet core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Credential errors
	CodeCredentialExists               Code = "CREDENTIAL_EXISTS"
	CodeCredentialNotFound             Code = "CREDENTIAL_NOT_FOUND"
	CodeCredentialMalformedAttestation Code = "CREDENTIAL_MALFORMED_ATTESTATION"
	CodeCredentialUnsupportedPlatform  Code = "CREDENTIAL_UNSUPPORTED_PLATFORM"
	CodeCredentialUserCancelled        Code = "CREDENTIAL_USER_CANCELLED"

	// Pairing session errors
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeSessionExpired          Code = "SESSION_EXPIRED"
	CodeSessionAlreadyCompleted Code = "SESSION_ALREADY_COMPLETED"
	CodeSessionPollTimeout      Code = "SESSION_POLL_TIMEOUT"
	CodeSessionOwnerSignature   Code = "SESSION_OWNER_SIGNATURE_INVALID"
	CodeSessionInvalidDevice    Code = "SESSION_INVALID_DEVICE_DATA"

	// Authorization composition errors
	CodeAuthzSignerUnavailable Code = "AUTHZ_SIGNER_UNAVAILABLE"
	CodeAuthzUserRejected      Code = "AUTHZ_USER_REJECTED"
	CodeAuthzFactorMismatch    Code = "AUTHZ_FACTOR_MISMATCH"

	// Recovery errors
	CodeRecoveryNotAGuardian       Code = "RECOVERY_NOT_A_GUARDIAN"
	CodeRecoveryAlreadyApproved    Code = "RECOVERY_ALREADY_APPROVED"
	CodeRecoveryProposalNotFound   Code = "RECOVERY_PROPOSAL_NOT_FOUND"
	CodeRecoveryProposalTerminal   Code = "RECOVERY_PROPOSAL_TERMINAL"
	CodeRecoveryThresholdNotMet    Code = "RECOVERY_THRESHOLD_NOT_MET"
	CodeRecoveryTimelockNotElapsed Code = "RECOVERY_TIMELOCK_NOT_ELAPSED"
	CodeRecoveryNotAuthorized      Code = "RECOVERY_NOT_AUTHORIZED"

	// Session key errors
	CodeSessionKeyInactive         Code = "SESSION_KEY_INACTIVE"
	CodeSessionKeyExpired          Code = "SESSION_KEY_EXPIRED"
	CodeSessionKeyNotYetValid      Code = "SESSION_KEY_NOT_YET_VALID"
	CodeSessionKeyPerTxLimit       Code = "SESSION_KEY_PER_TX_LIMIT_EXCEEDED"
	CodeSessionKeyTotalLimit       Code = "SESSION_KEY_TOTAL_LIMIT_EXCEEDED"
	CodeSessionKeyTargetNotAllowed Code = "SESSION_KEY_TARGET_NOT_ALLOWED"

	// Account errors
	CodeAccountInvalidAddress Code = "ACCOUNT_INVALID_ADDRESS"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps an error code to the HTTP status used by the session store API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeSessionNotFound, CodeCredentialNotFound, CodeRecoveryProposalNotFound:
		return http.StatusNotFound
	case CodeSessionAlreadyCompleted:
		return http.StatusConflict
	case CodeSessionExpired:
		return http.StatusGone
	case CodeSessionOwnerSignature, CodeRecoveryNotAuthorized:
		return http.StatusUnauthorized
	case CodeRecoveryNotAGuardian:
		return http.StatusForbidden
	case CodeSessionInvalidDevice, CodeAccountInvalidAddress,
		CodeRecoveryAlreadyApproved, CodeRecoveryProposalTerminal,
		CodeRecoveryThresholdNotMet, CodeRecoveryTimelockNotElapsed,
		CodeAuthzFactorMismatch,
		CodeSessionKeyInactive, CodeSessionKeyExpired, CodeSessionKeyNotYetValid,
		CodeSessionKeyPerTxLimit, CodeSessionKeyTotalLimit, CodeSessionKeyTargetNotAllowed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
