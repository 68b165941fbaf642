// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors. These are fatal at startup.
var (
	ErrRootSecretMissing = errors.New("protocol root secret is not configured")
	ErrRootSecretWeak    = errors.New("protocol root secret fails minimum strength requirements")
)

// Viewing key errors
var (
	ErrKeyNotFound       = errors.New("viewing key not found")
	ErrKeyExpired        = errors.New("viewing key expired")
	ErrKeyRevoked        = errors.New("viewing key revoked")
	ErrKeyRotated        = errors.New("viewing key superseded by rotation")
	ErrMaxDepthExceeded  = errors.New("derivation path exceeds maximum depth")
	ErrHierarchyMismatch = errors.New("derived key hash does not match recorded hash")
	ErrApprovalRequired  = errors.New("master key operation requires an approved request")
)

// Commitment errors
var (
	ErrCommitmentNotFound   = errors.New("commitment not found")
	ErrBatchPartialFailure  = errors.New("batch commitment creation failed, rolled back")
	ErrInvalidCommitment    = errors.New("malformed commitment point")
	ErrInvalidBlindingValue = errors.New("malformed blinding factor")
)

// Disclosure errors
var (
	ErrDisclosureNotFound = errors.New("disclosure not found")
	ErrDisclosureExpired  = errors.New("disclosure expired")
	ErrDisclosureRevoked  = errors.New("disclosure revoked")
	// ErrAccessDenied is the only lifecycle error surfaced to external
	// auditors. Expired and revoked must be indistinguishable to them.
	ErrAccessDenied = errors.New("access denied")
)

// Crypto errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSignatureInvalid     = errors.New("signature verification failed")
)

// Multi-sig errors
var (
	ErrRequestNotFound     = errors.New("approval request not found")
	ErrRequestExpired      = errors.New("approval request expired")
	ErrThresholdNotMet     = errors.New("signature threshold not met")
	ErrSignerNotRegistered = errors.New("signer has no registered public key")
)

// Collaborator errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// HTTP layer errors
var (
	ErrDuplicateRequest = errors.New("duplicate request")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New returns a new error with the given text.
func New(text string) error {
	return errors.New(text)
}
