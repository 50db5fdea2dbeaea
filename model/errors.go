package model

import "errors"

// Sentinel errors for the failure taxonomy. Callers match them with
// errors.Is; subsystems wrap them with operation context.
var (
	// ErrValidation indicates content was rejected by the validator.
	ErrValidation = errors.New("memory: content validation failed")

	// ErrAccessDenied indicates the access controller denied the operation.
	ErrAccessDenied = errors.New("memory: access denied")

	// ErrEscalationRequired indicates the operation needs a higher-privilege
	// approval path rather than an outright denial.
	ErrEscalationRequired = errors.New("memory: escalation required")

	// ErrRateLimited indicates the per-operation rolling-hour limit was hit.
	ErrRateLimited = errors.New("memory: rate limit exceeded")

	// ErrStorage indicates a backend I/O or constraint failure.
	ErrStorage = errors.New("memory: storage operation failed")

	// ErrEncryption indicates an encrypt step failed; the entry is unmodified.
	ErrEncryption = errors.New("memory: encryption failed")

	// ErrDecryption indicates a decrypt step failed; the entry is unmodified.
	ErrDecryption = errors.New("memory: decryption failed")

	// ErrNotFound indicates no entry matched the given owner, key and type.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrConfiguration indicates malformed backend or security configuration.
	ErrConfiguration = errors.New("memory: invalid configuration")
)
