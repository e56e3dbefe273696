package authcore

import "errors"

var (
	// ErrEngineNotReady indicates the engine was used before Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrRecordNotFound indicates a point lookup matched no row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists indicates a uniqueness violation on insert.
	ErrRecordExists = errors.New("record already exists")
	// ErrStaleRecord indicates an optimistic-concurrency stamp mismatch.
	// Reported distinctly from ErrRecordNotFound so callers can re-fetch
	// and retry.
	ErrStaleRecord = errors.New("record stamp stale")
	// ErrLockContended indicates a non-blocking named lock is held elsewhere.
	ErrLockContended = errors.New("lock held by another caller")
	// ErrStoreUnavailable indicates the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnknown marks conditions the contract considers impossible, such as
	// a stored secret that no longer decrypts. Always logged, never mapped
	// to a user-facing outcome.
	ErrUnknown = errors.New("unknown error")

	// ErrTOTPAlreadyEnabled indicates enrollment on an account with TOTP on.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPNotConfigured indicates confirmation without a pending secret.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPInvalid indicates a code that matched no accepted time step.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPReplayed indicates a code identical to the last accepted one.
	ErrTOTPReplayed = errors.New("totp code already used")

	// ErrRegistrationInvalid indicates a registration request that failed
	// validation before touching the store.
	ErrRegistrationInvalid = errors.New("invalid registration request")
)
