package domain

import "errors"

// Domain errors - use with errors.Is()
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation
	ErrConflict = errors.New("already exists")

	// ErrValidation indicates invalid input
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates authentication failure
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates authorization failure
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the caller exceeded a sliding-window request limit
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the caller's token quota is exhausted for the period
	ErrQuotaExceeded = errors.New("token quota exceeded")

	// ErrSessionNotFound indicates the referenced session does not exist or has expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrToolResultMismatch indicates a tool-result submission doesn't match the session's pending tool
	ErrToolResultMismatch = errors.New("tool result does not match pending tool")

	// ErrSessionLocked indicates another request currently owns the session's advisory lock
	ErrSessionLocked = errors.New("session is locked by another request")

	// ErrMaxIterations indicates the session reached MAX_ITERATIONS without a terminal tool
	ErrMaxIterations = errors.New("maximum analysis iterations reached")
)
