package contract

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrInfrastructure = errors.New("infrastructure unavailable")
	ErrRateLimited    = errors.New("rate limited")

	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrRetriesExhausted = errors.New("retries exhausted")
)
