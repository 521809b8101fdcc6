package inventory

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid numeric input")
	ErrInvalidRange       = errors.New("value out of range")
	ErrMissingField       = errors.New("required field missing")
	ErrDuplicateRecord    = errors.New("product already exists")
	ErrDeltaTooLarge      = errors.New("quantity change too large")
	ErrNotFound           = errors.New("product not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrOperationFailed    = errors.New("operation failed")

	// ErrMalformedRecord marks a persisted row that cannot be parsed. Load
	// reports it wrapped in ErrStorageUnavailable.
	ErrMalformedRecord = errors.New("malformed record")
)
