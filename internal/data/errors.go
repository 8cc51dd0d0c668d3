package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Job repository sentinels.
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotRetryable  = errors.New("job is not in a retryable state")
	ErrJobNotInDLQ      = errors.New("job is not dead lettered")

	// Credit ledger sentinels.
	ErrReservationNotFound = errors.New("reservation not found")

	// Project repository sentinels.
	ErrProjectNotFound = errors.New("project not found")
)
