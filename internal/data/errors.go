package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotCancellable is returned when attempting to cancel a job that
	// is no longer waiting.
	ErrJobNotCancellable = errors.New("job cannot be cancelled (only waiting jobs can be removed)")

	// ErrStockRowNotFound is returned when no stock row exists for a
	// (location, item) pair.
	ErrStockRowNotFound = errors.New("location stock row not found")
)
