package retry

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrNegativeDelay is returned when a policy has a negative delay.
	ErrNegativeDelay = errors.New("retry delays cannot be negative")

	// ErrInvalidJitter is returned when the jitter range is empty or negative.
	ErrInvalidJitter = errors.New("jitter range must satisfy 0 <= min <= max")
)
