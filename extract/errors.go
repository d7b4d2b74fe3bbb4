package extract

import "errors"

var (
	// ErrMalformedDocument indicates bytes that could not be parsed as a PDF.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrInvalidLimits indicates inconsistent text limits.
	ErrInvalidLimits = errors.New("invalid text limits")
)
