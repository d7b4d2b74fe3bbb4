package columnar

import "errors"

var (
	// ErrEmptyBatch is returned when asked to write a batch without rows.
	ErrEmptyBatch = errors.New("batch has no rows")

	// ErrEmptyFile indicates a batch file that is empty after writing.
	ErrEmptyFile = errors.New("batch file is empty after write")

	// ErrNoOutputDir is returned when no output directory is configured.
	ErrNoOutputDir = errors.New("output directory is required")

	// ErrEncode wraps a failure inside the parquet encoder.
	ErrEncode = errors.New("encoding batch file failed")

	// ErrCorruptVector indicates a stored vector component outside the int8 range.
	ErrCorruptVector = errors.New("vector component out of int8 range")
)
