package imagecurate

import "errors"

var (
	// ErrUnreadable means the file could not be opened or stat'ed.
	ErrUnreadable = errors.New("imagecurate: unreadable")
	// ErrUndecodable means the image codec could not read the dimensions.
	ErrUndecodable = errors.New("imagecurate: undecodable")
	// ErrFingerprintUnavailable is non-fatal: the asset passes without a fingerprint.
	ErrFingerprintUnavailable = errors.New("imagecurate: fingerprint unavailable")
	// ErrBudgetUnmet is non-fatal: the compressor returned its best effort.
	ErrBudgetUnmet = errors.New("imagecurate: byte budget unmet")
	// ErrWriteFailure marks a per-asset materialization failure.
	ErrWriteFailure = errors.New("imagecurate: write failure")
	// ErrConfig is fatal to a whole run.
	ErrConfig = errors.New("imagecurate: invalid configuration")
)
