package distill

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("distill: invalid configuration")

	// ErrInvalidLength is returned for summary length bounds that cannot
	// be satisfied.
	ErrInvalidLength = errors.New("distill: invalid summary length")

	// ErrHistoryDisabled is returned by run history queries when history
	// is not enabled.
	ErrHistoryDisabled = errors.New("distill: run history disabled")

	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("distill: run not found")

	// ErrVisionUnsupported is returned when the configured vision
	// provider cannot take images.
	ErrVisionUnsupported = errors.New("distill: vision provider does not accept images")
)
