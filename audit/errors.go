package audit

import "errors"

var (
	// ErrInsufficientData marks an observer uncertainty computed from fewer than
	// two trials. It is informational: the value is reported as zero with a caveat.
	ErrInsufficientData = errors.New("insufficient trials (n < 2)")

	// ErrNoData is returned when a report is requested with no trials recorded.
	ErrNoData = errors.New("no readings to export")

	ErrInvalidCoverageFactor  = errors.New("coverage factor must be 1, 2 or 3")
	ErrIndexOutOfRange        = errors.New("trial index out of range")
	ErrUnknownResolutionModel = errors.New("unknown resolution model")
	ErrUnknownProfile         = errors.New("unknown conservatism profile")
	ErrManagedSource          = errors.New("sensor uncertainty is managed by the selected resolution model")
	ErrSourceNotFound         = errors.New("error source not found")
	ErrDuplicateSource        = errors.New("error source already exists")
	ErrReservedSourceName     = errors.New("error source name is reserved")
	ErrNegativeUncertainty    = errors.New("uncertainty must be non-negative")
	ErrInvalidValue           = errors.New("value must be a finite number")
)
