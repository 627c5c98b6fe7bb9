package client

import "github.com/pkg/errors"

// Error taxonomy for remote calls. Each failed call wraps exactly one of
// these so callers can classify without string matching. ErrNetwork marks
// transport-level failures, as opposed to a non-2xx response from the server.
var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrScoringFailed    = errors.New("scoring failed")
	ErrSaveFailed       = errors.New("save failed")
	ErrLoadFailed       = errors.New("load failed")
	ErrDeleteFailed     = errors.New("delete failed")
	ErrFeedbackFailed   = errors.New("feedback failed")
	ErrNetwork          = errors.New("network error")
)
