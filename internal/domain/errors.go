package domain

import "errors"

// Sentinel errors used throughout the application.
// Each pipeline stage maps these to its own skip/retry/abort decision.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessed  = errors.New("post already marked processed")
	ErrInvalidStatus     = errors.New("status is missing an id")
	ErrEmptyMessage      = errors.New("message text must not be empty")
	ErrMalformedUpstream = errors.New("upstream response is not a status collection")
	ErrNoMediaURL        = errors.New("media attachment has no url")
)
