package domain

import "errors"

var (
	ErrAlreadyRunning          = errors.New("session already running")
	ErrNotRunning              = errors.New("no session running")
	ErrUnknownScenario         = errors.New("unknown scenario")
	ErrInvalidConfig           = errors.New("invalid configuration")
	ErrInvalidPriceSample      = errors.New("invalid price sample")
	ErrExecutorFailure         = errors.New("trade execution failed")
	ErrUpstreamFeedUnavailable = errors.New("upstream price feed unavailable")
	ErrNotFound                = errors.New("not found")
	ErrLockHeld                = errors.New("lock already held")
)
