package tui

import "errors"

// Sentinel errors for this package.
var (
	ErrCancelled = errors.New("unit selection cancelled")
	ErrNoUnits   = errors.New("roster has no units")
)
