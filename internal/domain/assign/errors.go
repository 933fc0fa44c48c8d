package assign

import "errors"

// Sentinel errors for this package.
var (
	ErrNoModules          = errors.New("no training modules to assign")
	ErrUnknownPolicy      = errors.New("unknown assignment policy")
	ErrHistoryUnavailable = errors.New("assignment history unavailable")
)
