package service

import "errors"

// Sentinel errors for this package.
var (
	ErrNotConfigured = errors.New("service component not configured")
	ErrNotQueued     = errors.New("assignment not queued")
	ErrDuplicate     = errors.New("person already assigned in this run")
)
