package form

import "errors"

// ErrInvalidValue is returned when a module field cannot be normalized into
// what the platform form accepts.
var ErrInvalidValue = errors.New("invalid form value")
