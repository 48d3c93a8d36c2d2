package domain

import "errors"

// ErrCorruptSnapshot is returned when a buffered snapshot cannot be decoded.
// Retrying cannot fix it.
var ErrCorruptSnapshot = errors.New("corrupt buffered snapshot")
