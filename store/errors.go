package store

import "errors"

// ErrNotFound is returned by backends when a requested record does not
// exist or has been soft-deleted. Callers should test with errors.Is.
var ErrNotFound = errors.New("record not found")
