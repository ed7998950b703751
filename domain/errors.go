package domain

import "errors"

var (
	ErrNotFound         = errors.New("task not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("task store timeout")
	ErrInvalidStatus    = errors.New("invalid task status")
	ErrInvalidTask      = errors.New("invalid task")
	ErrExternalTask     = errors.New("external tasks are read-only")
	ErrUnavailable      = errors.New("task store unavailable")
)

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")
