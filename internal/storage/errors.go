package storage

import "errors"

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidInput is returned when a caller passes a record missing
// required fields.
var ErrInvalidInput = errors.New("storage: invalid input")

// ErrConflict is returned by a version-guarded update when the row's stored
// version no longer matches the version the caller read, meaning another
// writer updated it first. Callers should re-read and retry.
var ErrConflict = errors.New("storage: version conflict")
