package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode indicates a unique code constraint violation.
	ErrDuplicateCode = errors.New("duplicate code")
)
