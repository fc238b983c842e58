package finding

import "errors"

var (
	// ErrFindingNotFound indicates the finding doesn't exist.
	ErrFindingNotFound = errors.New("finding not found")
	// ErrInvalidInput indicates invalid finding input.
	ErrInvalidInput = errors.New("invalid finding input")
)
