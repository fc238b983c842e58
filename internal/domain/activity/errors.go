package activity

import "errors"

var (
	// ErrInvalidInput indicates invalid activity input.
	ErrInvalidInput = errors.New("invalid activity input")
	// ErrEmptyComment indicates a comment with no content.
	ErrEmptyComment = errors.New("comment content is empty")
)
