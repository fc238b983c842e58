package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the backend rejects the credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput is returned when the backend rejects the request payload
	ErrInvalidInput = errors.New("invalid input")
)
