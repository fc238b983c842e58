package triage

import "errors"

var (
	// ErrTriageNotFound indicates no triage has been run for the finding.
	ErrTriageNotFound = errors.New("triage result not found")
	// ErrInvalidInput indicates invalid triage input.
	ErrInvalidInput = errors.New("invalid triage input")
)
