package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/feed"
	"github.com/rpggio/triagewatch/internal/repository"
)

// APIError represents an MCP tool error.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, finding.ErrFindingNotFound):
		return &APIError{Code: "FINDING_NOT_FOUND", Message: "finding not found", RecoveryHint: "Check the finding id"}
	case errors.Is(err, triage.ErrTriageNotFound):
		return &APIError{Code: "TRIAGE_NOT_FOUND", Message: "no triage result for this finding", RecoveryHint: "Request an AI triage first"}
	case errors.Is(err, activity.ErrEmptyComment):
		return &APIError{Code: "EMPTY_COMMENT", Message: "comment content is empty", RecoveryHint: "Provide non-blank content"}
	case errors.Is(err, activity.ErrInvalidInput),
		errors.Is(err, finding.ErrInvalidInput),
		errors.Is(err, triage.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Check the tool arguments"}
	case errors.Is(err, repository.ErrUnauthorized):
		return &APIError{Code: "BACKEND_UNAUTHORIZED", Message: "backend rejected the credentials", RecoveryHint: "Check the backend token"}
	case errors.Is(err, repository.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: "backend resource not found", RecoveryHint: "Check the finding id"}
	case errors.Is(err, feed.ErrClosed):
		return &APIError{Code: "FEED_CLOSED", Message: "finding feed was closed", RecoveryHint: "Retry to reopen the feed"}
	default:
		return nil
	}
}

func toAPIError(err error) *APIError {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return &APIError{Code: "BACKEND_ERROR", Message: err.Error(), RecoveryHint: "Retry later"}
}
