package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/feed"
	"github.com/rpggio/triagewatch/internal/repository"
)

// Error is the body of every error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Code: code, Message: message})
}

// writeDomainError maps a domain error to an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, activity.ErrEmptyComment):
		writeError(w, http.StatusBadRequest, "empty_comment", err.Error())
	case errors.Is(err, activity.ErrInvalidInput), errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, finding.ErrFindingNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, feed.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "feed_closed", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "backend_error", err.Error())
	}
}
