package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/feed"
	"github.com/rpggio/triagewatch/internal/stream"
)

// FeedRegistry shares finding feeds between requests.
type FeedRegistry interface {
	Open(ctx context.Context, findingID string) (*feed.Feed, error)
	Get(findingID string) (*feed.Feed, bool)
	Release(findingID string) bool
}

// Config wires the HTTP surface.
type Config struct {
	Feeds FeedRegistry
	// MCP is mounted at /mcp when set.
	MCP    http.Handler
	Auth   func(http.Handler) http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	feeds  FeedRegistry
	logger *slog.Logger
}

// StreamState is the body of the stream-state endpoint.
type StreamState struct {
	FindingID string       `json:"finding_id"`
	Watched   bool         `json:"watched"`
	State     stream.State `json:"state"`
	LiveCount int          `json:"live_count"`
}

// NewServer creates an HTTP router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{feeds: cfg.Feeds, logger: logger.With("component", "http")}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(srv.logRequests)

	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}
		if cfg.MCP != nil {
			r.Handle("/mcp", cfg.MCP)
			r.Handle("/mcp/*", cfg.MCP)
		}
		r.Route("/findings/{id}", func(r chi.Router) {
			r.Get("/activities", srv.handleActivities)
			r.Post("/comments", srv.handlePostComment)
			r.Get("/stream-state", srv.handleStreamState)
			r.Delete("/watch", srv.handleUnwatch)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	f, err := s.feeds.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap := f.Snapshot()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
			return
		}
		if limit > 0 && limit < len(snap.Activities) {
			snap.Activities = snap.Activities[:limit]
		}
	}
	if snap.Activities == nil {
		snap.Activities = []activity.Record{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePostComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeDomainError(w, activity.ErrEmptyComment)
		return
	}

	f, err := s.feeds.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := f.PostComment(r.Context(), body.Content); err != nil {
		s.logger.WarnContext(r.Context(), "posting comment failed", "finding_id", f.FindingID(), "error", err)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp := StreamState{FindingID: id, State: stream.StateDisconnected}
	if f, ok := s.feeds.Get(id); ok {
		snap := f.Snapshot()
		resp.Watched = true
		resp.State = snap.State
		resp.LiveCount = snap.Live
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if !s.feeds.Release(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "finding is not watched")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
