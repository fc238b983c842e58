package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/repository"
)

// Service reads triage results through the shared cache.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService creates a new triage service.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// Get returns the latest triage result for a finding.
func (s *Service) Get(ctx context.Context, findingID string) (*Result, error) {
	if findingID == "" {
		return nil, ErrInvalidInput
	}
	res, err := cache.Fetch(ctx, s.cache, cache.TriageKey(findingID), func(ctx context.Context) (*Result, error) {
		return s.repo.GetTriage(ctx, findingID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTriageNotFound
		}
		return nil, fmt.Errorf("loading triage: %w", err)
	}
	return res, nil
}
