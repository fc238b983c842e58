package finding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/repository"
)

// Service reads finding details through the shared cache.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService creates a new finding service.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// Get returns the finding with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Finding, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	f, err := cache.Fetch(ctx, s.cache, cache.FindingKey(id), func(ctx context.Context) (*Finding, error) {
		return s.repo.GetFinding(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFindingNotFound
		}
		return nil, fmt.Errorf("loading finding: %w", err)
	}
	return f, nil
}
