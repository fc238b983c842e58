package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Service reads and writes finding activity through a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, logger: logger}
}

// ListActivities returns one normalized page of a finding's history.
func (s *Service) ListActivities(ctx context.Context, findingID string, opts ListActivityOptions) (*Page, error) {
	if findingID == "" {
		return nil, ErrInvalidInput
	}
	opts = opts.withDefaults()

	raw, err := s.repo.ListActivities(ctx, findingID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}

	for _, item := range raw.Items {
		if _, known := backendTypes[strings.ToLower(strings.TrimSpace(item.ActivityType))]; !known {
			s.logger.DebugContext(ctx, "unmapped activity type",
				"finding_id", findingID,
				"activity_id", item.ID,
				"activity_type", item.ActivityType,
			)
		}
	}

	page := NormalizePage(*raw)
	if page.Page == 0 {
		page.Page = opts.Page
	}
	if page.PageSize == 0 {
		page.PageSize = opts.PageSize
	}
	return &page, nil
}

// PostComment adds a comment to a finding. The comment is not added to any
// local view; it arrives through the stream or the next fetch.
func (s *Service) PostComment(ctx context.Context, findingID, content string) error {
	if findingID == "" {
		return ErrInvalidInput
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyComment
	}
	if err := s.repo.PostComment(ctx, findingID, content); err != nil {
		return fmt.Errorf("posting comment: %w", err)
	}
	return nil
}
