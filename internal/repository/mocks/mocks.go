package mocks

import (
	"context"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/stretchr/testify/mock"
)

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) ListActivities(ctx context.Context, findingID string, opts activity.ListActivityOptions) (*activity.RawPage, error) {
	args := m.Called(ctx, findingID, opts)
	if page, ok := args.Get(0).(*activity.RawPage); ok {
		return page, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActivityRepository) PostComment(ctx context.Context, findingID, content string) error {
	args := m.Called(ctx, findingID, content)
	return args.Error(0)
}

// FindingRepository is a mock for finding.Repository.
type FindingRepository struct {
	mock.Mock
}

func (m *FindingRepository) GetFinding(ctx context.Context, id string) (*finding.Finding, error) {
	args := m.Called(ctx, id)
	if f, ok := args.Get(0).(*finding.Finding); ok {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

// TriageRepository is a mock for triage.Repository.
type TriageRepository struct {
	mock.Mock
}

func (m *TriageRepository) GetTriage(ctx context.Context, findingID string) (*triage.Result, error) {
	args := m.Called(ctx, findingID)
	if res, ok := args.Get(0).(*triage.Result); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

// Invalidator is a mock for triage.Invalidator.
type Invalidator struct {
	mock.Mock
}

func (m *Invalidator) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
