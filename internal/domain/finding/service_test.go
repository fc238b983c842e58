package finding_test

import (
	"context"
	"testing"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/repository"
	"github.com/rpggio/triagewatch/internal/repository/mocks"
	"github.com/stretchr/testify/require"
)

func TestFindingService_GetIsCached(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	repo := &mocks.FindingRepository{}
	repo.On("GetFinding", ctx, "f1").Return(&finding.Finding{ID: "f1", Title: "Open S3 bucket", Severity: "high"}, nil).Once()

	svc := finding.NewService(repo, c, nil)
	f, err := svc.Get(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "Open S3 bucket", f.Title)

	f, err = svc.Get(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "high", f.Severity)
	repo.AssertExpectations(t)
}

func TestFindingService_RefetchAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	repo := &mocks.FindingRepository{}
	repo.On("GetFinding", ctx, "f1").Return(&finding.Finding{ID: "f1", Status: "open"}, nil).Once()
	repo.On("GetFinding", ctx, "f1").Return(&finding.Finding{ID: "f1", Status: "triaged"}, nil).Once()

	svc := finding.NewService(repo, c, nil)
	f, err := svc.Get(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "open", f.Status)

	require.NoError(t, c.Invalidate(ctx, cache.FindingKey("f1")))

	f, err = svc.Get(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "triaged", f.Status)
	repo.AssertExpectations(t)
}

func TestFindingService_Errors(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	repo := &mocks.FindingRepository{}
	repo.On("GetFinding", ctx, "gone").Return(nil, repository.ErrNotFound)

	svc := finding.NewService(repo, c, nil)
	_, err := svc.Get(ctx, "gone")
	require.ErrorIs(t, err, finding.ErrFindingNotFound)

	_, err = svc.Get(ctx, "")
	require.ErrorIs(t, err, finding.ErrInvalidInput)
}
