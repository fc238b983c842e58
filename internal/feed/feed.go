// Package feed keeps the reconciled activity view of a finding: its fetched
// history page, its live stream, and the finding and triage details the
// triage trigger refreshes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/stream"
)

// ErrClosed is returned by operations on a closed feed or registry.
var ErrClosed = errors.New("feed closed")

// ActivityService reads and writes finding activity.
type ActivityService interface {
	ListActivities(ctx context.Context, findingID string, opts activity.ListActivityOptions) (*activity.Page, error)
	PostComment(ctx context.Context, findingID, content string) error
}

// FindingService reads finding details.
type FindingService interface {
	Get(ctx context.Context, id string) (*finding.Finding, error)
}

// TriageService reads triage results.
type TriageService interface {
	Get(ctx context.Context, findingID string) (*triage.Result, error)
}

// Deps are the collaborators shared by every feed.
type Deps struct {
	Activities ActivityService
	Findings   FindingService
	Triage     TriageService
	Cache      *cache.Cache
	Dialer     stream.Dialer
	Stream     stream.Options
	PageSize   int
	Logger     *slog.Logger
}

// Snapshot is the reconciled view of a finding at one point in time.
type Snapshot struct {
	FindingID  string            `json:"finding_id"`
	Finding    *finding.Finding  `json:"finding,omitempty"`
	Triage     *triage.Result    `json:"triage,omitempty"`
	Activities []activity.Record `json:"activities"`
	Live       int               `json:"live_count"`
	State      stream.State      `json:"stream_state"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Feed is the activity view of one finding.
type Feed struct {
	findingID  string
	deps       Deps
	pageSize   int
	reconciler *activity.Reconciler
	stream     *stream.Client
	logger     *slog.Logger

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	fetchSeq  uint64
	finding   *finding.Finding
	triage    *triage.Result
	fetchedAt time.Time
}

// Open starts the live subscription of findingID and fetches its first
// history page along with the finding and triage details.
func Open(ctx context.Context, findingID string, deps Deps) (*Feed, error) {
	if findingID == "" {
		return nil, activity.ErrInvalidInput
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = activity.DefaultPageSize
	}

	logger := deps.Logger.With("component", "feed", "finding_id", findingID)
	bgCtx, cancel := context.WithCancel(context.Background())

	f := &Feed{
		findingID: findingID,
		deps:      deps,
		pageSize:  pageSize,
		reconciler: activity.NewReconciler(
			triage.NewTrigger(deps.Cache, deps.Logger),
			NewNotifier(deps.Logger),
		),
		stream: stream.NewClient(deps.Dialer, deps.Stream, deps.Logger),
		logger: logger,
		ctx:    bgCtx,
		cancel: cancel,
	}
	f.unsubscribe = deps.Cache.Subscribe(cache.ActivitiesKey(findingID), f.onInvalidate)
	f.stream.Watch(findingID, f.reconciler.Push)

	if err := f.Refresh(ctx); err != nil {
		f.Close()
		return nil, err
	}
	logger.Debug("feed opened")
	return f, nil
}

// FindingID returns the finding this feed follows.
func (f *Feed) FindingID() string {
	return f.findingID
}

// Activities returns the reconciled activity list: live records first, then
// fetched records not already seen live.
func (f *Feed) Activities() []activity.Record {
	return f.reconciler.Activities()
}

// State returns the live connection state.
func (f *Feed) State() stream.State {
	return f.stream.State()
}

// Subscribe registers an observer for live records.
func (f *Feed) Subscribe(o activity.Observer) {
	f.reconciler.Subscribe(o)
}

// Snapshot returns the current reconciled view.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	fin, res, fetchedAt := f.finding, f.triage, f.fetchedAt
	f.mu.Unlock()

	return Snapshot{
		FindingID:  f.findingID,
		Finding:    fin,
		Triage:     res,
		Activities: f.reconciler.Activities(),
		Live:       len(f.reconciler.Live()),
		State:      f.stream.State(),
		FetchedAt:  fetchedAt,
	}
}

// Refresh reloads the history page, the finding and its triage result
// through the shared cache.
func (f *Feed) Refresh(ctx context.Context) error {
	if f.isClosed() {
		return ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.refetchActivities(gctx)
	})
	g.Go(func() error {
		fin, err := f.deps.Findings.Get(gctx, f.findingID)
		if errors.Is(err, finding.ErrFindingNotFound) {
			fin, err = nil, nil
		}
		if err != nil {
			return err
		}
		return f.apply(func() { f.finding = fin })
	})
	g.Go(func() error {
		res, err := f.deps.Triage.Get(gctx, f.findingID)
		if errors.Is(err, triage.ErrTriageNotFound) {
			res, err = nil, nil
		}
		if err != nil {
			return err
		}
		return f.apply(func() { f.triage = res })
	})
	return g.Wait()
}

// Reload marks the finding's cached reads stale and refreshes them.
func (f *Feed) Reload(ctx context.Context) error {
	if f.isClosed() {
		return ErrClosed
	}
	for _, key := range []string{
		cache.FindingKey(f.findingID),
		cache.TriageKey(f.findingID),
		cache.ActivitiesKey(f.findingID),
	} {
		if err := f.deps.Cache.Invalidate(ctx, key); err != nil {
			f.logger.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
		}
	}
	return f.Refresh(ctx)
}

// PostComment adds a comment to the finding. The comment is not inserted
// locally; on success the history page is marked stale and refetched, and
// the stream usually delivers the record first.
func (f *Feed) PostComment(ctx context.Context, content string) error {
	if f.isClosed() {
		return ErrClosed
	}
	if err := f.deps.Activities.PostComment(ctx, f.findingID, content); err != nil {
		return err
	}
	if err := f.deps.Cache.Invalidate(ctx, cache.ActivitiesKey(f.findingID)); err != nil {
		f.logger.WarnContext(ctx, "cache invalidation failed", "error", err)
	}
	return nil
}

// Close stops the live subscription and discards pending fetches.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.stream.Close()
	f.unsubscribe()
	f.cancel()
	f.wg.Wait()
	f.reconciler.Reset()
	f.logger.Debug("feed closed")
}

func (f *Feed) refetchActivities(ctx context.Context) error {
	f.mu.Lock()
	f.fetchSeq++
	seq := f.fetchSeq
	f.mu.Unlock()

	opts := activity.ListActivityOptions{Page: 1, PageSize: f.pageSize}
	page, err := cache.Fetch(ctx, f.deps.Cache, cache.ActivitiesPageKey(f.findingID, opts.Page, opts.PageSize),
		func(ctx context.Context) (*activity.Page, error) {
			return f.deps.Activities.ListActivities(ctx, f.findingID, opts)
		})
	if err != nil {
		return fmt.Errorf("fetching activity history: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if seq != f.fetchSeq {
		return nil
	}
	f.reconciler.SetFetched(page.Items)
	f.fetchedAt = time.Now()
	return nil
}

// onInvalidate runs on the invalidating goroutine, which may be the stream
// goroutine, so the refetch happens in the background.
func (f *Feed) onInvalidate(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.refetchActivities(f.ctx); err != nil && !errors.Is(err, ErrClosed) && f.ctx.Err() == nil {
			f.logger.Warn("activity refetch failed", "error", err)
		}
	}()
}

func (f *Feed) apply(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	fn()
	return nil
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
