package triage

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/domain/activity"
)

// invalidateTimeout bounds the invalidation calls issued for one record.
const invalidateTimeout = 10 * time.Second

// Trigger invalidates triage, finding and activity caches when a live record
// reports that an AI triage run finished.
type Trigger struct {
	invalidator Invalidator
	logger      *slog.Logger
}

// NewTrigger creates a trigger that invalidates through inv.
func NewTrigger(inv Invalidator, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Trigger{invalidator: inv, logger: logger.With("component", "triage_trigger")}
}

// IsCompletion reports whether t marks the end of an AI triage run.
func IsCompletion(t activity.Type) bool {
	return t == activity.TypeAITriage || t == activity.TypeAITriageFailed
}

// OnActivity implements activity.Observer.
func (t *Trigger) OnActivity(rec activity.Record) {
	if !IsCompletion(rec.Type) || rec.FindingID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	t.logger.InfoContext(ctx, "triage finished, refreshing finding",
		"finding_id", rec.FindingID,
		"activity_id", rec.ID,
		"type", rec.Type,
	)

	for _, key := range []string{
		cache.TriageKey(rec.FindingID),
		cache.FindingKey(rec.FindingID),
		cache.ActivitiesKey(rec.FindingID),
	} {
		if err := t.invalidator.Invalidate(ctx, key); err != nil {
			t.logger.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
		}
	}
}
