package feed

import (
	"io"
	"log/slog"

	"github.com/rpggio/triagewatch/internal/domain/activity"
)

// Notifier logs a line for live records a person watching the finding would
// want to hear about.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{logger: logger.With("component", "notify")}
}

// OnActivity implements activity.Observer.
func (n *Notifier) OnActivity(rec activity.Record) {
	switch rec.Type {
	case activity.TypeComment:
		n.logger.Info("new comment",
			"finding_id", rec.FindingID,
			"author", rec.Actor.DisplayName(),
		)
	case activity.TypeAITriage:
		attrs := []any{"finding_id", rec.FindingID}
		if p, ok := rec.Payload.(activity.TriagePayload); ok && p.Severity != "" {
			attrs = append(attrs, "severity", p.Severity)
		}
		n.logger.Info("AI triage completed", attrs...)
	case activity.TypeAITriageFailed:
		attrs := []any{"finding_id", rec.FindingID}
		if p, ok := rec.Payload.(activity.TriagePayload); ok && p.Error != "" {
			attrs = append(attrs, "reason", p.Error)
		}
		n.logger.Warn("AI triage failed", attrs...)
	}
}
