package dispatch

import (
	"context"
	"log/slog"

	"github.com/modwarden/warden/automod/escalation"
)

// Executes a punishment decision against the chat platform.
//
// Implementations always return a non-nil AuditRecord describing the attempt, along with an error (a *DispatchError) on failure.
type Dispatcher interface {
	Execute(ctx context.Context, d escalation.Decision) (*AuditRecord, error)
}

func actionRecord(d escalation.Decision) *AuditRecord {
	rec := NewAuditRecord(RecordAction, d.Scope)
	rec.Action = d.Action
	rec.Reason = d.Reason
	rec.TotalPoints = d.TotalPoints
	return rec
}

// Dry-run dispatcher: logs the decision and reports success.
type LogDispatcher struct {
	Logger *slog.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{Logger: slog.Default().With("system", "dispatch")}
}

func (ld *LogDispatcher) Execute(ctx context.Context, d escalation.Decision) (*AuditRecord, error) {
	ld.Logger.Info("moderation action (dry run)", "scope", d.Scope.String(), "action", d.Action.String(), "reason", d.Reason, "total", d.TotalPoints)
	rec := actionRecord(d)
	rec.Success = true
	dispatchCount.WithLabelValues(string(d.Action.Kind), "ok").Inc()
	return rec, nil
}
