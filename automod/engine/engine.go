package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/detector"
	"github.com/modwarden/warden/automod/dispatch"
	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/ledger"
	"github.com/modwarden/warden/automod/ruleset"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("engine")

// runtime for detecting violations, accumulating points, and executing moderation actions.
//
// Rules, Detector, Ledger and Dispatcher are required. The remaining collaborators default to log-only or in-memory implementations in NewEngine.
type Engine struct {
	Logger     *slog.Logger
	Rules      *ruleset.RuleSet
	Detector   *detector.Chain
	Ledger     *ledger.Ledger
	Dispatcher dispatch.Dispatcher
	Notifier   dispatch.Notifier
	Audit      dispatch.AuditSink
	Counters   countstore.CountStore
	Flags      flagstore.FlagStore
	Config     EngineConfig
}

type EngineConfig struct {
	// per-guild daily limits on irreversible actions; zero means unlimited
	QuotaBanDay  int
	QuotaKickDay int
}

func NewEngine(rs *ruleset.RuleSet, chain *detector.Chain, led *ledger.Ledger, disp dispatch.Dispatcher) *Engine {
	return &Engine{
		Logger:     slog.Default().With("system", "engine"),
		Rules:      rs,
		Detector:   chain,
		Ledger:     led,
		Dispatcher: disp,
		Notifier:   dispatch.NewLogNotifier(),
		Audit:      dispatch.NewLogSink(),
		Counters:   countstore.NewMemCountStore(),
		Flags:      flagstore.NewMemFlagStore(),
	}
}

// Result of processing a single event. Violation is nil when nothing was detected (or the event was ignored), in which case no other fields are set.
type Outcome struct {
	Violation   *event.Violation
	TotalPoints int
	Decision    *escalation.Decision
	// the sanction was applied by the dispatcher
	Executed bool
	// the sanction was downgraded to a notice by the daily quota
	Withheld    bool
	DispatchErr error
	LedgerErr   error
	Notice      *dispatch.Notice
}

// Runs one event through detection, the ledger, escalation, dispatch and notification.
//
// A ledger failure is returned as an error (matching ledger.ErrLedgerIO), and no sanction is dispatched in that case. Dispatch failures are not returned as errors: the points stay recorded, and the failure is reported in the Outcome and the audit log. A notice is sent for every violation.
func (eng *Engine) ProcessEvent(ctx context.Context, evt *event.Event) (out *Outcome, err error) {
	if evt == nil {
		return nil, fmt.Errorf("nil event")
	}
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("event execution exception", "err", r, "guild", evt.Scope.GuildID, "user", evt.Scope.UserID)
			eventErrorCount.WithLabelValues("panic").Inc()
			out = nil
			err = fmt.Errorf("event processing panic: %v", r)
		}
	}()

	start := time.Now()
	defer func() {
		eventProcessDuration.Observe(time.Since(start).Seconds())
	}()

	if evt.FromBot {
		eventProcessCount.WithLabelValues("bot").Inc()
		return &Outcome{}, nil
	}
	if evt.Scope.GuildID == "" || evt.Scope.UserID == "" {
		eventErrorCount.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("event missing guild or user identifier")
	}
	eventProcessCount.WithLabelValues("message").Inc()

	ctx, span := tracer.Start(ctx, "ProcessEvent")
	defer span.End()
	span.SetAttributes(attribute.String("guild", evt.Scope.GuildID), attribute.String("user", evt.Scope.UserID))

	logger := eng.Logger.With("guild", evt.Scope.GuildID, "user", evt.Scope.UserID, "msg", evt.MessageID)

	out = &Outcome{}
	v := eng.Detector.Detect(ctx, evt)
	if v == nil {
		return out, nil
	}
	out.Violation = v
	span.SetAttributes(attribute.String("channel", string(v.Channel)), attribute.String("reason", v.Reason()))
	violationCount.WithLabelValues(string(v.Channel)).Inc()
	eng.audit(ctx, logger, dispatch.ViolationRecord(v, evt.MessageID))
	eng.increment(ctx, logger, violationCounter, evt.Scope.GuildID+"/"+string(v.Channel))
	if eng.Counters != nil {
		if err := eng.Counters.IncrementDistinct(ctx, violatorCounter, evt.Scope.GuildID, evt.Scope.UserID); err != nil {
			logger.Warn("failed to increment distinct counter", "err", err)
		}
	}

	entry, err := eng.Ledger.RecordEntry(ctx, v.Scope, v)
	if err != nil {
		// the violation is not durably recorded: never escalate, but still tell the user
		out.LedgerErr = err
		eventErrorCount.WithLabelValues("ledger").Inc()
		logger.Error("failed to record violation", "err", err)
		rec := dispatch.NewAuditRecord(dispatch.RecordLedger, v.Scope)
		rec.MessageID = evt.MessageID
		rec.RuleID = v.RuleID
		rec.Label = v.Label
		rec.Channel = v.Channel
		rec.Points = v.SeverityPoints
		rec.Action = escalation.WarnOnly()
		rec.Reason = v.Reason()
		eng.audit(ctx, logger, rec.Fail(err))
		out.Notice = eng.notify(ctx, logger, evt, v.Reason(), 0, escalation.WarnOnly(), nil)
		return out, err
	}
	total := entry.TotalPoints
	out.TotalPoints = total

	decision := eng.Rules.Ladder().Decide(escalation.TriggerFor(v), v.Scope, total)
	if decision.Action.Sanction() && eng.quotaExceeded(ctx, logger, evt.Scope.GuildID, decision.Action) {
		out.Withheld = true
		withheld := decision.Action
		decision.Action = escalation.WarnOnly()
		rec := dispatch.NewAuditRecord(dispatch.RecordAction, v.Scope)
		rec.Action = withheld
		rec.TotalPoints = total
		rec.Reason = decision.Reason
		eng.audit(ctx, logger, rec.Fail(errQuotaExceeded))
		eng.addFlag(ctx, logger, v.Scope, "sanction-withheld")
	}
	out.Decision = &decision

	if decision.Action.Sanction() {
		eng.execute(ctx, logger, out, &decision, len(entry.History))
	}

	out.Notice = eng.notify(ctx, logger, evt, v.Reason(), total, decision.Action, out.DispatchErr)

	logger.Info("moderation outcome",
		"channel", v.Channel,
		"reason", v.Reason(),
		"points", v.SeverityPoints,
		"instant", v.Instant,
		"total", total,
		"action", decision.Action.String(),
		"executed", out.Executed,
		"withheld", out.Withheld,
		"dispatchErr", out.DispatchErr,
	)
	return out, nil
}

var errQuotaExceeded = errors.New("daily sanction quota exceeded")

// recorded is the length of the scope's history when the decision was made.
func (eng *Engine) execute(ctx context.Context, logger *slog.Logger, out *Outcome, decision *escalation.Decision, recorded int) {
	rec, err := eng.Dispatcher.Execute(ctx, *decision)
	if rec == nil {
		rec = dispatch.NewAuditRecord(dispatch.RecordAction, decision.Scope)
		rec.Action = decision.Action
		rec.Reason = decision.Reason
		rec.TotalPoints = decision.TotalPoints
		rec.Success = err == nil
	}
	if err != nil {
		// the ledger mutation stands; dispatch failures are reported, not retried
		out.DispatchErr = err
		actionCount.WithLabelValues(string(decision.Action.Kind), "error").Inc()
		logger.Warn("moderation action failed", "action", decision.Action.String(), "err", err)
		eng.audit(ctx, logger, rec.Fail(err))
		return
	}
	out.Executed = true
	actionCount.WithLabelValues(string(decision.Action.Kind), "ok").Inc()
	eng.audit(ctx, logger, rec)

	switch decision.Action.Kind {
	case escalation.KindBan:
		eng.increment(ctx, logger, quotaCounter, decision.Scope.GuildID+"/"+string(escalation.KindBan))
		eng.addFlag(ctx, logger, decision.Scope, "banned")
	case escalation.KindKick:
		eng.increment(ctx, logger, quotaCounter, decision.Scope.GuildID+"/"+string(escalation.KindKick))
		eng.addFlag(ctx, logger, decision.Scope, "kicked")
		// a kicked user who returns starts the ladder over; violations recorded since the decision are kept
		if err := eng.Ledger.ResetFirst(ctx, decision.Scope, recorded); err != nil {
			logger.Error("failed to reset ledger after kick", "err", err)
			rec := dispatch.NewAuditRecord(dispatch.RecordLedger, decision.Scope)
			rec.Reason = "reset after kick"
			eng.audit(ctx, logger, rec.Fail(err))
		}
	case escalation.KindTimeout:
		eng.addFlag(ctx, logger, decision.Scope, "timed-out")
	}
}

func (eng *Engine) notify(ctx context.Context, logger *slog.Logger, evt *event.Event, reason string, total int, action escalation.Action, sanctionErr error) *dispatch.Notice {
	n := &dispatch.Notice{
		Scope:       evt.Scope,
		ChannelID:   evt.ChannelID,
		MessageID:   evt.MessageID,
		Reason:      reason,
		TotalPoints: total,
		Action:      action,
		Text:        dispatch.FormatNotice(evt.Scope.UserID, reason, total, action, sanctionErr),
	}
	if eng.Notifier == nil {
		return n
	}
	if err := eng.Notifier.Notify(ctx, n); err != nil {
		logger.Warn("failed to send user notice", "err", err)
		rec := dispatch.NewAuditRecord(dispatch.RecordNotice, evt.Scope)
		rec.MessageID = evt.MessageID
		rec.Reason = reason
		rec.TotalPoints = total
		rec.Action = action
		eng.audit(ctx, logger, rec.Fail(err))
	}
	return n
}

func (eng *Engine) audit(ctx context.Context, logger *slog.Logger, rec *dispatch.AuditRecord) {
	if eng.Audit == nil {
		return
	}
	if err := eng.Audit.Append(ctx, rec); err != nil {
		logger.Error("failed to append audit record", "id", rec.ID, "type", rec.Type, "err", err)
	}
}

func (eng *Engine) addFlag(ctx context.Context, logger *slog.Logger, scope event.Scope, flag string) {
	if eng.Flags == nil {
		return
	}
	if err := eng.Flags.Add(ctx, scope.String(), []string{flag}); err != nil {
		logger.Warn("failed to persist flag", "flag", flag, "err", err)
	}
}

func (eng *Engine) increment(ctx context.Context, logger *slog.Logger, name, val string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, name, val); err != nil {
		logger.Warn("failed to increment counter", "name", name, "err", err)
	}
}

// Periodic maintenance: ledger decay and flood window expiry.
func (eng *Engine) Decay(ctx context.Context, now time.Time) (ledger.DecayStats, error) {
	swept := eng.Detector.Sweep(now)
	stats, err := eng.Ledger.Decay(ctx, now)
	eng.Logger.Info("decay pass", "scopes", stats.Scopes, "pruned", stats.Pruned, "removed", stats.Removed, "floodSwept", swept)
	return stats, err
}

// Runs Decay on a fixed interval until the context is cancelled. Independent of event processing; the ledger takes per-scope locks.
func (eng *Engine) RunDecay(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := eng.Decay(ctx, time.Now()); err != nil {
				eng.Logger.Error("decay pass incomplete", "err", err)
			}
		}
	}
}
