package dispatch

import (
	"context"
	"time"

	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordViolation RecordType = "violation"
	RecordAction    RecordType = "action"
	RecordNotice    RecordType = "notice"
	RecordLedger    RecordType = "ledger"
)

// Append-only operator-visible record of a violation, an action outcome, or a ledger failure.
type AuditRecord struct {
	ID          string            `json:"id"`
	Type        RecordType        `json:"type"`
	Time        time.Time         `json:"time"`
	Scope       event.Scope       `json:"scope"`
	MessageID   string            `json:"message_id,omitempty"`
	RuleID      string            `json:"rule_id,omitempty"`
	Label       string            `json:"label,omitempty"`
	Channel     event.Channel     `json:"channel,omitempty"`
	Points      int               `json:"points,omitempty"`
	TotalPoints int               `json:"total_points"`
	Action      escalation.Action `json:"action"`
	Reason      string            `json:"reason,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   ErrorKind         `json:"error_kind,omitempty"`
}

func NewAuditRecord(typ RecordType, scope event.Scope) *AuditRecord {
	return &AuditRecord{
		ID:    uuid.NewString(),
		Type:  typ,
		Time:  time.Now().UTC(),
		Scope: scope,
	}
}

// Audit record for a detected violation, before any ledger mutation.
func ViolationRecord(v *event.Violation, messageID string) *AuditRecord {
	rec := NewAuditRecord(RecordViolation, v.Scope)
	rec.MessageID = messageID
	rec.RuleID = v.RuleID
	rec.Label = v.Label
	rec.Channel = v.Channel
	rec.Points = v.SeverityPoints
	rec.Reason = v.Reason()
	rec.Success = true
	if v.Instant {
		rec.Reason = "instant: " + rec.Reason
	}
	return rec
}

// Marks the record as failed with the given error.
func (r *AuditRecord) Fail(err error) *AuditRecord {
	r.Success = false
	if err != nil {
		r.Error = err.Error()
		r.ErrorKind = KindOf(err)
	}
	return r
}

type AuditSink interface {
	Append(ctx context.Context, rec *AuditRecord) error
}
