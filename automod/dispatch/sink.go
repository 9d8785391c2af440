package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Writes audit records to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

var _ AuditSink = (*LogSink)(nil)

func NewLogSink() *LogSink {
	return &LogSink{Logger: slog.Default().With("system", "audit")}
}

func (ls *LogSink) Append(ctx context.Context, rec *AuditRecord) error {
	level := slog.LevelInfo
	if !rec.Success {
		level = slog.LevelWarn
	}
	ls.Logger.Log(ctx, level, "audit",
		"id", rec.ID,
		"type", rec.Type,
		"scope", rec.Scope.String(),
		"rule", rec.RuleID,
		"label", rec.Label,
		"channel", rec.Channel,
		"points", rec.Points,
		"total", rec.TotalPoints,
		"action", rec.Action.String(),
		"reason", rec.Reason,
		"success", rec.Success,
		"err", rec.Error,
	)
	return nil
}

type AuditEntry struct {
	ID          string    `gorm:"primaryKey"`
	Type        string    `gorm:"index"`
	CreatedAt   time.Time `gorm:"index"`
	GuildID     string    `gorm:"index:idx_audit_scope"`
	UserID      string    `gorm:"index:idx_audit_scope"`
	MessageID   string
	RuleID      string
	Label       string
	Channel     string
	Points      int
	TotalPoints int
	Action      string
	DurationSec int64
	Reason      string
	Success     bool
	Error       string
	ErrorKind   string
}

// Persists audit records to a SQL table, via gorm.
type SQLAuditSink struct {
	db *gorm.DB
}

var _ AuditSink = (*SQLAuditSink)(nil)

func NewSQLAuditSink(db *gorm.DB) (*SQLAuditSink, error) {
	if err := db.AutoMigrate(&AuditEntry{}); err != nil {
		return nil, err
	}
	return &SQLAuditSink{db: db}, nil
}

func (s *SQLAuditSink) Append(ctx context.Context, rec *AuditRecord) error {
	row := AuditEntry{
		ID:          rec.ID,
		Type:        string(rec.Type),
		CreatedAt:   rec.Time,
		GuildID:     rec.Scope.GuildID,
		UserID:      rec.Scope.UserID,
		MessageID:   rec.MessageID,
		RuleID:      rec.RuleID,
		Label:       rec.Label,
		Channel:     string(rec.Channel),
		Points:      rec.Points,
		TotalPoints: rec.TotalPoints,
		Action:      string(rec.Action.Kind),
		DurationSec: int64(rec.Action.Duration.Seconds()),
		Reason:      rec.Reason,
		Success:     rec.Success,
		Error:       rec.Error,
		ErrorKind:   string(rec.ErrorKind),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Most recent audit entries for a guild, newest first.
func (s *SQLAuditSink) Recent(ctx context.Context, guildID string, limit int) ([]AuditEntry, error) {
	var rows []AuditEntry
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if guildID != "" {
		q = q.Where("guild_id = ?", guildID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Fans a record out to several sinks. Every sink is attempted; errors are joined.
type MultiSink []AuditSink

var _ AuditSink = (MultiSink)(nil)

func (ms MultiSink) Append(ctx context.Context, rec *AuditRecord) error {
	var errs []error
	for _, s := range ms {
		if err := s.Append(ctx, rec); err != nil {
			auditErrors.Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
