package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/modwarden/warden/automod/event"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerEntry struct {
	GuildID     string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	TotalPoints int
	UpdatedAt   time.Time
}

type LedgerViolation struct {
	ID             uint   `gorm:"primaryKey"`
	GuildID        string `gorm:"index:idx_ledger_violation_scope"`
	UserID         string `gorm:"index:idx_ledger_violation_scope"`
	Seq            int
	RuleID         string
	Label          string
	SeverityPoints int
	Instant        bool
	Source         string
	Channel        string
	Timestamp      time.Time
}

// Ledger persistence in a SQL database (sqlite or postgres), via gorm. Each Save rewrites the scope's history in a single transaction.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&LedgerEntry{}, &LedgerViolation{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, scope event.Scope) (*Entry, error) {
	var row LedgerEntry
	err := s.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", scope.GuildID, scope.UserID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []LedgerViolation
	if err := s.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", scope.GuildID, scope.UserID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	entry := &Entry{
		Scope:       scope,
		TotalPoints: row.TotalPoints,
		History:     make([]event.Violation, 0, len(rows)),
	}
	for _, r := range rows {
		entry.History = append(entry.History, event.Violation{
			Scope:          scope,
			RuleID:         r.RuleID,
			Label:          r.Label,
			SeverityPoints: r.SeverityPoints,
			Instant:        r.Instant,
			Source:         event.Source(r.Source),
			Channel:        event.Channel(r.Channel),
			Timestamp:      r.Timestamp.UTC(),
		})
	}
	return entry, nil
}

func (s *SQLStore) Save(ctx context.Context, entry *Entry) error {
	scope := entry.Scope
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := LedgerEntry{
			GuildID:     scope.GuildID,
			UserID:      scope.UserID,
			TotalPoints: entry.TotalPoints,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("guild_id = ? AND user_id = ?", scope.GuildID, scope.UserID).Delete(&LedgerViolation{}).Error; err != nil {
			return err
		}
		if len(entry.History) == 0 {
			return nil
		}
		rows := make([]LedgerViolation, 0, len(entry.History))
		for i, v := range entry.History {
			rows = append(rows, LedgerViolation{
				GuildID:        scope.GuildID,
				UserID:         scope.UserID,
				Seq:            i,
				RuleID:         v.RuleID,
				Label:          v.Label,
				SeverityPoints: v.SeverityPoints,
				Instant:        v.Instant,
				Source:         string(v.Source),
				Channel:        string(v.Channel),
				Timestamp:      v.Timestamp.UTC(),
			})
		}
		return tx.Create(&rows).Error
	})
}

func (s *SQLStore) Delete(ctx context.Context, scope event.Scope) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ? AND user_id = ?", scope.GuildID, scope.UserID).Delete(&LedgerViolation{}).Error; err != nil {
			return err
		}
		return tx.Where("guild_id = ? AND user_id = ?", scope.GuildID, scope.UserID).Delete(&LedgerEntry{}).Error
	})
}

func (s *SQLStore) Scopes(ctx context.Context, guildID string) ([]event.Scope, error) {
	var rows []LedgerEntry
	q := s.db.WithContext(ctx).Model(&LedgerEntry{}).Select("guild_id", "user_id").Order("guild_id ASC, user_id ASC")
	if guildID != "" {
		q = q.Where("guild_id = ?", guildID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]event.Scope, 0, len(rows))
	for _, r := range rows {
		out = append(out, event.Scope{GuildID: r.GuildID, UserID: r.UserID})
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
