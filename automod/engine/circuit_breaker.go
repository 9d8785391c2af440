package engine

import (
	"context"
	"log/slog"

	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/escalation"
)

const quotaCounter = "warden-quota"

// Reports whether the guild has already used up today's quota for this action kind. Counter failures don't block moderation.
func (eng *Engine) quotaExceeded(ctx context.Context, logger *slog.Logger, guildID string, action escalation.Action) bool {
	var limit int
	switch action.Kind {
	case escalation.KindBan:
		limit = eng.Config.QuotaBanDay
	case escalation.KindKick:
		limit = eng.Config.QuotaKickDay
	}
	if limit <= 0 || eng.Counters == nil {
		return false
	}
	c, err := eng.Counters.GetCount(ctx, quotaCounter, guildID+"/"+string(action.Kind), countstore.PeriodDay)
	if err != nil {
		logger.Warn("failed to read sanction quota", "err", err)
		return false
	}
	if c >= limit {
		logger.Warn("sanction withheld by daily quota", "action", action.String(), "count", c, "limit", limit)
		sanctionWithheldCount.WithLabelValues(string(action.Kind)).Inc()
		return true
	}
	return false
}
