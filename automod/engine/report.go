package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/escalation"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ledger"
)

const (
	violationCounter = "warden-violations"
	violatorCounter  = "warden-violators"
)

var statChannels = []event.Channel{
	event.ChannelFlood,
	event.ChannelSpam,
	event.ChannelRule,
	event.ChannelClassifier,
	event.ChannelAttachment,
}

// Moderator view of a single user: current ledger entry, plus any flags left by past sanctions.
type ScopeReport struct {
	ledger.Entry
	Flags []string `json:"flags"`
}

func (eng *Engine) ScopeReport(ctx context.Context, scope event.Scope) (*ScopeReport, error) {
	entry, err := eng.Ledger.History(ctx, scope)
	if err != nil {
		return nil, err
	}
	rep := &ScopeReport{Entry: *entry, Flags: []string{}}
	if eng.Flags == nil {
		return rep, nil
	}
	flags, err := eng.Flags.Get(ctx, scope.String())
	if err != nil {
		return nil, fmt.Errorf("reading flags for %s: %w", scope, err)
	}
	if len(flags) > 0 {
		sort.Strings(flags)
		rep.Flags = flags
	}
	return rep, nil
}

// Per-guild moderation activity over one counter period.
type GuildStats struct {
	GuildID    string         `json:"guild_id"`
	Period     string         `json:"period"`
	Violations map[string]int `json:"violations"`
	Violators  int            `json:"violators"`
	Bans       int            `json:"bans"`
	Kicks      int            `json:"kicks"`
}

func ValidPeriod(period string) bool {
	switch period {
	case countstore.PeriodTotal, countstore.PeriodDay, countstore.PeriodHour:
		return true
	}
	return false
}

// Reads the violation, distinct violator and sanction counters for a guild. Bans and kicks are only available per day.
func (eng *Engine) GuildStats(ctx context.Context, guildID, period string) (*GuildStats, error) {
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("unknown counter period: %q", period)
	}
	st := &GuildStats{
		GuildID:    guildID,
		Period:     period,
		Violations: make(map[string]int, len(statChannels)),
	}
	if eng.Counters == nil {
		return st, nil
	}
	for _, ch := range statChannels {
		c, err := eng.Counters.GetCount(ctx, violationCounter, guildID+"/"+string(ch), period)
		if err != nil {
			return nil, err
		}
		st.Violations[string(ch)] = c
	}
	n, err := eng.Counters.GetCountDistinct(ctx, violatorCounter, guildID, period)
	if err != nil {
		return nil, err
	}
	st.Violators = n
	if period == countstore.PeriodDay {
		if st.Bans, err = eng.Counters.GetCount(ctx, quotaCounter, guildID+"/"+string(escalation.KindBan), period); err != nil {
			return nil, err
		}
		if st.Kicks, err = eng.Counters.GetCount(ctx, quotaCounter, guildID+"/"+string(escalation.KindKick), period); err != nil {
			return nil, err
		}
	}
	return st, nil
}
