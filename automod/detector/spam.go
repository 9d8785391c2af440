package detector

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/keyword"
	"github.com/modwarden/warden/automod/ruleset"
	"github.com/modwarden/warden/automod/setstore"
)

// Fixed advertising keyword check against the normalized text. Keywords come from the rule set, plus the "spam-keywords" set if a set store is configured.
type SpamDetector struct {
	Rules    *ruleset.RuleSet
	Sets     setstore.SetStore
	Logger   *slog.Logger
	keywords []string
}

var _ Detector = (*SpamDetector)(nil)

func NewSpamDetector(rs *ruleset.RuleSet, sets setstore.SetStore) *SpamDetector {
	return &SpamDetector{
		Rules:    rs,
		Sets:     sets,
		Logger:   slog.Default().With("system", "detector"),
		keywords: rs.SpamKeywords(),
	}
}

func (sd *SpamDetector) Channel() event.Channel {
	return event.ChannelSpam
}

// Returns the first keyword found in the text, or "". Built-in keywords are checked first, then set members in sorted order.
func (sd *SpamDetector) Match(ctx context.Context, text string) string {
	norm := keyword.Normalize(text)
	for _, kw := range sd.keywords {
		if kw != "" && strings.Contains(norm, kw) {
			return kw
		}
	}
	if sd.Sets == nil {
		return ""
	}
	extra, err := sd.Sets.Members(ctx, setstore.SetSpamKeywords)
	if err != nil {
		sd.Logger.Warn("failed to read spam keyword set", "err", err)
		return ""
	}
	sort.Strings(extra)
	for _, kw := range extra {
		if kw != "" && strings.Contains(norm, kw) {
			return kw
		}
	}
	return ""
}

func (sd *SpamDetector) Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation {
	if evt.Text == "" || sd.Match(ctx, evt.Text) == "" {
		return nil
	}
	return heuristicViolation(sd.Rules, evt, now, event.ChannelSpam, "spam", "advertising")
}
