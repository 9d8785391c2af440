package detector

import (
	"context"
	"time"

	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ruleset"
)

// Local configured rules. The first matching rule, in configuration order, decides the severity.
type RuleDetector struct {
	Rules *ruleset.RuleSet
}

var _ Detector = (*RuleDetector)(nil)

func (rd *RuleDetector) Channel() event.Channel {
	return event.ChannelRule
}

func (rd *RuleDetector) Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation {
	if evt.Text == "" {
		return nil
	}
	matches := rd.Rules.FindMatches(evt.Text)
	if len(matches) == 0 {
		return nil
	}
	r := matches[0]
	v := &event.Violation{
		Scope:     evt.Scope,
		RuleID:    r.ID,
		Instant:   r.Level.Instant,
		Source:    event.SourceRule,
		Channel:   event.ChannelRule,
		Timestamp: now,
	}
	if !r.Level.Instant {
		v.SeverityPoints = r.Level.Points
	}
	return v
}
