package detector

import (
	"context"
	"time"

	"github.com/modwarden/warden/automod/classifier"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ruleset"
	"github.com/modwarden/warden/automod/setstore"
)

// A single typed detection channel. Returns nil when the channel does not fire for the event.
//
// `now` is the event's effective timestamp, already resolved by the caller.
type Detector interface {
	Channel() event.Channel
	Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation
}

// Ordered chain of detectors: the first to return a violation wins, and later detectors are not consulted. At most one violation is produced per event.
type Chain struct {
	Detectors []Detector
}

func NewChain(detectors ...Detector) *Chain {
	return &Chain{Detectors: detectors}
}

func (c *Chain) Detect(ctx context.Context, evt *event.Event) *event.Violation {
	now := evt.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	for _, d := range c.Detectors {
		if v := d.Detect(ctx, evt, now); v != nil {
			detectorHits.WithLabelValues(string(v.Channel)).Inc()
			return v
		}
	}
	return nil
}

// Builds a violation whose severity comes from the first rule with a matching name, if any. Used by the heuristic channels.
func heuristicViolation(rs *ruleset.RuleSet, evt *event.Event, now time.Time, ch event.Channel, names ...string) *event.Violation {
	v := &event.Violation{
		Scope:          evt.Scope,
		SeverityPoints: 1,
		Source:         event.SourceHeuristic,
		Channel:        ch,
		Timestamp:      now,
	}
	if rs == nil || len(names) == 0 {
		return v
	}
	if r := rs.FindByName(names...); r != nil {
		v.RuleID = r.ID
		v.Instant = r.Level.Instant
		if !r.Level.Instant {
			v.SeverityPoints = r.Level.Points
		}
	}
	return v
}

// Detectors holding per-scope state which should be periodically expired.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Expires idle state in every detector which supports it. Returns the number of scopes dropped.
func (c *Chain) Sweep(now time.Time) int {
	n := 0
	for _, d := range c.Detectors {
		if s, ok := d.(Sweeper); ok {
			n += s.Sweep(now)
		}
	}
	return n
}

// The standard precedence: flood, spam, local rules, classifier, attachments. The adapter may be nil, in which case the classifier channel never fires.
func DefaultChain(rs *ruleset.RuleSet, sets setstore.SetStore, adapter *classifier.Adapter) *Chain {
	return NewChain(
		NewFloodDetector(rs),
		NewSpamDetector(rs, sets),
		&RuleDetector{Rules: rs},
		&ClassifierDetector{Adapter: adapter, Rules: rs, IncludeImages: true},
		&AttachmentDetector{Sets: sets},
	)
}
