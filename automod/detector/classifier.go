package detector

import (
	"context"
	"time"

	"github.com/modwarden/warden/automod/classifier"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ruleset"
)

// Consults the classifier adapter, only reached when no cheaper channel fired. A safe verdict, or no verdict at all, never produces a violation.
type ClassifierDetector struct {
	Adapter *classifier.Adapter
	Rules   *ruleset.RuleSet
	// also submit image attachment URLs to the classifier
	IncludeImages bool
}

var _ Detector = (*ClassifierDetector)(nil)

func (cd *ClassifierDetector) Channel() event.Channel {
	return event.ChannelClassifier
}

func (cd *ClassifierDetector) Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation {
	in := classifier.Input{Text: evt.Text}
	if cd.IncludeImages {
		for _, att := range evt.Attach {
			if isImage(att) {
				in.ImageURLs = append(in.ImageURLs, att.URL)
			}
		}
	}
	verdict := cd.Adapter.Verdict(ctx, in)
	if verdict == nil || verdict.Safe || verdict.Label == "" {
		return nil
	}
	lvl, ruleID := cd.Rules.ClassifierLevel(verdict.Label)
	v := &event.Violation{
		Scope:     evt.Scope,
		RuleID:    ruleID,
		Label:     verdict.Label,
		Instant:   lvl.Instant,
		Source:    event.SourceClassifier,
		Channel:   event.ChannelClassifier,
		Timestamp: now,
	}
	if !lvl.Instant {
		v.SeverityPoints = lvl.Points
	}
	return v
}
