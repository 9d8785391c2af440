package detector

import (
	"context"
	"time"

	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ruleset"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultFloodLimit  = 5
	DefaultFloodWindow = 10 * time.Second
)

// Per-scope sliding window of recent message timestamps. Fires whenever the window holds at least Limit timestamps, including the current message.
type FloodDetector struct {
	Limit  int
	Window time.Duration
	Rules  *ruleset.RuleSet

	windows *xsync.MapOf[event.Scope, []time.Time]
}

var _ Detector = (*FloodDetector)(nil)

func NewFloodDetector(rs *ruleset.RuleSet) *FloodDetector {
	return &FloodDetector{
		Limit:   DefaultFloodLimit,
		Window:  DefaultFloodWindow,
		Rules:   rs,
		windows: xsync.NewMapOf[event.Scope, []time.Time](),
	}
}

func (fd *FloodDetector) Channel() event.Channel {
	return event.ChannelFlood
}

func (fd *FloodDetector) Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation {
	var count int
	fd.windows.Compute(evt.Scope, func(old []time.Time, loaded bool) ([]time.Time, bool) {
		kept := trimWindow(old, now, fd.Window)
		kept = append(kept, now)
		// cap memory for a scope that floods continuously
		if len(kept) > fd.Limit {
			kept = kept[len(kept)-fd.Limit:]
		}
		count = len(kept)
		return kept, false
	})
	if count < fd.Limit {
		return nil
	}
	return heuristicViolation(fd.Rules, evt, now, event.ChannelFlood, "flood")
}

// Drops windows with no timestamps inside the window as of now. Intended to run periodically so idle scopes don't accumulate.
func (fd *FloodDetector) Sweep(now time.Time) int {
	var removed int
	fd.windows.Range(func(scope event.Scope, _ []time.Time) bool {
		fd.windows.Compute(scope, func(old []time.Time, loaded bool) ([]time.Time, bool) {
			kept := trimWindow(old, now, fd.Window)
			if len(kept) == 0 {
				removed++
				return nil, true
			}
			return kept, false
		})
		return true
	})
	return removed
}

// Number of scopes with a live window.
func (fd *FloodDetector) Size() int {
	return fd.windows.Size()
}

// returns a fresh slice containing only timestamps no older than window
func trimWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	out := make([]time.Time, 0, len(ts)+1)
	for _, t := range ts {
		if now.Sub(t) <= window {
			out = append(out, t)
		}
	}
	return out
}
