package ledger

import (
	"time"

	"github.com/modwarden/warden/automod/event"
)

// Accumulated violation state for a single scope. TotalPoints is a cached sum of the severity points in History, and is recomputed whenever History changes.
type Entry struct {
	Scope       event.Scope       `json:"scope"`
	TotalPoints int               `json:"total_points"`
	History     []event.Violation `json:"history"`
}

func (e *Entry) clone() *Entry {
	out := &Entry{
		Scope:       e.Scope,
		TotalPoints: e.TotalPoints,
		History:     make([]event.Violation, len(e.History)),
	}
	copy(out.History, e.History)
	return out
}

func (e *Entry) recompute() {
	total := 0
	for _, v := range e.History {
		total += v.SeverityPoints
	}
	e.TotalPoints = total
}

// Drops history entries older than the retention window as of now, and recomputes the total. Returns the number of entries dropped.
func (e *Entry) prune(now time.Time, retention time.Duration) int {
	kept := e.History[:0]
	dropped := 0
	for _, v := range e.History {
		if now.Sub(v.Timestamp) > retention {
			dropped++
			continue
		}
		kept = append(kept, v)
	}
	// clear the tail so pruned violations can be collected
	for i := len(kept); i < len(e.History); i++ {
		e.History[i] = event.Violation{}
	}
	e.History = kept
	e.recompute()
	return dropped
}
