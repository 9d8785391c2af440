package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/modwarden/warden/automod/event"

	"github.com/puzpuzpuz/xsync/v3"
)

// How long a violation counts towards a scope's total.
const DefaultRetention = 30 * 24 * time.Hour

// The Warning Ledger: per-scope accumulated violation points and history, over a pluggable Store.
//
// Every mutation of a scope (Record, Reset, Decay) is a read-modify-write under that scope's lock, so concurrent events for the same user never lose updates. Different scopes proceed in parallel.
type Ledger struct {
	Store     Store
	Retention time.Duration
	Logger    *slog.Logger

	// overridable for tests
	Now func() time.Time

	locks *xsync.MapOf[event.Scope, *sync.Mutex]
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		Store:     store,
		Retention: DefaultRetention,
		Logger:    slog.Default().With("system", "ledger"),
		Now:       time.Now,
		locks:     xsync.NewMapOf[event.Scope, *sync.Mutex](),
	}
}

func (l *Ledger) lock(scope event.Scope) func() {
	mu, _ := l.locks.LoadOrCompute(scope, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// Appends the violation to the scope's history, prunes anything past retention, persists, and returns the new total. On error nothing is assumed persisted, and the error matches ErrLedgerIO.
func (l *Ledger) Record(ctx context.Context, scope event.Scope, v *event.Violation) (int, error) {
	entry, err := l.RecordEntry(ctx, scope, v)
	if err != nil {
		return 0, err
	}
	return entry.TotalPoints, nil
}

// Same as Record, but returns a copy of the scope's entry as persisted. A violation already past retention leaves no entry behind: the returned entry is empty, and the scope is removed from the store.
func (l *Ledger) RecordEntry(ctx context.Context, scope event.Scope, v *event.Violation) (*Entry, error) {
	unlock := l.lock(scope)
	defer unlock()

	entry, err := l.Store.Load(ctx, scope)
	if err != nil {
		ledgerOps.WithLabelValues("record", "error").Inc()
		return nil, &IOError{Op: "load", Scope: scope, Err: err}
	}
	if entry == nil {
		entry = &Entry{Scope: scope}
	}

	rec := *v
	rec.Scope = scope
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.Now()
	}
	entry.History = append(entry.History, rec)
	entry.prune(l.Now(), l.Retention)

	if len(entry.History) == 0 {
		if err := l.Store.Delete(ctx, scope); err != nil {
			ledgerOps.WithLabelValues("record", "error").Inc()
			return nil, &IOError{Op: "delete", Scope: scope, Err: err}
		}
		ledgerOps.WithLabelValues("record", "expired").Inc()
		return &Entry{Scope: scope, History: []event.Violation{}}, nil
	}
	if err := l.Store.Save(ctx, entry); err != nil {
		ledgerOps.WithLabelValues("record", "error").Inc()
		return nil, &IOError{Op: "save", Scope: scope, Err: err}
	}
	ledgerOps.WithLabelValues("record", "ok").Inc()
	return entry.clone(), nil
}

// Current point total for the scope, counting only violations within retention. Unknown scopes are zero.
func (l *Ledger) GetTotal(ctx context.Context, scope event.Scope) (int, error) {
	entry, err := l.History(ctx, scope)
	if err != nil {
		return 0, err
	}
	return entry.TotalPoints, nil
}

// Returns a copy of the scope's entry, with expired violations filtered out. Unknown scopes return an empty entry.
func (l *Ledger) History(ctx context.Context, scope event.Scope) (*Entry, error) {
	unlock := l.lock(scope)
	defer unlock()

	entry, err := l.Store.Load(ctx, scope)
	if err != nil {
		ledgerOps.WithLabelValues("read", "error").Inc()
		return nil, &IOError{Op: "load", Scope: scope, Err: err}
	}
	if entry == nil {
		return &Entry{Scope: scope, History: []event.Violation{}}, nil
	}
	entry.prune(l.Now(), l.Retention)
	return entry, nil
}

// Clears history and total for the scope. Resetting an unknown scope is not an error.
func (l *Ledger) Reset(ctx context.Context, scope event.Scope) error {
	unlock := l.lock(scope)
	defer unlock()

	if err := l.Store.Delete(ctx, scope); err != nil {
		ledgerOps.WithLabelValues("reset", "error").Inc()
		return &IOError{Op: "delete", Scope: scope, Err: err}
	}
	ledgerOps.WithLabelValues("reset", "ok").Inc()
	return nil
}

// Drops the n oldest violations of the scope's history, keeping anything recorded after them. With n taken from RecordEntry, this clears exactly what a decision was based on, even if another event for the same scope was recorded in between. Removes the entry if nothing is left.
func (l *Ledger) ResetFirst(ctx context.Context, scope event.Scope, n int) error {
	if n <= 0 {
		return nil
	}
	unlock := l.lock(scope)
	defer unlock()

	entry, err := l.Store.Load(ctx, scope)
	if err != nil {
		ledgerOps.WithLabelValues("reset", "error").Inc()
		return &IOError{Op: "load", Scope: scope, Err: err}
	}
	if entry == nil {
		return nil
	}
	if n < len(entry.History) {
		entry.History = append([]event.Violation{}, entry.History[n:]...)
	} else {
		entry.History = nil
	}
	entry.prune(l.Now(), l.Retention)

	op := "save"
	if len(entry.History) == 0 {
		op = "delete"
		err = l.Store.Delete(ctx, scope)
	} else {
		err = l.Store.Save(ctx, entry)
	}
	if err != nil {
		ledgerOps.WithLabelValues("reset", "error").Inc()
		return &IOError{Op: op, Scope: scope, Err: err}
	}
	ledgerOps.WithLabelValues("reset", "ok").Inc()
	return nil
}

type DecayStats struct {
	Scopes  int
	Pruned  int
	Removed int
}

// Removes violations older than the retention window as of now, and removes entries left with no history. Failures on a single scope are logged and skipped; the first such error is returned after the pass completes.
func (l *Ledger) Decay(ctx context.Context, now time.Time) (DecayStats, error) {
	var stats DecayStats
	scopes, err := l.Store.Scopes(ctx, "")
	if err != nil {
		return stats, &IOError{Op: "list", Err: err}
	}

	var firstErr error
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scopes++
		pruned, removed, err := l.decayScope(ctx, scope, now)
		if err != nil {
			l.Logger.Error("ledger decay failed", "scope", scope.String(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stats.Pruned += pruned
		if removed {
			stats.Removed++
		}
	}
	ledgerDecayPruned.Add(float64(stats.Pruned))
	return stats, firstErr
}

func (l *Ledger) decayScope(ctx context.Context, scope event.Scope, now time.Time) (int, bool, error) {
	unlock := l.lock(scope)
	defer unlock()

	entry, err := l.Store.Load(ctx, scope)
	if err != nil {
		return 0, false, &IOError{Op: "load", Scope: scope, Err: err}
	}
	if entry == nil {
		return 0, false, nil
	}
	pruned := entry.prune(now, l.Retention)
	if len(entry.History) == 0 {
		if err := l.Store.Delete(ctx, scope); err != nil {
			return pruned, false, &IOError{Op: "delete", Scope: scope, Err: err}
		}
		return pruned, true, nil
	}
	if pruned == 0 {
		return 0, false, nil
	}
	if err := l.Store.Save(ctx, entry); err != nil {
		return pruned, false, &IOError{Op: "save", Scope: scope, Err: err}
	}
	return pruned, false, nil
}

// Top scopes in a guild by current point total, highest first. Ties are ordered by user ID.
func (l *Ledger) Top(ctx context.Context, guildID string, n int) ([]Entry, error) {
	scopes, err := l.Store.Scopes(ctx, guildID)
	if err != nil {
		return nil, &IOError{Op: "list", Err: err}
	}
	out := make([]Entry, 0, len(scopes))
	for _, scope := range scopes {
		entry, err := l.History(ctx, scope)
		if err != nil {
			return nil, err
		}
		if entry.TotalPoints <= 0 {
			continue
		}
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].Scope.UserID < out[j].Scope.UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (l *Ledger) Close() error {
	return l.Store.Close()
}
