package ledger

import (
	"context"

	"github.com/modwarden/warden/automod/event"
)

// Durable keyed storage for ledger entries. Implementations need not lock per scope; the Ledger serializes access to any one scope.
type Store interface {
	// Returns nil (and no error) if there is no entry for the scope.
	Load(ctx context.Context, scope event.Scope) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, scope event.Scope) error
	// Lists scopes with an entry. An empty guildID lists all guilds.
	Scopes(ctx context.Context, guildID string) ([]event.Scope, error)
	Close() error
}
