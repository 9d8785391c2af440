package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/modwarden/warden/automod/event"
)

type MemStore struct {
	mu      sync.RWMutex
	Entries map[event.Scope]*Entry
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Entries: make(map[event.Scope]*Entry),
	}
}

func (s *MemStore) Load(ctx context.Context, scope event.Scope) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.Entries[scope]
	if !ok {
		return nil, nil
	}
	return e.clone(), nil
}

func (s *MemStore) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries[entry.Scope] = entry.clone()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, scope event.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Entries, scope)
	return nil
}

func (s *MemStore) Scopes(ctx context.Context, guildID string) ([]event.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []event.Scope{}
	for scope := range s.Entries {
		if guildID == "" || scope.GuildID == guildID {
			out = append(out, scope)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out, nil
}

func (s *MemStore) Close() error {
	return nil
}
