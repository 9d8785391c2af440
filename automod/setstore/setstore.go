package setstore

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// Well-known set names consulted by the detectors.
const (
	// Image URLs, or bare hostnames, which never trigger the attachment heuristic
	SetAttachmentAllow = "attachment-allow"
	// Additional spam/advertising keywords, on top of the rule set's built-in list
	SetSpamKeywords = "spam-keywords"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
	Members(ctx context.Context, name string) ([]string, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: currently returns false when entire set isn't found
		return false, nil
	}
	return set[val], nil
}

func (s *MemSetStore) Members(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.Sets[name]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out, nil
}

// Adds values to the named set, creating it if needed. Values are lower-cased.
func (s *MemSetStore) Add(name string, vals ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.Sets[name]
	if !ok {
		set = make(map[string]bool, len(vals))
		s.Sets[name] = set
	}
	for _, v := range vals {
		set[strings.ToLower(v)] = true
	}
}

// Loads sets from a JSON file containing an object of set name to list of values. Existing sets with the same name are replaced.
func (s *MemSetStore) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, l := range sets {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[strings.ToLower(val)] = true
		}
		s.Sets[name] = m
	}
	return nil
}
