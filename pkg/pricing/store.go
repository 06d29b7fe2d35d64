package pricing

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Store holds the dynamic pricing tier, populated by an external feed.
//
// Entries are immutable; a price change arrives as a new entry with a
// later effective date. Replace swaps the whole table atomically, which
// matches how the feed is consumed (parse the file, replace the store).
type Store struct {
	mu sync.RWMutex

	// entries maps provider -> entries sorted by EffectiveAt descending.
	entries map[string][]Entry
}

// NewStore creates an empty dynamic pricing store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string][]Entry),
	}
}

// Replace swaps the store contents with the given entries.
func (s *Store) Replace(entries []Entry) {
	byProvider := make(map[string][]Entry)
	for _, e := range entries {
		byProvider[e.Provider] = append(byProvider[e.Provider], e)
	}
	for provider := range byProvider {
		list := byProvider[provider]
		sort.Slice(list, func(i, j int) bool {
			return list[i].EffectiveAt.After(list[j].EffectiveAt)
		})
		byProvider[provider] = list
	}

	s.mu.Lock()
	s.entries = byProvider
	s.mu.Unlock()
}

// Lookup finds the newest entry for (provider, model) effective at or
// before now. Exact model match is preferred; a model-prefix match is
// accepted so dated snapshots ("gpt-4o" vs "gpt-4o-2024-08-06") resolve.
func (s *Store) Lookup(provider, model string, now time.Time) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.entries[provider]
	if !ok {
		return Entry{}, false
	}

	// Entries are sorted newest first, so the first match wins.
	for _, e := range list {
		if e.Model == model && !e.EffectiveAt.After(now) {
			return e, true
		}
	}
	for _, e := range list {
		if strings.HasPrefix(model, e.Model) && !e.EffectiveAt.After(now) {
			return e, true
		}
	}

	return Entry{}, false
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.entries {
		n += len(list)
	}
	return n
}
