// Package dedup remembers which marketplace events were already handled.
//
// The store is a bounded trailing window: every Persist keeps only the most
// recent Capacity keys, so a very old key can age out and be seen as new again.
package dedup

import (
	"context"
	"sync"

	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

const DefaultCapacity = 1000

// Store is an insertion-ordered set of event keys backed by a ledger key set.
type Store struct {
	ledger   storage.Ledger
	set      string
	capacity int
	log      logx.Logger

	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

func New(ledger storage.Ledger, set string, capacity int, log logx.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		ledger:   ledger,
		set:      set,
		capacity: capacity,
		log:      log.With(logx.String("comp", "dedup")),
		index:    map[string]struct{}{},
	}
}

// Load replaces the in-memory set with the persisted one. An unreadable
// ledger leaves the store empty; the worst outcome is a repeated notification.
func (s *Store) Load(ctx context.Context) {
	keys, err := s.ledger.LoadKeys(ctx, s.set)
	if err != nil {
		s.log.Warn("dedup state unreadable; starting empty", logx.String("set", s.set), logx.Err(err))
		keys = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.index = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s.addLocked(k)
	}
	s.log.Debug("dedup state loaded", logx.Int("keys", len(s.order)))
}

func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// Add records key and reports whether it was new.
func (s *Store) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(key)
}

func (s *Store) addLocked(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Persist truncates the window to the most recent Capacity keys and writes
// it as one JSON array. On a ledger error the in-memory set stays truncated
// and the previous persisted copy is untouched.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	if n := len(s.order) - s.capacity; n > 0 {
		for _, k := range s.order[:n] {
			delete(s.index, k)
		}
		s.order = append([]string(nil), s.order[n:]...)
	}
	snapshot := append([]string(nil), s.order...)
	s.mu.Unlock()

	return s.ledger.ReplaceKeys(ctx, s.set, snapshot)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Keys returns the current window, oldest first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
