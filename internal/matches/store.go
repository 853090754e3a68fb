package matches

import (
	"sync"
	"time"

	"killfeed/internal/model"
)

// Store keeps the most recent match records in a bounded ring.
type Store struct {
	mu    sync.RWMutex
	buf   []model.MatchRecord
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(rec model.MatchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rec)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rec
}

func (s *Store) List(limit int) []model.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.MatchRecord, 0, limit)
	start := len(s.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MatchRecord, 0)
	for _, rec := range s.buf {
		if !rec.Timestamp.Before(ts) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
