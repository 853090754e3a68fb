package stats

import (
	"sort"
	"sync"
	"time"

	"killfeed/internal/model"
)

type key struct {
	destinationID string
	feed          string
}

// Store holds per-feed delivery counters. Feeds beyond the limit are evicted
// oldest-updated first.
type Store struct {
	mu        sync.RWMutex
	byFeed    map[key]model.FeedStats
	updatedAt map[key]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byFeed:    make(map[key]model.FeedStats),
		updatedAt: make(map[key]time.Time),
		limit:     limit,
	}
}

func (s *Store) Evaluated(destinationID, feed string) {
	s.bump(destinationID, feed, func(fs *model.FeedStats) { fs.Evaluated++ })
}

func (s *Store) Matched(destinationID, feed string) {
	s.bump(destinationID, feed, func(fs *model.FeedStats) { fs.Matched++ })
}

func (s *Store) Delivered(destinationID, feed string) {
	s.bump(destinationID, feed, func(fs *model.FeedStats) { fs.Delivered++ })
}

func (s *Store) Failed(destinationID, feed string) {
	s.bump(destinationID, feed, func(fs *model.FeedStats) { fs.Failed++ })
}

func (s *Store) bump(destinationID, feed string, update func(*model.FeedStats)) {
	if destinationID == "" || feed == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{destinationID, feed}
	fs, ok := s.byFeed[k]
	if !ok {
		fs = model.FeedStats{DestinationID: destinationID, Feed: feed}
	}
	update(&fs)
	s.byFeed[k] = fs
	s.updatedAt[k] = time.Now().UTC()
	if len(s.byFeed) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(destinationID, feed string) (model.FeedStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := key{destinationID, feed}
	fs, ok := s.byFeed[k]
	if !ok {
		return model.FeedStats{}, time.Time{}, false
	}
	return fs, s.updatedAt[k], true
}

func (s *Store) All() []model.FeedStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FeedStats, 0, len(s.byFeed))
	for _, fs := range s.byFeed {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DestinationID != out[j].DestinationID {
			return out[i].DestinationID < out[j].DestinationID
		}
		return out[i].Feed < out[j].Feed
	})
	return out
}

func (s *Store) evictOldest() {
	var oldestKey key
	var oldest time.Time
	first := true
	for k, ts := range s.updatedAt {
		if first || ts.Before(oldest) {
			oldestKey = k
			oldest = ts
			first = false
		}
	}
	if !first {
		delete(s.byFeed, oldestKey)
		delete(s.updatedAt, oldestKey)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byFeed = make(map[key]model.FeedStats)
	s.updatedAt = make(map[key]time.Time)
}
