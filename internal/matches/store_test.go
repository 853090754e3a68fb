package matches

import (
	"testing"
	"time"

	"killfeed/internal/model"
)

func TestRingDropsOldest(t *testing.T) {
	s := NewStore(3)
	for i := int64(1); i <= 5; i++ {
		s.Add(model.MatchRecord{KillmailID: i})
	}
	got := s.List(0)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].KillmailID != 3 || got[2].KillmailID != 5 {
		t.Fatalf("ring order: %+v", got)
	}
}

func TestListLimitReturnsNewest(t *testing.T) {
	s := NewStore(10)
	for i := int64(1); i <= 4; i++ {
		s.Add(model.MatchRecord{KillmailID: i})
	}
	got := s.List(2)
	if len(got) != 2 || got[0].KillmailID != 3 || got[1].KillmailID != 4 {
		t.Fatalf("got %+v", got)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(model.MatchRecord{KillmailID: 1, Timestamp: base.Add(-time.Hour)})
	s.Add(model.MatchRecord{KillmailID: 2, Timestamp: base})

	got := s.Since(base.Add(-time.Minute))
	if len(got) != 1 || got[0].KillmailID != 2 {
		t.Fatalf("got %+v", got)
	}

	s.Clear()
	if len(s.List(0)) != 0 {
		t.Fatalf("clear left records behind")
	}
}
