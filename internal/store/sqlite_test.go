package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"killfeed/internal/filter"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "killfeed_test.db")
	s, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestFeedCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	spec := filter.Normalize(map[string]any{
		"regions":   []any{float64(10000002)},
		"min_value": float64(1000000),
	})
	feed := Feed{DestinationID: "chan-1", Name: "bigkills", Spec: spec}
	if err := s.SaveFeed(ctx, feed); err != nil {
		t.Fatalf("save: %v", err)
	}

	exists, err := s.FeedExists(ctx, "chan-1", "bigkills")
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}
	exists, err = s.FeedExists(ctx, "chan-1", "other")
	if err != nil || exists {
		t.Fatalf("unexpected feed: %v, %v", exists, err)
	}

	feeds, err := s.ListFeeds(ctx, "chan-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(feeds) != 1 || feeds[0].Name != "bigkills" {
		t.Fatalf("feeds: %+v", feeds)
	}
	if len(feeds[0].Spec.Regions.IDs) != 1 || feeds[0].Spec.Regions.IDs[0] != 10000002 {
		t.Fatalf("spec did not round-trip: %+v", feeds[0].Spec)
	}
	if feeds[0].Spec.MinValue == nil || *feeds[0].Spec.MinValue != 1000000 {
		t.Fatalf("min value did not round-trip: %+v", feeds[0].Spec)
	}
}

func TestSaveFeedUpsertsOnPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := filter.Normalize(map[string]any{"systems": []any{float64(30000142)}})
	second := filter.Normalize(map[string]any{"systems": []any{float64(30002187)}})
	if err := s.SaveFeed(ctx, Feed{DestinationID: "chan-1", Name: "jita", Spec: first}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveFeed(ctx, Feed{DestinationID: "chan-1", Name: "jita", Spec: second}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if err := s.SaveFeed(ctx, Feed{DestinationID: "chan-2", Name: "jita", Spec: first}); err != nil {
		t.Fatalf("save other destination: %v", err)
	}

	all, err := s.ListAllFeeds(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 feeds after upsert, got %d", len(all))
	}
	feeds, _ := s.ListFeeds(ctx, "chan-1")
	if feeds[0].Spec.Systems.IDs[0] != 30002187 {
		t.Fatalf("upsert did not replace spec: %+v", feeds[0].Spec)
	}
}

func TestDeleteFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.SaveFeed(ctx, Feed{DestinationID: "chan-1", Name: "a", Spec: filter.Spec{}})
	if err := s.DeleteFeed(ctx, "chan-1", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, _ := s.FeedExists(ctx, "chan-1", "a")
	if exists {
		t.Fatalf("feed survived delete")
	}
	// deleting a missing feed is not an error
	if err := s.DeleteFeed(ctx, "chan-1", "a"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestSaveFeedRejectsEmptyKey(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveFeed(context.Background(), Feed{Name: "x"}); err != ErrInvalidFeed {
		t.Fatalf("expected ErrInvalidFeed, got %v", err)
	}
}

func TestRefCacheTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CachePut(ctx, "system", "30000142", []byte(`{"name":"Jita"}`), time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ok, err := s.CacheGet(ctx, "system", "30000142")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if string(data) != `{"name":"Jita"}` {
		t.Fatalf("data: %s", data)
	}

	// expired entries behave as misses
	if err := s.CachePut(ctx, "system", "30000001", []byte(`{}`), -time.Minute); err != nil {
		t.Fatalf("put expired: %v", err)
	}
	_, ok, err = s.CacheGet(ctx, "system", "30000001")
	if err != nil || ok {
		t.Fatalf("expired entry must miss: %v %v", ok, err)
	}

	_, ok, _ = s.CacheGet(ctx, "system", "nope")
	if ok {
		t.Fatalf("unknown key must miss")
	}
}
