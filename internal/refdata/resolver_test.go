package refdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newESIStub(t *testing.T, systemHits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/universe/systems/30000142/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if systemHits != nil {
			systemHits.Add(1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":             "Jita",
			"constellation_id": 20000020,
			"security_status":  0.945,
		})
	})
	mux.HandleFunc("/universe/constellations/20000020/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"region_id": 10000002})
	})
	mux.HandleFunc("/universe/names/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var ids []int64
		_ = json.NewDecoder(r.Body).Decode(&ids)
		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			if id == 99999999 {
				continue
			}
			out = append(out, map[string]any{"id": id, "name": "entity", "category": "corporation"})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/universe/ids/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var names []string
		_ = json.NewDecoder(r.Body).Decode(&names)
		corps := make([]map[string]any, 0, len(names))
		for _, name := range names {
			if name == "No Such Corp" {
				continue
			}
			corps = append(corps, map[string]any{"id": 500001, "name": name})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"corporations": corps})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSystemResolvesRegion(t *testing.T) {
	srv := newESIStub(t, nil)
	r := NewResolver(srv.URL, NewMemoryCache(16, time.Minute), nil)

	info, ok, err := r.System(context.Background(), 30000142)
	if err != nil || !ok {
		t.Fatalf("system: %v %v", ok, err)
	}
	if info.Name != "Jita" || info.RegionID != 10000002 {
		t.Fatalf("info: %+v", info)
	}

	regionID, err := r.RegionID(context.Background(), 30000142)
	if err != nil || regionID != 10000002 {
		t.Fatalf("region: %d %v", regionID, err)
	}
}

func TestSystemCachesLookups(t *testing.T) {
	var hits atomic.Int64
	srv := newESIStub(t, &hits)
	r := NewResolver(srv.URL, NewMemoryCache(16, time.Minute), nil)

	for i := 0; i < 3; i++ {
		if _, ok, err := r.System(context.Background(), 30000142); err != nil || !ok {
			t.Fatalf("system: %v %v", ok, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single upstream hit, got %d", hits.Load())
	}
}

func TestSystemNotFound(t *testing.T) {
	srv := newESIStub(t, nil)
	r := NewResolver(srv.URL, nil, nil)

	_, ok, err := r.System(context.Background(), 12345)
	if err != nil {
		t.Fatalf("not-found must not error: %v", err)
	}
	if ok {
		t.Fatalf("unknown system reported as found")
	}
}

func TestNamesSkipsUnknownIDs(t *testing.T) {
	srv := newESIStub(t, nil)
	r := NewResolver(srv.URL, NewMemoryCache(16, time.Minute), nil)

	out, err := r.Names(context.Background(), []int64{500001, 99999999})
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if _, ok := out[500001]; !ok {
		t.Fatalf("missing resolved entity: %+v", out)
	}
	if _, ok := out[99999999]; ok {
		t.Fatalf("unknown id resolved: %+v", out)
	}
}

func TestIDsFlattensCategories(t *testing.T) {
	srv := newESIStub(t, nil)
	r := NewResolver(srv.URL, NewMemoryCache(16, time.Minute), nil)

	out, err := r.IDs(context.Background(), []string{"Known Corp", "No Such Corp", ""})
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	e, ok := out["Known Corp"]
	if !ok || e.ID != 500001 || e.Category != "corporation" {
		t.Fatalf("entity: %+v (%v)", e, ok)
	}
	if _, ok := out["No Such Corp"]; ok {
		t.Fatalf("unknown name resolved: %+v", out)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "Jita", "constellation_id": 0, "security_status": 0.9})
	}))
	t.Cleanup(srv.Close)

	r := NewResolver(srv.URL, nil, nil)
	info, ok, err := r.System(context.Background(), 30000142)
	if err != nil || !ok {
		t.Fatalf("system after retry: %v %v", ok, err)
	}
	if info.Name != "Jita" {
		t.Fatalf("info: %+v", info)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected a retry, got %d calls", calls.Load())
	}
}

func TestLayeredCacheBackfills(t *testing.T) {
	ctx := context.Background()
	fast := NewMemoryCache(16, time.Minute)
	slow := NewMemoryCache(16, time.Minute)
	slow.Put(ctx, "system", "1", []byte("x"))

	layered := Layered(fast, slow)
	data, ok := layered.Get(ctx, "system", "1")
	if !ok || string(data) != "x" {
		t.Fatalf("layered get: %v %q", ok, data)
	}
	if _, ok := fast.Get(ctx, "system", "1"); !ok {
		t.Fatalf("hit was not backfilled into the first layer")
	}
	if _, ok := layered.Get(ctx, "system", "2"); ok {
		t.Fatalf("unexpected hit")
	}
}
