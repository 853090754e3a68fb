package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SystemInfo is the subset of ESI solar-system data the matcher needs.
type SystemInfo struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	RegionID       int64   `json:"region_id"`
	SecurityStatus float64 `json:"security_status"`
}

// Entity is a resolved universe name.
type Entity struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Resolver answers reference-data lookups against ESI, fronted by a Cache.
// A nil cache disables caching, a nil logger discards logs.
type Resolver struct {
	baseURL string
	client  *http.Client
	cache   Cache
	logger  *slog.Logger

	retries int
}

func NewResolver(baseURL string, cache Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
		logger:  logger,
		retries: 2,
	}
}

// System resolves one solar system. Returns ok=false without error when ESI
// does not know the ID.
func (r *Resolver) System(ctx context.Context, id int64) (SystemInfo, bool, error) {
	if id <= 0 {
		return SystemInfo{}, false, nil
	}
	key := strconv.FormatInt(id, 10)
	if data, ok := r.cacheGet(ctx, "system", key); ok {
		var info SystemInfo
		if json.Unmarshal(data, &info) == nil {
			return info, true, nil
		}
	}

	var body struct {
		Name            string  `json:"name"`
		ConstellationID int64   `json:"constellation_id"`
		SecurityStatus  float64 `json:"security_status"`
	}
	found, err := r.getJSON(ctx, fmt.Sprintf("/universe/systems/%d/", id), &body)
	if err != nil || !found {
		return SystemInfo{}, false, err
	}

	info := SystemInfo{ID: id, Name: body.Name, SecurityStatus: body.SecurityStatus}
	if regionID, err := r.regionOfConstellation(ctx, body.ConstellationID); err == nil {
		info.RegionID = regionID
	} else {
		r.logger.Warn("region lookup failed", "system_id", id, "error", err)
	}
	r.cachePut(ctx, "system", key, info)
	return info, true, nil
}

// RegionID maps a solar system to its region. Satisfies the event
// normalizer's lookup interface.
func (r *Resolver) RegionID(ctx context.Context, systemID int64) (int64, error) {
	info, ok, err := r.System(ctx, systemID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("unknown solar system %d", systemID)
	}
	return info.RegionID, nil
}

func (r *Resolver) regionOfConstellation(ctx context.Context, constellationID int64) (int64, error) {
	if constellationID <= 0 {
		return 0, fmt.Errorf("unknown constellation %d", constellationID)
	}
	key := strconv.FormatInt(constellationID, 10)
	if data, ok := r.cacheGet(ctx, "constellation", key); ok {
		if regionID, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return regionID, nil
		}
	}
	var body struct {
		RegionID int64 `json:"region_id"`
	}
	found, err := r.getJSON(ctx, fmt.Sprintf("/universe/constellations/%d/", constellationID), &body)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("unknown constellation %d", constellationID)
	}
	if r.cache != nil {
		r.cache.Put(ctx, "constellation", key, []byte(strconv.FormatInt(body.RegionID, 10)))
	}
	return body.RegionID, nil
}

// Names resolves a batch of IDs to names via POST /universe/names/. Unknown
// IDs are simply absent from the result.
func (r *Resolver) Names(ctx context.Context, ids []int64) (map[int64]Entity, error) {
	out := make(map[int64]Entity, len(ids))
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if data, ok := r.cacheGet(ctx, "name", strconv.FormatInt(id, 10)); ok {
			var e Entity
			if json.Unmarshal(data, &e) == nil {
				out[id] = e
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var resolved []Entity
	if err := r.postJSON(ctx, "/universe/names/", missing, &resolved); err != nil {
		return out, err
	}
	for _, e := range resolved {
		out[e.ID] = e
		r.cachePut(ctx, "name", strconv.FormatInt(e.ID, 10), e)
	}
	return out, nil
}

// IDs resolves a batch of names to IDs via POST /universe/ids/. ESI groups
// results by category; they are flattened into one name-keyed map. Names ESI
// does not recognize are absent from the result.
func (r *Resolver) IDs(ctx context.Context, names []string) (map[string]Entity, error) {
	out := make(map[string]Entity, len(names))
	missing := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if data, ok := r.cacheGet(ctx, "id", name); ok {
			var e Entity
			if json.Unmarshal(data, &e) == nil {
				out[name] = e
				continue
			}
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var resolved struct {
		Agents       []Entity `json:"agents"`
		Alliances    []Entity `json:"alliances"`
		Characters   []Entity `json:"characters"`
		Corporations []Entity `json:"corporations"`
		Types        []Entity `json:"inventory_types"`
		Regions      []Entity `json:"regions"`
		Systems      []Entity `json:"systems"`
	}
	if err := r.postJSON(ctx, "/universe/ids/", missing, &resolved); err != nil {
		return out, err
	}
	groups := map[string][]Entity{
		"alliance":       resolved.Alliances,
		"character":      resolved.Characters,
		"corporation":    resolved.Corporations,
		"inventory_type": resolved.Types,
		"region":         resolved.Regions,
		"solar_system":   resolved.Systems,
	}
	for category, entities := range groups {
		for _, e := range entities {
			e.Category = category
			out[e.Name] = e
			r.cachePut(ctx, "id", e.Name, e)
		}
	}
	return out, nil
}

func (r *Resolver) cacheGet(ctx context.Context, kind, key string) ([]byte, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(ctx, kind, key)
}

func (r *Resolver) cachePut(ctx context.Context, kind, key string, v any) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r.cache.Put(ctx, kind, key, data)
}

// getJSON fetches path and decodes into out. A 404 reads as not-found
// without error; 5xx and transport errors are retried with jitter.
func (r *Resolver) getJSON(ctx context.Context, path string, out any) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(200+rand.Intn(400)) * time.Millisecond):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return false, nil
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("esi GET %s: status %d", path, resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return false, fmt.Errorf("esi GET %s: status %d", path, resp.StatusCode)
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return true, nil
	}
	return false, lastErr
}

func (r *Resolver) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(200+rand.Intn(400)) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("esi POST %s: status %d", path, resp.StatusCode)
			if resp.StatusCode < 500 {
				return lastErr
			}
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
