package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"killfeed/internal/config"
	"killfeed/internal/filter"
	"killfeed/internal/matches"
	"killfeed/internal/model"
	"killfeed/internal/stats"
	"killfeed/internal/store"
)

type Server struct {
	cfg     *config.Manager
	store   store.Store
	matches *matches.Store
	stats   *stats.Store
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Ingest     ingestStatus `json:"ingest"`
	Storage    string       `json:"storage"`
	API        apiStatus    `json:"api"`
}

type ingestStatus struct {
	RedisQ bool `json:"redisq"`
	Kafka  bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func NewServer(cfg *config.Manager, st store.Store, matchesStore *matches.Store, statsStore *stats.Store, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		matches: matchesStore,
		stats:   statsStore,
		logger:  logger,
		version: version,
	}
}

func Start(ctx context.Context, cfg *config.Manager, st store.Store, matchesStore *matches.Store, statsStore *stats.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, st, matchesStore, statsStore, logger, version)

	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/feeds", s.handleFeedList)
	mux.HandleFunc("/feeds/", s.handleFeed)
	mux.HandleFunc("/matches", s.handleMatches)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/admin/clear", s.handleClear)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			RedisQ: cfg.Ingest.RedisQ.Enabled,
			Kafka:  cfg.Ingest.Kafka.Enabled,
		},
		Storage: cfg.Storage.Driver,
		API:     apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	destination := r.URL.Query().Get("destination")
	var feeds []store.Feed
	var err error
	if destination != "" {
		feeds, err = s.store.ListFeeds(r.Context(), destination)
	} else {
		feeds, err = s.store.ListAllFeeds(r.Context())
	}
	if err != nil {
		s.logger.Error("feed list failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feeds": feeds,
		"count": len(feeds),
	})
}

// handleFeed serves /feeds/{destination}/{name}.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/feeds/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	destination, name := parts[0], parts[1]

	switch r.Method {
	case http.MethodGet:
		feeds, err := s.store.ListFeeds(r.Context(), destination)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		for _, feed := range feeds {
			if feed.Name == name {
				writeJSON(w, http.StatusOK, feed)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		feed := store.Feed{
			DestinationID: destination,
			Name:          name,
			Spec:          filter.Normalize(raw),
		}
		existed, err := s.store.FeedExists(r.Context(), destination, name)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := s.store.SaveFeed(r.Context(), feed); err != nil {
			s.logger.Error("feed save failed", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		status := http.StatusCreated
		if existed {
			status = http.StatusOK
		}
		writeJSON(w, status, feed)
	case http.MethodDelete:
		if err := s.store.DeleteFeed(r.Context(), destination, name); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.MatchRecord
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.matches.Since(ts)
	} else {
		list = s.matches.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": list,
		"count":   len(list),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	all := s.stats.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": all,
		"count": len(all),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.matches != nil {
			s.matches.Clear()
		}
		if s.stats != nil {
			s.stats.Clear()
		}
	case "matches":
		if s.matches != nil {
			s.matches.Clear()
		}
	case "stats":
		if s.stats != nil {
			s.stats.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
