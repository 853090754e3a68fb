package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Refdata  RefdataConfig `json:"refdata" yaml:"refdata"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	API      APIConfig     `json:"api" yaml:"api"`
	Matches  MatchesConfig `json:"matches" yaml:"matches"`
}

type IngestConfig struct {
	ChannelBuffer int          `json:"channel_buffer" yaml:"channel_buffer"`
	RedisQ        RedisQConfig `json:"redisq" yaml:"redisq"`
	Kafka         KafkaConfig  `json:"kafka" yaml:"kafka"`
}

type RedisQConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	URL        string        `json:"url" yaml:"url"`
	QueueID    string        `json:"queue_id" yaml:"queue_id"`
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RefdataConfig struct {
	BaseURL   string             `json:"base_url" yaml:"base_url"`
	CacheTTL  time.Duration      `json:"cache_ttl" yaml:"cache_ttl"`
	CacheSize int                `json:"cache_size" yaml:"cache_size"`
	Redis     RefdataRedisConfig `json:"redis" yaml:"redis"`
}

type RefdataRedisConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	DB      int    `json:"db" yaml:"db"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type DispatchConfig struct {
	DeliveryTimeout time.Duration     `json:"delivery_timeout" yaml:"delivery_timeout"`
	MaxConcurrent   int               `json:"max_concurrent" yaml:"max_concurrent"`
	Webhooks        map[string]string `json:"webhooks" yaml:"webhooks"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type MatchesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
	StatsLimit int `json:"stats_limit" yaml:"stats_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 256,
			RedisQ: RedisQConfig{
				Enabled:    true,
				URL:        "https://zkillredisq.stream/listen.php",
				QueueID:    "killfeed",
				MaxBackoff: 10 * time.Minute,
			},
			Kafka: KafkaConfig{Enabled: false},
		},
		Refdata: RefdataConfig{
			BaseURL:   "https://esi.evetech.net/latest",
			CacheTTL:  time.Hour,
			CacheSize: 4096,
		},
		Storage:  StorageConfig{Driver: "sqlite", DSN: "file:killfeed.db?_pragma=busy_timeout(5000)"},
		Dispatch: DispatchConfig{DeliveryTimeout: 10 * time.Second, MaxConcurrent: 4},
		API:      APIConfig{Enabled: true, Addr: ":8080"},
		Matches:  MatchesConfig{StoreLimit: 1000, StatsLimit: 5000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 256
	}
	if cfg.Ingest.RedisQ.MaxBackoff <= 0 {
		cfg.Ingest.RedisQ.MaxBackoff = 10 * time.Minute
	}
	if cfg.Refdata.BaseURL == "" {
		cfg.Refdata.BaseURL = "https://esi.evetech.net/latest"
	}
	if cfg.Refdata.CacheTTL <= 0 {
		cfg.Refdata.CacheTTL = time.Hour
	}
	if cfg.Refdata.CacheSize <= 0 {
		cfg.Refdata.CacheSize = 4096
	}
	if cfg.Dispatch.DeliveryTimeout <= 0 {
		cfg.Dispatch.DeliveryTimeout = 10 * time.Second
	}
	if cfg.Dispatch.MaxConcurrent <= 0 {
		cfg.Dispatch.MaxConcurrent = 4
	}
	if cfg.Matches.StoreLimit <= 0 {
		cfg.Matches.StoreLimit = 1000
	}
	if cfg.Matches.StatsLimit <= 0 {
		cfg.Matches.StatsLimit = 5000
	}
}

func Validate(cfg *Config) error {
	if cfg.Ingest.RedisQ.Enabled {
		if cfg.Ingest.RedisQ.URL == "" || cfg.Ingest.RedisQ.QueueID == "" {
			return errors.New("ingest.redisq requires url and queue_id")
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Refdata.Redis.Enabled && cfg.Refdata.Redis.Addr == "" {
		return errors.New("refdata.redis.addr required when refdata.redis.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Used by
// tests and by callers that run without a config file on disk.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
