package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"killfeed/internal/config"
	"killfeed/internal/filter"
)

// Feed is one persisted subscription: a filter spec owned by exactly one
// (destination, name) pair.
type Feed struct {
	DestinationID string      `json:"destination_id"`
	Name          string      `json:"name"`
	Spec          filter.Spec `json:"spec"`
}

type Store interface {
	Init(ctx context.Context) error
	Close() error

	ListFeeds(ctx context.Context, destinationID string) ([]Feed, error)
	ListAllFeeds(ctx context.Context) ([]Feed, error)
	SaveFeed(ctx context.Context, feed Feed) error
	DeleteFeed(ctx context.Context, destinationID, name string) error
	FeedExists(ctx context.Context, destinationID, name string) (bool, error)

	CacheGet(ctx context.Context, kind, key string) ([]byte, bool, error)
	CachePut(ctx context.Context, kind, key string, data []byte, ttl time.Duration) error
}

var ErrInvalidFeed = errors.New("feed requires destination id and name")

func New(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeSpec(spec filter.Spec) string {
	data, _ := json.Marshal(spec)
	return string(data)
}

// decodeSpec re-normalizes on the way out so rows written by older versions
// can never leak a legacy shape into the evaluator.
func decodeSpec(data string) filter.Spec {
	return filter.Decode([]byte(data))
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
