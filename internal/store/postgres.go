package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/killfeed?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
			id BIGSERIAL PRIMARY KEY,
			destination_id TEXT NOT NULL,
			feed_name TEXT NOT NULL,
			spec_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(destination_id, feed_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_destination ON feeds(destination_id)`,
		`CREATE TABLE IF NOT EXISTS ref_cache (
			kind TEXT NOT NULL,
			query TEXT NOT NULL,
			data_json JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY(kind, query)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) ListFeeds(ctx context.Context, destinationID string) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination_id, feed_name, spec_json FROM feeds WHERE destination_id = $1 ORDER BY feed_name`,
		destinationID)
	if err != nil {
		return nil, err
	}
	return scanFeeds(rows)
}

func (s *postgresStore) ListAllFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination_id, feed_name, spec_json FROM feeds ORDER BY destination_id, feed_name`)
	if err != nil {
		return nil, err
	}
	return scanFeeds(rows)
}

func (s *postgresStore) SaveFeed(ctx context.Context, feed Feed) error {
	if feed.DestinationID == "" || feed.Name == "" {
		return ErrInvalidFeed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (destination_id, feed_name, spec_json, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT(destination_id, feed_name) DO UPDATE SET spec_json = excluded.spec_json, updated_at = excluded.updated_at`,
		feed.DestinationID, feed.Name, encodeSpec(feed.Spec), nowUTC())
	return err
}

func (s *postgresStore) DeleteFeed(ctx context.Context, destinationID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM feeds WHERE destination_id = $1 AND feed_name = $2`, destinationID, name)
	return err
}

func (s *postgresStore) FeedExists(ctx context.Context, destinationID, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM feeds WHERE destination_id = $1 AND feed_name = $2`, destinationID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *postgresStore) CacheGet(ctx context.Context, kind, key string) ([]byte, bool, error) {
	var data string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json, expires_at FROM ref_cache WHERE kind = $1 AND query = $2`, kind, key).Scan(&data, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if nowUTC().After(expires) {
		return nil, false, nil
	}
	return []byte(data), true, nil
}

func (s *postgresStore) CachePut(ctx context.Context, kind, key string, data []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ref_cache (kind, query, data_json, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT(kind, query) DO UPDATE SET data_json = excluded.data_json, expires_at = excluded.expires_at`,
		kind, key, string(data), nowUTC().Add(ttl))
	return err
}
