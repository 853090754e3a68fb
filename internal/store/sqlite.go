package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:killfeed.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			destination_id TEXT NOT NULL,
			feed_name TEXT NOT NULL,
			spec_json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(destination_id, feed_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_destination ON feeds(destination_id)`,
		`CREATE TABLE IF NOT EXISTS ref_cache (
			kind TEXT NOT NULL,
			query TEXT NOT NULL,
			data_json TEXT NOT NULL,
			expires_at TEXT NOT NULL,
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

func (s *sqliteStore) ListFeeds(ctx context.Context, destinationID string) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination_id, feed_name, spec_json FROM feeds WHERE destination_id = ? ORDER BY feed_name`,
		destinationID)
	if err != nil {
		return nil, err
	}
	return scanFeeds(rows)
}

func (s *sqliteStore) ListAllFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination_id, feed_name, spec_json FROM feeds ORDER BY destination_id, feed_name`)
	if err != nil {
		return nil, err
	}
	return scanFeeds(rows)
}

func (s *sqliteStore) SaveFeed(ctx context.Context, feed Feed) error {
	if feed.DestinationID == "" || feed.Name == "" {
		return ErrInvalidFeed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (destination_id, feed_name, spec_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(destination_id, feed_name) DO UPDATE SET spec_json = excluded.spec_json, updated_at = excluded.updated_at`,
		feed.DestinationID, feed.Name, encodeSpec(feed.Spec), nowUTC().Format(time.RFC3339))
	return err
}

func (s *sqliteStore) DeleteFeed(ctx context.Context, destinationID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM feeds WHERE destination_id = ? AND feed_name = ?`, destinationID, name)
	return err
}

func (s *sqliteStore) FeedExists(ctx context.Context, destinationID, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM feeds WHERE destination_id = ? AND feed_name = ?`, destinationID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) CacheGet(ctx context.Context, kind, key string) ([]byte, bool, error) {
	var data string
	var expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json, expires_at FROM ref_cache WHERE kind = ? AND query = ?`, kind, key).Scan(&data, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	exp, err := time.Parse(time.RFC3339, expires)
	if err != nil || nowUTC().After(exp) {
		return nil, false, nil
	}
	return []byte(data), true, nil
}

func (s *sqliteStore) CachePut(ctx context.Context, kind, key string, data []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ref_cache (kind, query, data_json, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, query) DO UPDATE SET data_json = excluded.data_json, expires_at = excluded.expires_at`,
		kind, key, string(data), nowUTC().Add(ttl).Format(time.RFC3339))
	return err
}

func scanFeeds(rows *sql.Rows) ([]Feed, error) {
	defer rows.Close()
	out := make([]Feed, 0)
	for rows.Next() {
		var f Feed
		var spec string
		if err := rows.Scan(&f.DestinationID, &f.Name, &spec); err != nil {
			return nil, err
		}
		f.Spec = decodeSpec(spec)
		out = append(out, f)
	}
	return out, rows.Err()
}
