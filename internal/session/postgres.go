package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the DDL for the snapshot table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    key        TEXT PRIMARY KEY,
    version    BIGINT NOT NULL,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_session_snapshots_updated ON session_snapshots(updated_at);
`

// DB is the subset of *pgxpool.Pool used by [PostgresStore].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [SnapshotStore] that keeps snapshots as JSONB rows.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

var _ SnapshotStore = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection or pool. Call
// [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore connects to dsn, pings and migrates.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("session: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("session: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session: postgres: ping: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies [PostgresSchema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("session: postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity of a pool opened with [OpenPostgresStore].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool opened by [OpenPostgresStore].
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save implements [SnapshotStore]. Older versions never overwrite newer ones.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: postgres: marshal: %w", err)
	}
	const q = `
		INSERT INTO session_snapshots (key, version, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
			version    = EXCLUDED.version,
			data       = EXCLUDED.data,
			updated_at = now()
		WHERE session_snapshots.version <= EXCLUDED.version`

	if _, err := s.db.Exec(ctx, q, Key(snap.ID), int64(snap.Version), data); err != nil {
		return fmt.Errorf("session: postgres: save %s: %w", snap.ID, err)
	}
	return nil
}

// Load implements [SnapshotStore].
func (s *PostgresStore) Load(ctx context.Context, id string) (Snapshot, error) {
	const q = `SELECT data FROM session_snapshots WHERE key = $1`

	var data []byte
	if err := s.db.QueryRow(ctx, q, Key(id)).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Snapshot{}, fmt.Errorf("session: postgres: load %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("session: postgres: unmarshal %s: %w", id, err)
	}
	return snap, nil
}

// Delete implements [SnapshotStore].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM session_snapshots WHERE key = $1`, Key(id)); err != nil {
		return fmt.Errorf("session: postgres: delete %s: %w", id, err)
	}
	return nil
}
