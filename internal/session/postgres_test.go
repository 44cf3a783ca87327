package session_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/phonoplay/internal/session"
)

func newTestPostgresStore(t *testing.T) *session.PostgresStore {
	t.Helper()
	dsn := os.Getenv("PHONOPLAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PHONOPLAY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_snapshots CASCADE"); err != nil {
		t.Fatalf("drop session_snapshots: %v", err)
	}
	pool.Close()

	st, err := session.OpenPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgresStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	st := newTestPostgresStore(t)
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := st.Load(ctx, "pg"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load(missing) err = %v", err)
	}

	snap := session.Snapshot{ID: "pg", State: session.StateReady, Index: 2, Version: 5, Performance: []bool{true, false}}
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Load(ctx, "pg")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Index != 2 || got.Version != 5 || len(got.Performance) != 2 {
		t.Errorf("Load = %+v", got)
	}

	stale := snap
	stale.Version = 4
	stale.Index = 0
	if err := st.Save(ctx, stale); err != nil {
		t.Fatalf("Save stale: %v", err)
	}
	if got, _ := st.Load(ctx, "pg"); got.Index != 2 {
		t.Errorf("stale save overwrote snapshot: index %d", got.Index)
	}

	if err := st.Delete(ctx, "pg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, "pg"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load after Delete err = %v", err)
	}
}
