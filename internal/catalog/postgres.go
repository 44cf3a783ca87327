package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/phonoplay/internal/phonics"
)

// Schema is the DDL for the words table. Phonemes are stored upper-cased so
// the containment and overlap operators can use the GIN index directly.
const Schema = `
CREATE TABLE IF NOT EXISTS words (
    id          BIGSERIAL PRIMARY KEY,
    word        TEXT NOT NULL UNIQUE,
    phonemes    TEXT[] NOT NULL,
    image_path  TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    subcategory TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_words_phonemes ON words USING GIN (phonemes);
CREATE INDEX IF NOT EXISTS idx_words_lower_word ON words (lower(word));
`

// DB is the subset of *pgxpool.Pool used by [Postgres]. *pgx.Conn satisfies
// it too.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a catalog backed by the words table. It implements [Source],
// [Lookup] and [Inventory].
//
// The phoneme filter runs on the server before the limit: array containment
// (@>) for [phonics.MatchAll] and overlap (&&) for [phonics.MatchAny].
type Postgres struct {
	db   DB
	pool *pgxpool.Pool
}

var (
	_ Source    = (*Postgres)(nil)
	_ Lookup    = (*Postgres)(nil)
	_ Inventory = (*Postgres)(nil)
)

// NewPostgres wraps an existing connection or pool. The caller owns db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to dsn, verifies the connection and applies [Schema].
// Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: postgres: ping: %w", err)
	}
	p := &Postgres{db: pool, pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate applies [Schema].
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity. It is a no-op for stores built with
// [NewPostgres].
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Close releases the pool opened by [OpenPostgres].
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const selectColumns = `id, word, phonemes, image_path, category, subcategory`

// Candidates implements [Source].
func (p *Postgres) Candidates(ctx context.Context, q Query) ([]phonics.Word, error) {
	q = q.normalized()

	op := "@>"
	if q.Policy == phonics.MatchAny {
		op = "&&"
	}
	sql := `
		SELECT ` + selectColumns + `
		FROM   words
		WHERE  (cardinality($1::text[]) = 0 OR phonemes ` + op + ` $1::text[])
		  AND  ($2::text[] IS NULL OR upper(category) = ANY($2::text[]))
		  AND  ($3::text[] IS NULL OR upper(subcategory) = ANY($3::text[]))
		ORDER  BY (image_path = ''), id
		LIMIT  $4`

	phonemes := q.Phonemes
	if phonemes == nil {
		phonemes = []string{}
	}
	rows, err := p.db.Query(ctx, sql, phonemes, q.Categories, q.Subcategories, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: candidates: %w", err)
	}
	return collectWords(rows)
}

// Lookup implements [Lookup].
func (p *Postgres) Lookup(ctx context.Context, words []string) ([]phonics.Word, error) {
	if len(words) == 0 {
		return nil, nil
	}
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(strings.TrimSpace(w))
	}

	const sql = `
		SELECT ` + selectColumns + `
		FROM   words
		WHERE  lower(word) = ANY($1::text[])
		ORDER  BY id`

	rows, err := p.db.Query(ctx, sql, lower)
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: lookup: %w", err)
	}
	return collectWords(rows)
}

// Phonemes implements [Inventory].
func (p *Postgres) Phonemes(ctx context.Context) ([]string, error) {
	const sql = `SELECT DISTINCT unnest(phonemes) AS p FROM words ORDER BY p`

	rows, err := p.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: phonemes: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: phonemes: %w", err)
	}
	return out, nil
}

// Import upserts words by their text and returns the number written. Words
// are validated first; nothing is written if any is invalid.
func (p *Postgres) Import(ctx context.Context, words []phonics.Word) (int, error) {
	for _, w := range words {
		if err := w.Validate(); err != nil {
			return 0, fmt.Errorf("catalog: postgres: import: %w", err)
		}
	}

	const sql = `
		INSERT INTO words (word, phonemes, image_path, category, subcategory)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (word) DO UPDATE SET
			phonemes    = EXCLUDED.phonemes,
			image_path  = EXCLUDED.image_path,
			category    = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory`

	n := 0
	for _, w := range words {
		w = w.Normalized()
		_, err := p.db.Exec(ctx, sql, w.Text, w.Phonemes, w.ImagePath, w.Category, w.Subcategory)
		if err != nil {
			return n, fmt.Errorf("catalog: postgres: import %q: %w", w.Text, err)
		}
		n++
	}
	return n, nil
}

func collectWords(rows pgx.Rows) ([]phonics.Word, error) {
	words, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (phonics.Word, error) {
		var w phonics.Word
		err := row.Scan(&w.ID, &w.Text, &w.Phonemes, &w.ImagePath, &w.Category, &w.Subcategory)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: postgres: scan: %w", err)
	}
	return words, nil
}
