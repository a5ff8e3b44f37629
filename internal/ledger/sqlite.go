package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"jobwatcher/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen (
    fingerprint   TEXT PRIMARY KEY,
    source        TEXT NOT NULL,
    message_id    INTEGER NOT NULL,
    verdict       TEXT NOT NULL,
    final_score   INTEGER,
    positive_sum  INTEGER NOT NULL DEFAULT 0,
    negative_sum  INTEGER NOT NULL DEFAULT 0,
    matches       TEXT NOT NULL DEFAULT '{}',
    raw_text      TEXT NOT NULL DEFAULT '',
    first_seen_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_first_seen_at ON seen(first_seen_at DESC);
`

// Store is the dedup ledger: one row per fingerprint, insert-or-replace
// semantics, never deleted by the pipeline.
type Store struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path and ensures the
// schema. SQLite keeps a single writer; WAL mode avoids blocking the
// occasional observability read.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// HasSeen reports whether a record with the fingerprint exists.
func (s *Store) HasSeen(ctx context.Context, fingerprint string) (bool, error) {
	query, args, err := sq.Select("1").
		From("seen").
		Where(sq.Eq{"fingerprint": fingerprint}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup fingerprint: %w", err)
	}
	return true, nil
}

// Record upserts the record for its fingerprint. Re-recording the same
// fingerprint overwrites the classification fields (last write wins)
// and never produces a second row; the first-seen timestamp survives.
func (s *Store) Record(ctx context.Context, rec domain.SeenRecord) error {
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = time.Now()
	}

	var score sql.NullInt64
	if rec.FinalScore != nil {
		score = sql.NullInt64{Int64: int64(*rec.FinalScore), Valid: true}
	}

	query, args, err := sq.Insert("seen").
		Columns("fingerprint", "source", "message_id", "verdict", "final_score",
			"positive_sum", "negative_sum", "matches", "raw_text", "first_seen_at").
		Values(rec.Fingerprint, rec.Source, rec.MessageID, rec.Verdict, score,
			rec.PositiveSum, rec.NegativeSum, rec.MatchesJSON, rec.RawText, rec.FirstSeenAt.Unix()).
		Suffix(`ON CONFLICT(fingerprint) DO UPDATE SET
			source = excluded.source,
			message_id = excluded.message_id,
			verdict = excluded.verdict,
			final_score = excluded.final_score,
			positive_sum = excluded.positive_sum,
			negative_sum = excluded.negative_sum,
			matches = excluded.matches,
			raw_text = excluded.raw_text`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record fingerprint: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.SeenRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := sq.Select("fingerprint", "source", "message_id", "verdict", "final_score",
		"positive_sum", "negative_sum", "matches", "raw_text", "first_seen_at").
		From("seen").
		OrderBy("first_seen_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []domain.SeenRecord
	for rows.Next() {
		var (
			rec   domain.SeenRecord
			score sql.NullInt64
			ts    int64
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.Source, &rec.MessageID, &rec.Verdict, &score,
			&rec.PositiveSum, &rec.NegativeSum, &rec.MatchesJSON, &rec.RawText, &ts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			rec.FinalScore = &v
		}
		rec.FirstSeenAt = time.Unix(ts, 0)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
