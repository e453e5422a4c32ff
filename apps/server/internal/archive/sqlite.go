package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chupistica-server/game"
	"chupistica-server/stats"
)

const sqliteOpTimeout = 5 * time.Second

// SQLiteStore archives finished sessions in a local SQLite file. It is meant
// for single-node deployments; snapshots and summaries are stored as JSON
// text columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the archive database at path. Pass
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create archive db directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	// modernc.org/sqlite is happiest with a single connection; WAL plus a
	// busy timeout covers the room goroutines writing concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS finished_sessions (
			id          TEXT PRIMARY KEY,
			code        TEXT NOT NULL,
			ended_at_ms INTEGER NOT NULL,
			reason      TEXT NOT NULL,
			snapshot    TEXT NOT NULL,
			summary     TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_finished_sessions_code
			ON finished_sessions (code, ended_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_finished_sessions_ended_at
			ON finished_sessions (ended_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure archive schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveFinished(ctx context.Context, snap game.Snapshot, summary stats.FinalSummary) error {
	rec := newRecord(snap, summary)
	snapJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	sumJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO finished_sessions (id, code, ended_at_ms, reason, snapshot, summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Code, rec.EndedAt.UnixMilli(), rec.Reason, string(snapJSON), string(sumJSON),
	)
	if err != nil {
		return fmt.Errorf("insert finished session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByCode(ctx context.Context, code string) (Record, error) {
	normalized, err := game.ValidateCode(code)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, ended_at_ms, reason, snapshot, summary
		 FROM finished_sessions
		 WHERE code = ?
		 ORDER BY ended_at_ms DESC
		 LIMIT 1`,
		normalized,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query finished session: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, ended_at_ms, reason, snapshot, summary
		 FROM finished_sessions
		 ORDER BY ended_at_ms DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finished session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		endedAtMs  int64
		snapJSON   string
		summarJSON string
	)
	if err := row.Scan(&rec.ID, &rec.Code, &endedAtMs, &rec.Reason, &snapJSON, &summarJSON); err != nil {
		return Record{}, err
	}
	rec.EndedAt = time.UnixMilli(endedAtMs).UTC()
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(summarJSON), &rec.Summary); err != nil {
		return Record{}, fmt.Errorf("decode summary: %w", err)
	}
	return rec, nil
}
