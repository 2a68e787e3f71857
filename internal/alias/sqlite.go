package alias

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opiyodhiambo/zrebot/internal/db"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS aliases (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT    NOT NULL UNIQUE,
    name        TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_aliases_name ON aliases (name);
CREATE INDEX IF NOT EXISTS idx_aliases_created_at ON aliases (created_at);
`

const sqliteSelectColumns = `SELECT user_id, name, updated_at, created_at FROM aliases`

// SQLiteStore is the transactional backend for single-node deployments.
// Times are stored as unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// ":memory:" is accepted for tests.
func OpenSQLite(log *slog.Logger, path string) (*SQLiteStore, error) {
	if log == nil {
		log = slog.Default()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStoreUnavailable, err)
	}
	// One writer at a time; also keeps a single in-memory database alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, pragma, err)
		}
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply alias schema: %w", err)
	}
	return &SQLiteStore{
		db:     conn,
		logger: log.With(slog.String("service", "alias/sqlite")),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var (
		rec                Record
		submitted, created int64
	)
	if err := row.Scan(&rec.UserID, &rec.Name, &submitted, &created); err != nil {
		return Record{}, err
	}
	rec.SubmittedAt = time.UnixMilli(submitted).UTC()
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

func (s *SQLiteStore) getOne(ctx context.Context, op, query string, args ...any) (Record, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Get returns the user's alias.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (Record, error) {
	return s.getOne(ctx, "get alias", sqliteSelectColumns+` WHERE user_id = ?`, strings.TrimSpace(userID))
}

// Search matches names containing query, case-insensitively, oldest first.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]Record, error) {
	pattern := "%" + db.EscapeLike(NormalizeName(query)) + "%"
	return s.queryRecords(ctx, "search aliases",
		sqliteSelectColumns+` WHERE lower(name) LIKE ? ESCAPE '\' ORDER BY updated_at, user_id`, pattern)
}

// GetExact returns the user's alias only when it equals name.
func (s *SQLiteStore) GetExact(ctx context.Context, userID, name string) (Record, error) {
	return s.getOne(ctx, "get exact alias",
		sqliteSelectColumns+` WHERE user_id = ? AND lower(name) = ?`, strings.TrimSpace(userID), NormalizeName(name))
}

// Upsert inserts or overwrites the user's alias.
func (s *SQLiteStore) Upsert(ctx context.Context, userID, name string, at time.Time) error {
	userID, name, err := validate(userID, name)
	if err != nil {
		return err
	}
	ms := normalizeTime(at).UnixMilli()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO aliases (user_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		userID, name, ms, ms)
	if err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}
	return nil
}

// GetAll returns every alias keyed by user id.
func (s *SQLiteStore) GetAll(ctx context.Context) (map[string]Record, error) {
	records, err := s.queryRecords(ctx, "list aliases", sqliteSelectColumns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(records))
	for _, rec := range records {
		out[rec.UserID] = rec
	}
	return out, nil
}

// Stats reports the row count and newest submission.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var (
		total  int
		latest sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(updated_at) FROM aliases`).Scan(&total, &latest); err != nil {
		return Stats{}, fmt.Errorf("alias stats: %w", err)
	}
	st := Stats{Total: total}
	if latest.Valid {
		st.LatestSubmitAt = time.UnixMilli(latest.Int64).UTC()
	}
	return st, nil
}

// Import inserts records whose user id is absent, in a single transaction.
func (s *SQLiteStore) Import(ctx context.Context, records []Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin alias import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO aliases (user_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare alias import: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		userID, name, err := validate(rec.UserID, rec.Name)
		if err != nil {
			return 0, fmt.Errorf("import %q: %w", rec.UserID, err)
		}
		submitted := normalizeTime(rec.SubmittedAt)
		created := submitted
		if !rec.CreatedAt.IsZero() {
			created = normalizeTime(rec.CreatedAt)
		}
		res, err := stmt.ExecContext(ctx, userID, name, created.UnixMilli(), submitted.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("import alias %q: %w", userID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("import alias %q: %w", userID, err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit alias import: %w", err)
	}
	s.logger.Debug("aliases imported", slog.Int("inserted", inserted), slog.Int("offered", len(records)))
	return inserted, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
