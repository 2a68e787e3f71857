package alias

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opiyodhiambo/zrebot/internal/db"
)

const (
	pgSelectColumns = `SELECT user_id, name, updated_at, created_at FROM aliases`

	pgUpsert = `
INSERT INTO aliases (user_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id)
DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`

	pgInsertIfAbsent = `
INSERT INTO aliases (user_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING`
)

// PostgresStore is the transactional backend on the aliases table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore wraps an open pool. The schema is owned by the db migrations.
func NewPostgresStore(log *slog.Logger, pool *pgxpool.Pool) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		logger: log.With(slog.String("service", "alias/postgres")),
	}
}

func (s *PostgresStore) wrap(op string, err error) error {
	if db.IsConnectionError(err) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanPgRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		submitted pgtype.Timestamptz
		created   pgtype.Timestamptz
	)
	if err := row.Scan(&rec.UserID, &rec.Name, &submitted, &created); err != nil {
		return Record{}, err
	}
	rec.SubmittedAt = db.TimeFromPg(submitted).UTC()
	rec.CreatedAt = db.TimeFromPg(created).UTC()
	return rec, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, op, sql string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanPgRecord(row)
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return records, nil
}

func (s *PostgresStore) getOne(ctx context.Context, op, sql string, args ...any) (Record, error) {
	rec, err := scanPgRecord(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, s.wrap(op, err)
	}
	return rec, nil
}

// Get returns the user's alias.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Record, error) {
	return s.getOne(ctx, "get alias", pgSelectColumns+` WHERE user_id = $1`, strings.TrimSpace(userID))
}

// Search matches names containing query, case-insensitively, oldest first.
func (s *PostgresStore) Search(ctx context.Context, query string) ([]Record, error) {
	pattern := "%" + db.EscapeLike(NormalizeName(query)) + "%"
	return s.queryRecords(ctx, "search aliases",
		pgSelectColumns+` WHERE name ILIKE $1 ESCAPE '\' ORDER BY updated_at, user_id`, pattern)
}

// GetExact returns the user's alias only when it equals name.
func (s *PostgresStore) GetExact(ctx context.Context, userID, name string) (Record, error) {
	return s.getOne(ctx, "get exact alias",
		pgSelectColumns+` WHERE user_id = $1 AND lower(name) = $2`, strings.TrimSpace(userID), NormalizeName(name))
}

// Upsert inserts or overwrites the user's alias.
func (s *PostgresStore) Upsert(ctx context.Context, userID, name string, at time.Time) error {
	userID, name, err := validate(userID, name)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgUpsert, userID, name, normalizeTime(at))
	if err != nil {
		return s.wrap("upsert alias", err)
	}
	s.logger.Debug("alias saved", slog.String("user_id", userID), slog.Int64("rows", tag.RowsAffected()))
	return nil
}

// GetAll returns every alias keyed by user id.
func (s *PostgresStore) GetAll(ctx context.Context) (map[string]Record, error) {
	records, err := s.queryRecords(ctx, "list aliases", pgSelectColumns)
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
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var (
		total  int64
		latest pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), MAX(updated_at) FROM aliases`).Scan(&total, &latest)
	if err != nil {
		return Stats{}, s.wrap("alias stats", err)
	}
	return Stats{Total: int(total), LatestSubmitAt: db.TimeFromPg(latest).UTC()}, nil
}

// Import inserts records whose user id is absent, in a single transaction.
func (s *PostgresStore) Import(ctx context.Context, records []Record) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, s.wrap("begin alias import", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
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
		batch.Queue(pgInsertIfAbsent, userID, name, created, submitted)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, s.wrap("import alias", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, s.wrap("close alias import batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, s.wrap("commit alias import", err)
	}
	return inserted, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}
