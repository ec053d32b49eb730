package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sqlpilot/internal/db"
	"github.com/sells-group/sqlpilot/internal/model"
	"github.com/sells-group/sqlpilot/internal/resilience"
)

// PostgresStore implements Store using pgxpool. It keeps the interaction
// log next to the data warehouse so queries and their provenance live in
// one place.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

// NewPostgres creates a PostgresStore with its own connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg.MaxConns > 0 {
		maxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		minConns = poolCfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close), nil
}

func newPostgresWithPool(pool db.Pool, closeFn func()) *PostgresStore {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.InitialBackoff = 200 * time.Millisecond
	retry.OnRetry = resilience.RetryLogger("postgres", "insert record")
	return &PostgresStore{pool: pool, closeFn: closeFn, retry: retry}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_log (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	question   TEXT NOT NULL,
	sql_text   TEXT,
	error      TEXT,
	row_count  BIGINT NOT NULL DEFAULT 0,
	model      TEXT NOT NULL,
	tier       TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	success    BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_ts ON query_log(ts);
CREATE INDEX IF NOT EXISTS idx_query_log_tier ON query_log(tier);
CREATE INDEX IF NOT EXISTS idx_query_log_success ON query_log(success);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Record inserts one interaction log row. Transient connection failures
// are retried so a blip in the warehouse never loses a log entry.
func (s *PostgresStore) Record(ctx context.Context, rec model.QueryRecord) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO query_log (id, ts, question, sql_text, error, row_count, model, tier, attempts, latency_ms, success)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rec.ID, rec.Timestamp.UTC(), rec.Question, rec.SQL, rec.Error,
			rec.RowCount, rec.Model, rec.Tier, rec.Attempts, rec.LatencyMs, rec.Success,
		)
		if err == nil {
			return nil
		}
		if resilience.IsTransient(err) {
			return resilience.NewTransientError(err)
		}
		return eris.Wrap(err, "postgres: insert record")
	})
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.QueryRecord, error) {
	query := `SELECT id, ts, question, sql_text, error, row_count, model, tier, attempts, latency_ms, success
	          FROM query_log WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, filter.Tier)
		argIdx++
	}
	if filter.Model != "" {
		query += fmt.Sprintf(` AND model = $%d`, argIdx)
		args = append(args, filter.Model)
		argIdx++
	}
	if filter.OnlyFailures {
		query += ` AND success = false`
	}
	query += ` ORDER BY ts DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.QueryRecord
	for rows.Next() {
		var rec model.QueryRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Question, &rec.SQL, &rec.Error,
			&rec.RowCount, &rec.Model, &rec.Tier, &rec.Attempts, &rec.LatencyMs, &rec.Success); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		zap.L().Warn("record listing terminated early", zap.Error(err))
		return nil, eris.Wrap(err, "postgres: list records iterate")
	}
	return recs, nil
}
