package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sqlpilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default log sink: the agent can run against a Postgres warehouse while
// keeping its own bookkeeping in a local file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_log (
	id         TEXT PRIMARY KEY,
	ts         DATETIME NOT NULL,
	question   TEXT NOT NULL,
	sql_text   TEXT,
	error      TEXT,
	row_count  INTEGER NOT NULL DEFAULT 0,
	model      TEXT NOT NULL,
	tier       TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	success    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_ts ON query_log(ts);
CREATE INDEX IF NOT EXISTS idx_query_log_tier ON query_log(tier);
CREATE INDEX IF NOT EXISTS idx_query_log_success ON query_log(success);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, rec model.QueryRecord) error {
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, ts, question, sql_text, error, row_count, model, tier, attempts, latency_ms, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC(), rec.Question, rec.SQL, rec.Error,
		rec.RowCount, rec.Model, rec.Tier, rec.Attempts, rec.LatencyMs, success,
	)
	return eris.Wrap(err, "sqlite: insert record")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.QueryRecord, error) {
	query := `SELECT id, ts, question, sql_text, error, row_count, model, tier, attempts, latency_ms, success
	          FROM query_log WHERE 1=1`
	var args []any

	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, filter.Tier)
	}
	if filter.Model != "" {
		query += ` AND model = ?`
		args = append(args, filter.Model)
	}
	if filter.OnlyFailures {
		query += ` AND success = 0`
	}
	query += ` ORDER BY ts DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []model.QueryRecord
	for rows.Next() {
		var rec model.QueryRecord
		var success int
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Question, &rec.SQL, &rec.Error,
			&rec.RowCount, &rec.Model, &rec.Tier, &rec.Attempts, &rec.LatencyMs, &success); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec.Success = success != 0
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}
