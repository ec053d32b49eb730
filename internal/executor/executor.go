// Package executor runs sanitized SQL transactionally against the target
// database.
package executor

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sqlpilot/internal/db"
	"github.com/sells-group/sqlpilot/internal/model"
)

// StatementError reports SQL the database rejected. Message carries the
// database's error text verbatim: it is the feedback signal for the next
// generation attempt.
type StatementError struct {
	Message string
}

func (e *StatementError) Error() string {
	return "executor: statement failed: " + e.Message
}

// Executor executes one statement per call inside its own transaction.
// It never retries; retry is the orchestrator's responsibility.
type Executor struct {
	pool db.Pool
}

// New creates an Executor over the given pool.
func New(pool db.Pool) *Executor {
	return &Executor{pool: pool}
}

// resultSetRe matches statements that produce a result set.
var resultSetRe = regexp.MustCompile(`(?is)^\s*(select|with|values|show|explain|table)\b|\breturning\b`)

// Execute runs sql within a single transaction scoped to this call. On any
// database-reported error the transaction is rolled back before returning,
// so no partial effect is observable. A Begin failure is a connectivity
// problem and is returned as a plain (fatal) error; statement failures are
// returned as *StatementError.
func (e *Executor) Execute(ctx context.Context, sql string) (*model.ExecutionOutcome, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "executor: begin transaction")
	}
	defer tx.Rollback(ctx)

	if !resultSetRe.MatchString(sql) {
		tag, err := tx.Exec(ctx, sql)
		if err != nil {
			return nil, &StatementError{Message: err.Error()}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, &StatementError{Message: err.Error()}
		}
		return &model.ExecutionOutcome{
			RowCount: tag.RowsAffected(),
			Mutation: true,
		}, nil
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, &StatementError{Message: err.Error()}
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, &StatementError{Message: err.Error()}
		}
		data = append(data, vals)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &StatementError{Message: err.Error()}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StatementError{Message: err.Error()}
	}

	return &model.ExecutionOutcome{
		Columns:  columns,
		Rows:     data,
		RowCount: int64(len(data)),
	}, nil
}
