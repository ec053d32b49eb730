package model

import "time"

// PromptContext is the immutable input for one generation attempt. The
// previous-attempt fields are empty for the first attempt and carry exactly
// the prior attempt's SQL and error afterward.
type PromptContext struct {
	Snapshot  *SchemaSnapshot
	Question  string
	PrevSQL   string
	PrevError string
}

// ExecutionOutcome is the result of executing one SQL statement. For
// statements producing a result set, Columns and Rows are populated and
// RowCount is the number of rows returned. For purely mutating statements,
// Mutation is true and RowCount is the affected-row count.
type ExecutionOutcome struct {
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	RowCount int64    `json:"row_count"`
	Mutation bool     `json:"mutation"`
}

// Attempt records one full prompt→completion→extraction→execution cycle.
// SQL is empty when extraction failed; Err is empty on success.
type Attempt struct {
	Index     int    `json:"index"`
	SQL       string `json:"sql,omitempty"`
	Err       string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// PipelineResult is the terminal value of one question cycle: either a
// successful outcome or an exhausted-retries failure carrying the last
// error message.
type PipelineResult struct {
	Question string            `json:"question"`
	Tier     Tier              `json:"tier"`
	Model    string            `json:"model"`
	Attempts []Attempt         `json:"attempts"`
	Outcome  *ExecutionOutcome `json:"outcome,omitempty"`
	LastErr  string            `json:"last_error,omitempty"`
}

// Success reports whether the cycle ended with an executed statement.
func (r *PipelineResult) Success() bool {
	return r.Outcome != nil
}

// LastSQL returns the SQL of the final attempt, if any.
func (r *PipelineResult) LastSQL() string {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].SQL != "" {
			return r.Attempts[i].SQL
		}
	}
	return ""
}

// QueryRecord is the append-only interaction log entry written once per
// completed question cycle, including failed ones.
type QueryRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Error     string    `json:"error"`
	RowCount  int64     `json:"row_count"`
	Model     string    `json:"model"`
	Tier      string    `json:"tier"`
	Attempts  int       `json:"attempts"`
	LatencyMs int64     `json:"latency_ms"`
	Success   bool      `json:"success"`
}
