package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sqlpilot/internal/executor"
	"github.com/sells-group/sqlpilot/internal/model"
)

// --- stubs ---

type stubCatalog struct {
	snap  *model.SchemaSnapshot
	err   error
	calls int
}

func (s *stubCatalog) Snapshot(ctx context.Context) (*model.SchemaSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

type completerCall struct {
	modelID string
	system  string
	user    string
}

type stubCompleter struct {
	responses []string // returned in order; last one repeats
	err       error
	calls     []completerCall
}

func (s *stubCompleter) Complete(ctx context.Context, modelID, system, user string) (*Completion, error) {
	s.calls = append(s.calls, completerCall{modelID: modelID, system: system, user: user})
	if s.err != nil {
		return nil, &CompletionServiceError{Err: s.err}
	}
	idx := len(s.calls) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return &Completion{Text: s.responses[idx], Model: modelID, LatencyMs: 5}, nil
}

type stubExecutor struct {
	fn   func(sql string) (*model.ExecutionOutcome, error)
	sqls []string
}

func (s *stubExecutor) Execute(ctx context.Context, sql string) (*model.ExecutionOutcome, error) {
	s.sqls = append(s.sqls, sql)
	return s.fn(sql)
}

type stubRecorder struct {
	recs []model.QueryRecord
}

func (s *stubRecorder) Record(ctx context.Context, rec model.QueryRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

func testOrchestrator(cat *stubCatalog, comp *stubCompleter, exec *stubExecutor, rec *stubRecorder) *Orchestrator {
	router, err := NewRouter("model-a", "model-b", "model-c")
	if err != nil {
		panic(err)
	}
	cfg := Config{
		Catalog:     cat,
		Classifier:  NewClassifier(DefaultKeywords()),
		Router:      router,
		Completer:   comp,
		Executor:    exec,
		Rules:       DefaultRules(),
		MaxAttempts: 3,
	}
	if rec != nil {
		cfg.Recorder = rec
	}
	return New(cfg)
}

func fenced(sql string) string {
	return "```sql\n" + sql + "\n```"
}

// --- tests ---

func TestRun_FirstAttemptSuccess(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT title FROM film")}}
	exec := &stubExecutor{fn: func(sql string) (*model.ExecutionOutcome, error) {
		return &model.ExecutionOutcome{Columns: []string{"title"}, Rows: [][]any{{"ACADEMY DINOSAUR"}}, RowCount: 1}, nil
	}}
	rec := &stubRecorder{}

	result, err := testOrchestrator(cat, comp, exec, rec).Run(context.Background(), "show all film titles")
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, model.TierSimple, result.Tier)
	assert.Equal(t, "model-a", result.Model)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, int64(1), result.Outcome.RowCount)

	// One log record per completed cycle.
	require.Len(t, rec.recs, 1)
	assert.True(t, rec.recs[0].Success)
	assert.Equal(t, "SELECT title FROM film", rec.recs[0].SQL)
	assert.Equal(t, 1, rec.recs[0].Attempts)
}

func TestRun_UnparsableCompletionsExhaustAllAttempts(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{"I refuse to write SQL."}}
	exec := &stubExecutor{fn: func(sql string) (*model.ExecutionOutcome, error) {
		t.Fatal("executor must not run without extracted SQL")
		return nil, nil
	}}
	rec := &stubRecorder{}

	result, err := testOrchestrator(cat, comp, exec, rec).Run(context.Background(), "show all film titles")
	require.Error(t, err)

	var ree *RetryExhaustedError
	require.ErrorAs(t, err, &ree)
	assert.Equal(t, 3, ree.Attempts)
	assert.Contains(t, ree.LastErr, "no fenced sql block")

	// Exactly max_attempts completions, never fewer or more.
	assert.Len(t, comp.calls, 3)
	assert.Len(t, result.Attempts, 3)
	assert.Empty(t, exec.sqls)

	require.Len(t, rec.recs, 1)
	assert.False(t, rec.recs[0].Success)
}

func TestRun_ErrorFeedbackReachesNextPrompt(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{
		fenced("SELECT titel FROM film"),
		fenced("SELECT title FROM film"),
	}}
	exec := &stubExecutor{fn: func(sql string) (*model.ExecutionOutcome, error) {
		if sql == "SELECT titel FROM film" {
			return nil, &executor.StatementError{Message: `column "titel" does not exist`}
		}
		return &model.ExecutionOutcome{RowCount: 2}, nil
	}}

	result, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "show all film titles")
	require.NoError(t, err)

	assert.True(t, result.Success())
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, 1, result.Attempts[0].Index)
	assert.Equal(t, 2, result.Attempts[1].Index)

	// Attempt 2's prompt carries attempt 1's SQL and error verbatim.
	require.Len(t, comp.calls, 2)
	assert.NotContains(t, comp.calls[0].user, "PREVIOUS ATTEMPT")
	assert.Contains(t, comp.calls[1].user, "SELECT titel FROM film")
	assert.Contains(t, comp.calls[1].user, `column "titel" does not exist`)
}

func TestRun_HardQuestionRoutesToHardModel(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT 1")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) {
		return &model.ExecutionOutcome{RowCount: 0}, nil
	}}

	result, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "rank customers by total payments with a CTE")
	require.NoError(t, err)

	assert.Equal(t, model.TierHard, result.Tier)
	assert.Equal(t, "model-c", result.Model)
	require.Len(t, comp.calls, 1)
	assert.Equal(t, "model-c", comp.calls[0].modelID)
}

func TestRun_SanitizeRulesAppliedBeforeExecution(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT EXTRACT(YEAR FROM rental_year) AS yr FROM rental")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) {
		return &model.ExecutionOutcome{RowCount: 0}, nil
	}}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "show rental years")
	require.NoError(t, err)

	require.Len(t, exec.sqls, 1)
	assert.Equal(t, "SELECT rental_year AS rental_year FROM rental", exec.sqls[0])
}

func TestRun_CatalogFailureIsFatalBeforeAnyAttempt(t *testing.T) {
	cat := &stubCatalog{err: errors.New("connection refused")}
	comp := &stubCompleter{responses: []string{fenced("SELECT 1")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "show all film titles")
	require.Error(t, err)
	assert.Empty(t, comp.calls)
	assert.Empty(t, exec.sqls)
}

func TestRun_CompletionServiceFailureIsFatal(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{err: errors.New("api timeout")}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}
	rec := &stubRecorder{}

	result, err := testOrchestrator(cat, comp, exec, rec).Run(context.Background(), "show all film titles")
	require.Error(t, err)

	var cse *CompletionServiceError
	require.ErrorAs(t, err, &cse)

	// Not retried: a single call, no attempts consumed beyond it.
	assert.Len(t, comp.calls, 1)
	assert.False(t, result.Success())
	require.Len(t, rec.recs, 1)
	assert.False(t, rec.recs[0].Success)
}

func TestRun_ConnectivityFailureShortCircuits(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT 1")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) {
		return nil, errors.New("executor: begin transaction: connection reset")
	}}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "show all film titles")
	require.Error(t, err)

	var ree *RetryExhaustedError
	assert.False(t, errors.As(err, &ree))
	// Fatal: no second completion is attempted.
	assert.Len(t, comp.calls, 1)
}

func TestRun_InvalidQuestionRejectedBeforeCatalog(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT 1")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "12345")
	require.Error(t, err)
	assert.Zero(t, cat.calls)
	assert.Empty(t, comp.calls)
}

func TestRun_CancellationAbortsBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{fenced("SELECT 1")}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(ctx, "show all film titles")
	require.Error(t, err)
	assert.Empty(t, comp.calls)
}

func TestRun_CancellationDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{"no sql here"}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}

	orch := testOrchestrator(cat, comp, exec, nil)
	orch.cfg.RetryBackoff = 500 * time.Millisecond

	// Cancel while the pre-retry backoff is sleeping, after attempt 1 has
	// already failed extraction.
	time.AfterFunc(20*time.Millisecond, cancel)

	result, err := orch.Run(ctx, "show all film titles")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The abort is clean: no second completion is requested.
	assert.Nil(t, result)
	assert.Len(t, comp.calls, 1)
}

func TestRun_SameSnapshotForWholeCycle(t *testing.T) {
	cat := &stubCatalog{snap: promptSnapshot()}
	comp := &stubCompleter{responses: []string{"no sql here"}}
	exec := &stubExecutor{fn: func(string) (*model.ExecutionOutcome, error) { return nil, nil }}

	_, err := testOrchestrator(cat, comp, exec, nil).Run(context.Background(), "show all film titles")
	require.Error(t, err)

	// The catalog is consulted once per cycle; the snapshot never drifts
	// between attempts.
	assert.Equal(t, 1, cat.calls)
	require.Len(t, comp.calls, 3)
	assert.Equal(t, comp.calls[0].system, comp.calls[1].system)
	assert.Equal(t, comp.calls[1].system, comp.calls[2].system)
}
