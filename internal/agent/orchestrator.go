package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sqlpilot/internal/model"
	"github.com/sells-group/sqlpilot/internal/resilience"
)

// Cataloger serves the immutable schema snapshot grounding a question
// cycle.
type Cataloger interface {
	Snapshot(ctx context.Context) (*model.SchemaSnapshot, error)
}

// Executor runs one SQL statement transactionally.
type Executor interface {
	Execute(ctx context.Context, sql string) (*model.ExecutionOutcome, error)
}

// Recorder is the append-only interaction log collaborator. It receives
// one fully-formed record per completed question cycle.
type Recorder interface {
	Record(ctx context.Context, rec model.QueryRecord) error
}

// Config wires the orchestrator's collaborators and knobs.
type Config struct {
	Catalog    Cataloger
	Classifier *Classifier
	Router     *Router
	Completer  Completer
	Executor   Executor
	Recorder   Recorder // optional

	Rules       RuleSet
	MaxAttempts int
	// RetryBackoff paces retry attempts; zero disables pacing.
	RetryBackoff time.Duration
}

// Orchestrator drives the attempt loop for one question at a time:
// classify once, route once, then prompt → complete → extract → execute,
// feeding each failure into the next attempt's prompt until success or
// the attempt limit is reached.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator. MaxAttempts defaults to 3.
func New(cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Orchestrator{cfg: cfg}
}

// Run executes one full question cycle. On success the returned result
// carries the execution outcome and the error is nil. When every attempt
// fails, the result carries the attempt history and the error is a
// *RetryExhaustedError with the last failure's message. Fatal failures
// (catalog, routing, completion service, connectivity, cancellation)
// abort the cycle immediately without consuming further attempts.
func (o *Orchestrator) Run(ctx context.Context, rawQuestion string) (*model.PipelineResult, error) {
	question, err := model.NewQuestion(rawQuestion)
	if err != nil {
		return nil, err
	}

	snapshot, err := o.cfg.Catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	tier := o.cfg.Classifier.Classify(question.Text)
	modelID, err := o.cfg.Router.Route(tier)
	if err != nil {
		return nil, err
	}

	zap.L().Info("question classified",
		zap.String("question", question.Text),
		zap.String("tier", tier.String()),
		zap.String("model", modelID),
	)

	result := &model.PipelineResult{
		Question: question.Text,
		Tier:     tier,
		Model:    modelID,
	}
	system := BuildSystemPrompt(snapshot)

	var (
		prevSQL      string
		prevError    string
		totalLatency int64
	)

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		// Cancellation is a clean abort between attempts.
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "agent: canceled")
		}
		if attempt > 1 && o.cfg.RetryBackoff > 0 {
			if err := o.pause(ctx, attempt); err != nil {
				return nil, eris.Wrap(err, "agent: canceled")
			}
		}

		pctx := model.PromptContext{
			Snapshot:  snapshot,
			Question:  question.Text,
			PrevSQL:   prevSQL,
			PrevError: prevError,
		}
		user := BuildUserPrompt(pctx)

		completion, err := o.cfg.Completer.Complete(ctx, modelID, system, user)
		if err != nil {
			result.LastErr = err.Error()
			o.record(ctx, result, totalLatency)
			return result, err
		}
		totalLatency += completion.LatencyMs

		att := model.Attempt{Index: attempt, LatencyMs: completion.LatencyMs}

		sql, err := ExtractSQL(completion.Text)
		if err == nil {
			sql = o.cfg.Rules.Apply(sql)
			att.SQL = sql

			var outcome *model.ExecutionOutcome
			outcome, err = o.cfg.Executor.Execute(ctx, sql)
			if err == nil {
				result.Attempts = append(result.Attempts, att)
				result.Outcome = outcome
				zap.L().Info("query executed",
					zap.Int("attempt", attempt),
					zap.Int64("rows", outcome.RowCount),
				)
				o.record(ctx, result, totalLatency)
				return result, nil
			}
		}

		if !retryable(err) {
			att.Err = err.Error()
			result.Attempts = append(result.Attempts, att)
			result.LastErr = err.Error()
			o.record(ctx, result, totalLatency)
			return result, err
		}

		att.Err = err.Error()
		result.Attempts = append(result.Attempts, att)
		prevSQL = att.SQL
		prevError = err.Error()

		zap.L().Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.cfg.MaxAttempts),
			zap.String("error", prevError),
		)
	}

	result.LastErr = prevError
	o.record(ctx, result, totalLatency)
	return result, &RetryExhaustedError{Attempts: o.cfg.MaxAttempts, LastErr: prevError}
}

// pause sleeps for the jittered backoff before a retry attempt. It returns
// the context error when cancellation interrupts the sleep, so the caller
// aborts instead of starting another attempt.
func (o *Orchestrator) pause(ctx context.Context, attempt int) error {
	delay := resilience.Backoff(attempt-2, resilience.RetryConfig{
		InitialBackoff: o.cfg.RetryBackoff,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	})
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// record writes the interaction log entry for a completed cycle. Log sink
// failures never fail the pipeline.
func (o *Orchestrator) record(ctx context.Context, result *model.PipelineResult, latencyMs int64) {
	if o.cfg.Recorder == nil {
		return
	}

	rec := model.QueryRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Question:  result.Question,
		SQL:       result.LastSQL(),
		Error:     result.LastErr,
		Model:     result.Model,
		Tier:      result.Tier.String(),
		Attempts:  len(result.Attempts),
		LatencyMs: latencyMs,
		Success:   result.Success(),
	}
	if result.Outcome != nil {
		rec.RowCount = result.Outcome.RowCount
	}

	if err := o.cfg.Recorder.Record(ctx, rec); err != nil {
		zap.L().Warn("failed to record interaction", zap.Error(err))
	}
}
