package agent

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/sqlpilot/pkg/anthropic"
)

// Completion is one model response with timing metadata.
type Completion struct {
	Text      string
	Model     string
	LatencyMs int64
	Usage     anthropic.TokenUsage
}

// Completer is the external completion service collaborator. It performs
// no retries of its own; a failure is fatal for the current attempt.
type Completer interface {
	Complete(ctx context.Context, modelID, system, user string) (*Completion, error)
}

// anthropicCompleter calls the Anthropic API with request pacing.
type anthropicCompleter struct {
	client    anthropic.Client
	limiter   *rate.Limiter
	maxTokens int64
}

// NewCompleter wraps an Anthropic client as a Completer. requestsPerSecond
// <= 0 disables pacing.
func NewCompleter(client anthropic.Client, maxTokens int64, requestsPerSecond float64) Completer {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicCompleter{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		maxTokens: maxTokens,
	}
}

func (c *anthropicCompleter) Complete(ctx context.Context, modelID, system, user string) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &CompletionServiceError{Err: err}
	}

	start := time.Now()
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &CompletionServiceError{Err: err}
	}

	resp.Usage.LogCost(modelID, "generate")

	return &Completion{
		Text:      resp.Text(),
		Model:     resp.Model,
		LatencyMs: latency,
		Usage:     resp.Usage,
	}, nil
}
