package agent

import (
	"errors"
	"fmt"

	"github.com/sells-group/sqlpilot/internal/executor"
)

// ExtractionError reports a completion with no single parsable SQL block.
// Retryable: it consumes one attempt and its message becomes the next
// attempt's error context.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "agent: extraction failed: " + e.Reason
}

// CompletionServiceError reports a failed model call (timeout, unreachable,
// API error). Fatal for the current question cycle; the orchestrator does
// not retry it.
type CompletionServiceError struct {
	Err error
}

func (e *CompletionServiceError) Error() string {
	return "agent: completion service: " + e.Err.Error()
}

func (e *CompletionServiceError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError reports that every attempt was consumed without a
// successful execution. LastErr is the message of the final failure.
type RetryExhaustedError struct {
	Attempts int
	LastErr  string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("agent: exhausted %d attempts, last error: %s", e.Attempts, e.LastErr)
}

// retryable reports whether a failure consumes an attempt and feeds the
// next prompt, as opposed to aborting the cycle.
func retryable(err error) bool {
	var xe *ExtractionError
	if errors.As(err, &xe) {
		return true
	}
	var se *executor.StatementError
	return errors.As(err, &se)
}
