package store

import (
	"context"

	"github.com/sells-group/sqlpilot/internal/model"
)

// RecordFilter specifies criteria for listing interaction log records.
type RecordFilter struct {
	Tier         string `json:"tier,omitempty"`
	Model        string `json:"model,omitempty"`
	OnlyFailures bool   `json:"only_failures,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the interaction log. The
// log is append-only; records are never updated after the write.
type Store interface {
	Record(ctx context.Context, rec model.QueryRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.QueryRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
