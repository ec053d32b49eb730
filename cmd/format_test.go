package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sqlpilot/internal/model"
)

func TestFormatResult_Success(t *testing.T) {
	r := &model.PipelineResult{
		Question: "list all films",
		Tier:     model.TierSimple,
		Model:    "model-a",
		Attempts: []model.Attempt{{Index: 1, SQL: "SELECT title FROM film"}},
		Outcome: &model.ExecutionOutcome{
			Columns:  []string{"title"},
			Rows:     [][]any{{"ACADEMY DINOSAUR"}, {nil}},
			RowCount: 2,
		},
	}

	var buf bytes.Buffer
	formatResult(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "tier=simple model=model-a attempts=1")
	assert.Contains(t, out, "SELECT title FROM film")
	assert.Contains(t, out, "ACADEMY DINOSAUR")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 row(s))")
}

func TestFormatResult_Mutation(t *testing.T) {
	r := &model.PipelineResult{
		Tier:     model.TierSimple,
		Model:    "model-a",
		Attempts: []model.Attempt{{Index: 1, SQL: "UPDATE film SET title = 'X'"}},
		Outcome:  &model.ExecutionOutcome{RowCount: 7, Mutation: true},
	}

	var buf bytes.Buffer
	formatResult(&buf, r)

	assert.Contains(t, buf.String(), "7 row(s) affected")
}

func TestFormatResult_Failure(t *testing.T) {
	r := &model.PipelineResult{
		Tier:  model.TierMedium,
		Model: "model-b",
		Attempts: []model.Attempt{
			{Index: 1, SQL: "SELECT titel FROM film", Err: `column "titel" does not exist`},
			{Index: 2, Err: "no fenced sql block"},
		},
		LastErr: "no fenced sql block",
	}

	var buf bytes.Buffer
	formatResult(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "failed: no fenced sql block")
	assert.Contains(t, out, `attempt 1: column "titel" does not exist`)
	assert.Contains(t, out, "attempt 2: no fenced sql block")
}

func TestFormatHistory(t *testing.T) {
	recs := []model.QueryRecord{
		{
			ID:        "0196c7d2-aaaa-bbbb-cccc-000000000001",
			Timestamp: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			Question:  "count rentals",
			Tier:      "simple",
			Attempts:  1,
			RowCount:  1,
			Success:   true,
		},
	}

	var buf bytes.Buffer
	formatHistory(&buf, recs)
	out := buf.String()

	assert.Contains(t, out, "0196c7d2")
	assert.NotContains(t, out, "0196c7d2-aaaa")
	assert.Contains(t, out, "count rentals")
	assert.Contains(t, out, "2026-03-14 09:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcd1234", truncateID("abcd1234-5678"))
	assert.Equal(t, "short", truncateID("short"))
}
