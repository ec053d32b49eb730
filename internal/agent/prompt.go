package agent

import (
	"fmt"
	"strings"

	"github.com/sells-group/sqlpilot/internal/model"
)

const fence = "```"

const systemPromptTemplate = `You are an autonomous PostgreSQL SQL-generation agent.

RULES:
- Return exactly ONE SQL statement inside a single %[1]ssql fenced code block.
- Use ONLY tables and columns that appear in the schema below.
- Use JOINs based on the foreign key relationships provided.
- Use CTEs and window functions for advanced queries.
- If a previous attempt failed, FIX the previous SQL using the error message.
- No explanations outside the fenced block.

SCHEMA:
%[2]s

%[3]s`

const previousAttemptTemplate = `PREVIOUS ATTEMPT (failed):
%[1]ssql
%[2]s
%[1]s

ERROR:
%[3]s

Fix the SQL above so it executes successfully.

`

// BuildSystemPrompt renders the schema-grounded system prompt. It depends
// only on the snapshot, so it is identical across all attempts of a cycle
// and is served from the prompt cache after the first one.
func BuildSystemPrompt(snap *model.SchemaSnapshot) string {
	return fmt.Sprintf(systemPromptTemplate, fence, snap.RenderTables(), snap.RenderForeignKeys())
}

// BuildUserPrompt renders the per-attempt prompt: the question, preceded by
// a delimited block with the previous attempt's SQL and error when present.
// Pure function of its input.
func BuildUserPrompt(pctx model.PromptContext) string {
	var b strings.Builder
	if pctx.PrevError != "" {
		prevSQL := pctx.PrevSQL
		if prevSQL == "" {
			prevSQL = "-- no SQL was produced"
		}
		fmt.Fprintf(&b, previousAttemptTemplate, fence, prevSQL, pctx.PrevError)
	}
	b.WriteString("USER QUESTION:\n")
	b.WriteString(pctx.Question)
	b.WriteString(fmt.Sprintf("\n\nReturn only ONE SQL query inside %[1]ssql %[1]s fences.", fence))
	return b.String()
}
