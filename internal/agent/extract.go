package agent

import (
	"regexp"
	"strings"
)

// fencedSQLRe matches a ```sql fenced block. The tag tolerates spacing and
// casing variants some models emit ("``` sql", "``` SQL"), and the
// terminator is any whitespace so single-line fences parse too.
var fencedSQLRe = regexp.MustCompile("(?is)```\\s*sql\\s(.*?)```")

// sqlLabelRe strips a bare leading "sql" label line some models leave
// inside the fence.
var sqlLabelRe = regexp.MustCompile(`(?im)^\s*sql\s*\n`)

// ExtractSQL parses a model completion for exactly one fenced SQL block
// and returns its trimmed content. Zero blocks, more than one block, or
// more than one statement inside the block is an ExtractionError: an
// ambiguous completion is never silently narrowed to a guess.
func ExtractSQL(completion string) (string, error) {
	matches := fencedSQLRe.FindAllStringSubmatch(completion, -1)
	switch len(matches) {
	case 0:
		return "", &ExtractionError{Reason: "no fenced sql block in completion"}
	case 1:
	default:
		return "", &ExtractionError{Reason: "multiple fenced sql blocks in completion"}
	}

	sql := strings.TrimSpace(matches[0][1])
	sql = sqlLabelRe.ReplaceAllString(sql, "")
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", &ExtractionError{Reason: "fenced sql block is empty"}
	}
	if n := countStatements(sql); n > 1 {
		return "", &ExtractionError{Reason: "multiple sql statements in one block"}
	}
	return sql, nil
}

// countStatements counts semicolon-separated statements, ignoring
// semicolons inside single-quoted strings and line comments. A single
// trailing semicolon does not start a new statement.
func countStatements(sql string) int {
	count := 0
	inString := false
	inComment := false
	pending := false // saw content since the last terminator

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
			}
		case inString:
			if ch == '\'' {
				inString = false
			}
		case ch == '\'':
			inString = true
			pending = true
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			inComment = true
		case ch == ';':
			if pending {
				count++
				pending = false
			}
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			pending = true
		}
	}
	if pending {
		count++
	}
	return count
}
