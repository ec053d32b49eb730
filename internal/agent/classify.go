// Package agent implements the self-correcting SQL generation pipeline:
// complexity classification, model routing, prompt assembly, SQL
// extraction and the bounded retry loop around execution.
package agent

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sqlpilot/internal/model"
)

// KeywordTable holds the per-tier keyword sets driving classification.
// Tables are configuration, not control flow: tuning them never touches
// the classifier itself.
type KeywordTable struct {
	Simple []string `yaml:"simple"`
	Medium []string `yaml:"medium"`
	Hard   []string `yaml:"hard"`
}

// DefaultKeywords returns the built-in keyword tables. Bare "with" is
// deliberately absent from the hard set: it matches prose far more often
// than CTEs, so CTE intent is detected via "cte" and "with recursive".
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		Simple: []string{"list", "show", "find all", "count", "simple", "basic"},
		Medium: []string{"join", "group by", "sum", "average", "per", "between", "filter on", "nested"},
		Hard:   []string{"rank", "window", "partition", "recursive", "cte", "with recursive", "top", "advanced", "correlated"},
	}
}

// LoadKeywords reads keyword tables from a YAML file. Missing tiers fall
// back to the defaults.
func LoadKeywords(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, eris.Wrapf(err, "agent: read keywords file %s", path)
	}
	table := DefaultKeywords()
	if err := yaml.Unmarshal(data, &table); err != nil {
		return KeywordTable{}, eris.Wrapf(err, "agent: parse keywords file %s", path)
	}
	return table, nil
}

// Classifier scores a question's textual difficulty into a tier. It is a
// pure function of the keyword tables and never fails.
type Classifier struct {
	hard   []*regexp.Regexp
	medium []*regexp.Regexp
	simple []*regexp.Regexp
}

// NewClassifier compiles the keyword tables into word-boundary matchers.
func NewClassifier(table KeywordTable) *Classifier {
	return &Classifier{
		hard:   compileKeywords(table.Hard),
		medium: compileKeywords(table.Medium),
		simple: compileKeywords(table.Simple),
	}
}

func compileKeywords(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return out
}

// Classify matches the question against each tier's keywords,
// case-insensitively. When multiple tiers match, the highest wins; with no
// match at all the question defaults to Simple.
func (c *Classifier) Classify(question string) model.Tier {
	q := strings.ToLower(question)

	if matchAny(c.hard, q) {
		return model.TierHard
	}
	if matchAny(c.medium, q) {
		return model.TierMedium
	}
	if matchAny(c.simple, q) {
		return model.TierSimple
	}
	return model.TierSimple
}

func matchAny(patterns []*regexp.Regexp, q string) bool {
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
