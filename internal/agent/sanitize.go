package agent

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule is one pure text transformation applied to extracted SQL. Rules
// must be idempotent: applying a rule to already-corrected text is a no-op.
type Rule struct {
	Name    string `yaml:"name"`
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

// RuleSet applies rules in a fixed order. The rule list is configuration;
// the shipped defaults are the two documented fixes and nothing more.
type RuleSet struct {
	rules []Rule
}

// DefaultRules returns the built-in sanitization rules.
func DefaultRules() RuleSet {
	rs, err := NewRuleSet([]Rule{
		// Unwrap date-part extraction the model tends to apply to columns
		// that already hold the year.
		{Name: "date_part_unwrap", Match: `(?i)EXTRACT\(YEAR FROM (\w+)\)`, Replace: "$1"},
		// The model invents a "yr" alias for the rental_year column.
		{Name: "rental_year_alias", Match: `\byr\b`, Replace: "rental_year"},
	})
	if err != nil {
		panic(err) // built-in patterns are compile-tested
	}
	return rs
}

// NewRuleSet compiles rules, preserving order.
func NewRuleSet(rules []Rule) (RuleSet, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return RuleSet{}, eris.Wrapf(err, "agent: compile rule %q", r.Name)
		}
		r.re = re
		compiled = append(compiled, r)
	}
	return RuleSet{rules: compiled}, nil
}

// LoadRules reads a rule list from a YAML file.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, eris.Wrapf(err, "agent: read rules file %s", path)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, eris.Wrapf(err, "agent: parse rules file %s", path)
	}
	return NewRuleSet(rules)
}

// Apply runs every rule in order and returns the corrected SQL. Never
// executes the SQL and never consults the database.
func (rs RuleSet) Apply(sql string) string {
	for _, r := range rs.rules {
		sql = r.re.ReplaceAllString(sql, r.Replace)
	}
	return sql
}

// Len returns the number of rules in the set.
func (rs RuleSet) Len() int {
	return len(rs.rules)
}
