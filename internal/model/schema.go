package model

import (
	"fmt"
	"strings"
	"time"
)

// Column is a single table column with its declared type.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Table is a user table with its columns in ordinal position order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ForeignKey is one edge of the schema graph: source column references
// target column.
type ForeignKey struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// SchemaSnapshot is an immutable capture of the database structure used to
// ground one question cycle. It is never mutated in place; a new snapshot
// is produced only by an explicit discovery call.
type SchemaSnapshot struct {
	Tables      []Table      `json:"tables"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// RenderTables formats the table/column enumeration for prompt embedding.
func (s *SchemaSnapshot) RenderTables() string {
	var b strings.Builder
	for _, t := range s.Tables {
		b.WriteString("TABLE: ")
		b.WriteString(t.Name)
		b.WriteString("\nCOLUMNS: ")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%s)", c.Name, c.DataType)
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderForeignKeys formats the FK edges for prompt embedding.
func (s *SchemaSnapshot) RenderForeignKeys() string {
	if len(s.ForeignKeys) == 0 {
		return "Relationships / Foreign Keys: none"
	}
	var b strings.Builder
	b.WriteString("Relationships / Foreign Keys:\n")
	for _, fk := range s.ForeignKeys {
		fmt.Fprintf(&b, "- %s.%s -> %s.%s\n", fk.SourceTable, fk.SourceColumn, fk.TargetTable, fk.TargetColumn)
	}
	return strings.TrimRight(b.String(), "\n")
}

// HasColumn reports whether the snapshot contains the given table.column.
func (s *SchemaSnapshot) HasColumn(table, column string) bool {
	for _, t := range s.Tables {
		if t.Name != table {
			continue
		}
		for _, c := range t.Columns {
			if c.Name == column {
				return true
			}
		}
	}
	return false
}
