// Package core contains the single source of truth for the database schema.
// It provides the structured representation of tables, columns, and indexes
// shared by the introspection, diffing, and generation pipeline, plus the
// SchemaChange type that flows through it.
package core

import (
	"fmt"
	"strings"
)

// ColumnType is the engine-agnostic classification of a column used for
// schema comparison. The native type string carries the exact dialect
// spelling; ColumnType is what the differ reasons about.
type ColumnType string

const (
	ColumnUUID        ColumnType = "uuid"
	ColumnString      ColumnType = "string"
	ColumnText        ColumnType = "text"
	ColumnInteger     ColumnType = "integer"
	ColumnBigInt      ColumnType = "bigint"
	ColumnBoolean     ColumnType = "boolean"
	ColumnTimestamp   ColumnType = "timestamp"
	ColumnTimestampTZ ColumnType = "timestamptz"
	ColumnJSONB       ColumnType = "jsonb"
	ColumnArray       ColumnType = "array"
	ColumnDecimal     ColumnType = "decimal"
)

// ColumnDefinition describes one column of a table, either as declared by a
// model or as read back from the live catalog.
type ColumnDefinition struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`

	// Default is the default expression, SQL-rendered ("'pending'", "NOW()").
	// Nil means no default.
	Default *string `json:"default,omitempty"`

	// MaxLength applies to VARCHAR columns; zero means unbounded.
	MaxLength int `json:"maxLength,omitempty"`
	// Precision and Scale apply to NUMERIC columns.
	Precision int `json:"precision,omitempty"`
	Scale     int `json:"scale,omitempty"`

	PrimaryKey bool `json:"primaryKey,omitempty"`

	// ForeignKey is an inline reference in "table.column" format.
	ForeignKey string `json:"foreignKey,omitempty"`
	// OnDelete is the referential action for the inline foreign key.
	OnDelete string `json:"onDelete,omitempty"`

	// Check is an inline CHECK expression, without the keyword. It renders
	// when the column is created (CREATE TABLE or ADD COLUMN); the
	// introspector does not read check constraints back, so drift on an
	// existing column is not reconciled.
	Check string `json:"check,omitempty"`

	// NativeType is the dialect type spelling ("VARCHAR(255)", "JSONB").
	// After normalization it is round-trip derivable from Type.
	NativeType string `json:"nativeType"`
}

// IndexDefinition describes one index of a table. Name is unique per table.
type IndexDefinition struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
	// Method is the index access method; empty means "btree".
	Method string `json:"method,omitempty"`
	// Where holds the predicate of a partial index, without the WHERE keyword.
	Where string `json:"where,omitempty"`
}

// TableDefinition is the structured form of one table: the unit the differ
// compares. Column names are unique within a table.
type TableDefinition struct {
	Name    string             `json:"name"`
	Schema  string             `json:"schema"`
	Columns []ColumnDefinition `json:"columns"`
	Indexes []IndexDefinition  `json:"indexes,omitempty"`
}

// FindColumn looks up a column by name, case-insensitively.
func (t *TableDefinition) FindColumn(name string) *ColumnDefinition {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// FindIndex looks up an index by name, case-insensitively.
func (t *TableDefinition) FindIndex(name string) *IndexDefinition {
	for i := range t.Indexes {
		if strings.EqualFold(t.Indexes[i].Name, name) {
			return &t.Indexes[i]
		}
	}
	return nil
}

// QualifiedName returns the schema-qualified table name, unquoted.
func (t *TableDefinition) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// String returns a short human-readable summary of the table.
func (t *TableDefinition) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d indexes)", t.QualifiedName(), len(t.Columns), len(t.Indexes))
}

// EffectiveMethod returns the index access method, defaulting to btree.
func (i *IndexDefinition) EffectiveMethod() string {
	if i.Method == "" {
		return "btree"
	}
	return strings.ToLower(i.Method)
}

// HasDefault reports whether the column carries a usable default expression.
func (c *ColumnDefinition) HasDefault() bool {
	return c.Default != nil && strings.TrimSpace(*c.Default) != ""
}

// DefaultString returns the default expression or "" when absent.
func (c *ColumnDefinition) DefaultString() string {
	if c.Default == nil {
		return ""
	}
	return *c.Default
}

// ParseReference splits a "table.column" foreign-key reference into its two
// parts. It returns ("", "", false) if the format is invalid.
func ParseReference(ref string) (table, column string, ok bool) {
	ref = strings.TrimSpace(ref)
	dot := strings.LastIndex(ref, ".")
	if dot <= 0 || dot >= len(ref)-1 {
		return "", "", false
	}
	return ref[:dot], ref[dot+1:], true
}

// Def is a convenience constructor for default expressions.
func Def(expr string) *string { return &expr }
