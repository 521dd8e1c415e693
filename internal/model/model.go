// Package model describes declared data models: an ordered list of field
// descriptors plus declaration-time configuration (temporal strategy,
// soft delete, multi tenancy). The extractor turns a Definition into the
// core.TableDefinition shape shared with the schema-sync pipeline.
package model

import (
	"fmt"
	"strings"
)

// Strategy selects the record-versioning discipline for a model. It is a
// declaration-time choice; changing it once a table holds data is a manual,
// operator-driven migration and is deliberately not automated here.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyCopyOnChange Strategy = "copy_on_change"
	StrategySCD2         Strategy = "scd2"
)

// Valid reports whether s is one of the three supported strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyNone, StrategyCopyOnChange, StrategySCD2:
		return true
	}
	return false
}

// FieldType classifies a declared field. The mapping to column types lives
// in mapping.go.
type FieldType string

const (
	FieldUUID      FieldType = "uuid"
	FieldString    FieldType = "string"
	FieldText      FieldType = "text"
	FieldInt       FieldType = "int"
	FieldBigInt    FieldType = "bigint"
	FieldBool      FieldType = "bool"
	FieldFloat     FieldType = "float"
	FieldTime      FieldType = "time"
	FieldDate      FieldType = "date"
	FieldDecimal   FieldType = "decimal"
	FieldJSON      FieldType = "json"
	FieldTextArray FieldType = "text_array"
)

// Field is one statically-declared field descriptor. It carries everything
// the extractor and the runtime read/write path need: resolved type,
// constraints, and index intent.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool

	// Default is a SQL default expression ("'pending'", "0", "NOW()").
	Default string

	// MaxLength bounds VARCHAR fields; zero means the 255 default.
	MaxLength int

	// Unique adds a uniqueness constraint (implies an index).
	Unique bool
	// Index requests a plain btree index on this field.
	Index bool
	// IndexWhere makes the requested index partial.
	IndexWhere string

	// ForeignKey references "table.column"; OnDelete is its referential action.
	ForeignKey string
	OnDelete   string

	// Check holds an inline CHECK expression.
	Check string

	// Precision and Scale apply to decimal fields.
	Precision int
	Scale     int

	// TypeOverride is a raw dialect type that always wins over Type.
	TypeOverride string
}

// Definition is the immutable per-model configuration. Build it once at
// registration time and never mutate it afterwards; every component that
// needs model metadata receives it by value or pointer-to-const convention.
type Definition struct {
	Name   string
	Table  string
	Schema string

	Strategy    Strategy
	SoftDelete  bool
	MultiTenant bool

	// TenantField is the tenant column name; empty means "tenant_id".
	TenantField string

	Fields []Field
}

// Reserved column names injected by the extractor. A declared field may not
// shadow any of these.
var reservedColumns = []string{
	"id", "created_at", "updated_at", "created_by", "updated_by",
	"deleted_at", "deleted_by",
}

// scd2Columns are additionally reserved when the scd2 strategy is selected.
var scd2Columns = []string{"version", "valid_from", "valid_to"}

// TenantColumn returns the effective tenant column name.
func (d *Definition) TenantColumn() string {
	if d.TenantField == "" {
		return "tenant_id"
	}
	return d.TenantField
}

// TableSchema returns the effective schema namespace, defaulting to public.
func (d *Definition) TableSchema() string {
	if d.Schema == "" {
		return "public"
	}
	return d.Schema
}

// AuditTableName returns the auxiliary audit table name used by the
// copy_on_change strategy.
func (d *Definition) AuditTableName() string {
	return d.Table + "_audit"
}

// FindField looks up a declared field by name.
func (d *Definition) FindField(name string) *Field {
	for i := range d.Fields {
		if strings.EqualFold(d.Fields[i].Name, name) {
			return &d.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the declared field names in declaration order.
func (d *Definition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i := range d.Fields {
		names[i] = d.Fields[i].Name
	}
	return names
}

// Validate checks the declaration for configuration errors. It runs before
// any SQL is issued; a failing model never reaches the database.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ConfigError{Model: d.Name, Reason: "model name is required"}
	}
	if strings.TrimSpace(d.Table) == "" {
		return &ConfigError{Model: d.Name, Reason: "table name is required"}
	}
	if !d.Strategy.Valid() {
		return &ConfigError{Model: d.Name, Reason: fmt.Sprintf("unknown temporal strategy %q", d.Strategy)}
	}

	seen := make(map[string]struct{}, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			return &ConfigError{Model: d.Name, Reason: "field with empty name"}
		}
		if _, dup := seen[name]; dup {
			return &ConfigError{Model: d.Name, Field: f.Name, Reason: "duplicate field name"}
		}
		seen[name] = struct{}{}

		for _, r := range reservedColumns {
			if name == r {
				return &ConfigError{Model: d.Name, Field: f.Name,
					Reason: fmt.Sprintf("field shadows injected column %q", r)}
			}
		}
		if d.Strategy == StrategySCD2 {
			for _, r := range scd2Columns {
				if name == r {
					return &ConfigError{Model: d.Name, Field: f.Name,
						Reason: fmt.Sprintf("field collides with scd2 column %q", r)}
				}
			}
		}
		if d.MultiTenant && name == strings.ToLower(d.TenantColumn()) {
			return &ConfigError{Model: d.Name, Field: f.Name,
				Reason: fmt.Sprintf("field shadows tenant column %q", d.TenantColumn())}
		}

		if f.TypeOverride == "" && !knownFieldType(f.Type) {
			return &ConfigError{Model: d.Name, Field: f.Name,
				Reason: fmt.Sprintf("unknown field type %q", f.Type)}
		}
		if f.ForeignKey != "" {
			if _, _, ok := parseReferenceString(f.ForeignKey); !ok {
				return &ConfigError{Model: d.Name, Field: f.Name,
					Reason: fmt.Sprintf("foreign key %q is not in table.column form", f.ForeignKey)}
			}
		}
	}

	if d.MultiTenant && strings.TrimSpace(d.TenantColumn()) == "" {
		return &ConfigError{Model: d.Name, Reason: "multi-tenant model without a resolvable tenant column"}
	}

	return nil
}

func knownFieldType(t FieldType) bool {
	switch t {
	case FieldUUID, FieldString, FieldText, FieldInt, FieldBigInt, FieldBool,
		FieldFloat, FieldTime, FieldDate, FieldDecimal, FieldJSON, FieldTextArray:
		return true
	}
	return false
}

func parseReferenceString(ref string) (table, column string, ok bool) {
	ref = strings.TrimSpace(ref)
	dot := strings.LastIndex(ref, ".")
	if dot <= 0 || dot >= len(ref)-1 {
		return "", "", false
	}
	return ref[:dot], ref[dot+1:], true
}
