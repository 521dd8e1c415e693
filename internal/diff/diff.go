// Package diff compares a desired table definition against the live one and
// produces the ordered list of schema changes needed to reconcile them.
// Each change is tagged additive or destructive; the schema manager decides
// what actually gets applied.
package diff

import (
	"fmt"

	"tempora/internal/core"
	"tempora/internal/dialect/postgres"
)

// Differ computes schema changes between table definitions. Both sides are
// normalized before comparison so catalog spellings ("float8", parenthesized
// predicates) do not produce false drift.
type Differ struct {
	norm *postgres.Normalizer
}

// NewDiffer initializes a differ.
func NewDiffer() *Differ {
	return &Differ{norm: postgres.NewNormalizer()}
}

// Diff returns the changes that turn current into desired. A nil current
// means the table does not exist: one create-table change plus one
// add-index change per desired index.
//
// Changes of different kinds come back in a fixed order (table, columns,
// indexes) to satisfy referential dependencies; among changes of the same
// kind the order is unspecified.
func (d *Differ) Diff(desired, current *core.TableDefinition) ([]core.SchemaChange, error) {
	if desired == nil {
		return nil, fmt.Errorf("desired table definition is nil")
	}

	if current == nil {
		changes := []core.SchemaChange{{
			Kind:        core.CreateTable,
			Table:       desired.Name,
			Description: fmt.Sprintf("create table %s", desired.QualifiedName()),
			TableDef:    desired,
		}}
		for i := range desired.Indexes {
			idx := desired.Indexes[i]
			changes = append(changes, core.SchemaChange{
				Kind:        core.AddIndex,
				Table:       desired.Name,
				Description: fmt.Sprintf("add index %s", idx.Name),
				TableDef:    desired,
				Index:       &idx,
			})
		}
		return changes, nil
	}

	columnChanges, err := d.diffColumns(desired, current)
	if err != nil {
		return nil, err
	}

	changes := append(columnChanges, d.diffIndexes(desired, current)...)
	return changes, nil
}

func (d *Differ) diffColumns(desired, current *core.TableDefinition) ([]core.SchemaChange, error) {
	var adds, alters, drops []core.SchemaChange

	for i := range desired.Columns {
		want := desired.Columns[i]
		have := current.FindColumn(want.Name)

		if have == nil {
			adds = append(adds, core.SchemaChange{
				Kind:        core.AddColumn,
				Table:       desired.Name,
				Description: fmt.Sprintf("add column %s %s", want.Name, want.NativeType),
				TableDef:    desired,
				Column:      &want,
			})
			continue
		}

		normWant := d.norm.NormalizeColumn(want)
		normHave := d.norm.NormalizeColumn(*have)

		if normWant.NativeType != normHave.NativeType {
			alters = append(alters, core.SchemaChange{
				Kind:        core.AlterColumnType,
				Table:       desired.Name,
				Destructive: isNarrowing(normHave.NativeType, normWant.NativeType),
				Description: fmt.Sprintf("alter column %s type %s -> %s",
					want.Name, normHave.NativeType, normWant.NativeType),
				TableDef:  desired,
				Column:    &want,
				OldColumn: have,
			})
			continue
		}

		if want.Nullable != have.Nullable {
			change, err := d.nullabilityChange(desired, want, have)
			if err != nil {
				return nil, err
			}
			alters = append(alters, change)
		}
	}

	for i := range current.Columns {
		have := current.Columns[i]
		if desired.FindColumn(have.Name) == nil {
			drops = append(drops, core.SchemaChange{
				Kind:        core.DropColumn,
				Table:       desired.Name,
				Destructive: true,
				Description: fmt.Sprintf("drop column %s", have.Name),
				TableDef:    desired,
				Column:      &have,
			})
		}
	}

	changes := append(adds, alters...)
	return append(changes, drops...), nil
}

// nullabilityChange classifies a nullability delta.
//
// NOT NULL -> nullable is a pure relaxation. nullable -> NOT NULL with a
// default rewrites existing NULLs, so it is destructive and needs explicit
// approval. nullable -> NOT NULL without a default has no safe rendering at
// all and is refused here, before any SQL exists.
func (d *Differ) nullabilityChange(desired *core.TableDefinition, want core.ColumnDefinition, have *core.ColumnDefinition) (core.SchemaChange, error) {
	if !want.Nullable && !want.HasDefault() {
		return core.SchemaChange{}, fmt.Errorf(
			"cannot alter column %s.%s to NOT NULL without a default; either (1) declare a default value, (2) backfill existing NULLs with a manual migration first, or (3) drop and recreate the column",
			desired.Name, want.Name)
	}

	direction := "NOT NULL -> NULL"
	if !want.Nullable {
		direction = "NULL -> NOT NULL"
	}

	return core.SchemaChange{
		Kind:        core.AlterColumnNull,
		Table:       desired.Name,
		Destructive: !want.Nullable,
		Description: fmt.Sprintf("alter column %s nullability %s", want.Name, direction),
		TableDef:    desired,
		Column:      &want,
		OldColumn:   have,
	}, nil
}

func (d *Differ) diffIndexes(desired, current *core.TableDefinition) []core.SchemaChange {
	var changes []core.SchemaChange

	for i := range desired.Indexes {
		want := desired.Indexes[i]
		have := current.FindIndex(want.Name)

		if have == nil {
			changes = append(changes, core.SchemaChange{
				Kind:        core.AddIndex,
				Table:       desired.Name,
				Description: fmt.Sprintf("add index %s", want.Name),
				TableDef:    desired,
				Index:       &want,
			})
			continue
		}

		if !d.sameIndex(want, *have) {
			// Index definitions cannot be altered in place: rebuild.
			changes = append(changes, core.SchemaChange{
				Kind:        core.DropIndex,
				Table:       desired.Name,
				Destructive: true,
				Description: fmt.Sprintf("drop index %s (definition changed)", want.Name),
				TableDef:    desired,
				Index:       have,
			}, core.SchemaChange{
				Kind:        core.AddIndex,
				Table:       desired.Name,
				Description: fmt.Sprintf("add index %s (rebuilt)", want.Name),
				TableDef:    desired,
				Index:       &want,
			})
		}
	}

	for i := range current.Indexes {
		have := current.Indexes[i]
		if desired.FindIndex(have.Name) == nil {
			changes = append(changes, core.SchemaChange{
				Kind:        core.DropIndex,
				Table:       desired.Name,
				Destructive: true,
				Description: fmt.Sprintf("drop index %s", have.Name),
				TableDef:    desired,
				Index:       &have,
			})
		}
	}

	return changes
}

func (d *Differ) sameIndex(a, b core.IndexDefinition) bool {
	na, nb := d.norm.NormalizeIndex(a), d.norm.NormalizeIndex(b)
	if na.Unique != nb.Unique || na.Method != nb.Method || na.Where != nb.Where {
		return false
	}
	if len(na.Columns) != len(nb.Columns) {
		return false
	}
	for i := range na.Columns {
		if na.Columns[i] != nb.Columns[i] {
			return false
		}
	}
	return true
}

// wideningPairs lists the type conversions PostgreSQL performs without data
// loss. Everything else is treated as narrowing and therefore destructive.
var wideningPairs = map[string]map[string]bool{
	"INTEGER":   {"BIGINT": true, "NUMERIC": true, "DOUBLE PRECISION": true},
	"SMALLINT":  {"INTEGER": true, "BIGINT": true, "NUMERIC": true},
	"REAL":      {"DOUBLE PRECISION": true},
	"VARCHAR":   {"TEXT": true},
	"CHAR":      {"VARCHAR": true, "TEXT": true},
	"TIMESTAMP": {"TIMESTAMP WITH TIME ZONE": true},
	"JSON":      {"JSONB": true},
}

// isNarrowing reports whether converting from -> to risks data loss. Both
// arguments are normalized native spellings.
func isNarrowing(from, to string) bool {
	if from == to {
		return false
	}
	if widenings, ok := wideningPairs[from]; ok && widenings[to] {
		return false
	}
	return true
}
