package postgres

import (
	"fmt"
	"strings"

	"tempora/internal/core"
)

// Generator is a stateless PostgreSQL DDL generator. Every statement it
// emits is idempotent (IF EXISTS / IF NOT EXISTS guards) and every
// identifier is quoted unconditionally, so reserved-keyword table and
// column names stay valid.
type Generator struct{}

// NewGenerator initializes a PostgreSQL DDL generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// QuoteIdentifier quotes a single identifier for PostgreSQL.
func (g *Generator) QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `"`, `""`)
	return `"` + name + `"`
}

// QuoteString renders a string literal.
func (g *Generator) QuoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// QualifyTable renders a quoted schema-qualified table reference.
func (g *Generator) QualifyTable(schema, table string) string {
	if schema == "" {
		return g.QuoteIdentifier(table)
	}
	return g.QuoteIdentifier(schema) + "." + g.QuoteIdentifier(table)
}

// Generate fills in the SQL for a single schema change, writing it back to
// change.SQL as well. It returns a configuration error for the one change
// kind that has no safe rendering: altering an existing nullable column to
// NOT NULL without a default.
func (g *Generator) Generate(change *core.SchemaChange) (string, error) {
	sql, err := g.render(change)
	if err != nil {
		return "", err
	}
	change.SQL = sql
	return sql, nil
}

func (g *Generator) render(change *core.SchemaChange) (string, error) {
	switch change.Kind {
	case core.CreateTable:
		if change.TableDef == nil {
			return "", fmt.Errorf("%s change for %s has no table definition", change.Kind, change.Table)
		}
		return g.GenerateCreateTable(change.TableDef), nil
	case core.DropTable:
		return g.GenerateDropTable(change.Table, schemaOf(change)), nil
	case core.AddColumn:
		if change.Column == nil {
			return "", fmt.Errorf("%s change for %s has no column", change.Kind, change.Table)
		}
		return g.GenerateAddColumn(change.Table, schemaOf(change), *change.Column), nil
	case core.DropColumn:
		if change.Column == nil {
			return "", fmt.Errorf("%s change for %s has no column", change.Kind, change.Table)
		}
		return g.GenerateDropColumn(change.Table, schemaOf(change), change.Column.Name), nil
	case core.AlterColumnType:
		if change.Column == nil {
			return "", fmt.Errorf("%s change for %s has no column", change.Kind, change.Table)
		}
		return g.GenerateAlterColumnType(change.Table, schemaOf(change), *change.Column), nil
	case core.AlterColumnNull:
		if change.Column == nil {
			return "", fmt.Errorf("%s change for %s has no column", change.Kind, change.Table)
		}
		return g.GenerateAlterNullability(change.Table, schemaOf(change), *change.Column)
	case core.AddIndex:
		if change.Index == nil {
			return "", fmt.Errorf("%s change for %s has no index", change.Kind, change.Table)
		}
		return g.GenerateAddIndex(schemaOf(change), *change.Index), nil
	case core.DropIndex:
		if change.Index == nil {
			return "", fmt.Errorf("%s change for %s has no index", change.Kind, change.Table)
		}
		return g.GenerateDropIndex(schemaOf(change), change.Index.Name), nil
	}
	return "", fmt.Errorf("unsupported change kind %q for table %s", change.Kind, change.Table)
}

func schemaOf(change *core.SchemaChange) string {
	if change.TableDef != nil {
		return change.TableDef.Schema
	}
	return "public"
}

// GenerateCreateTable renders a CREATE TABLE IF NOT EXISTS statement with
// inline foreign-key references and a composite primary key when more than
// one column is flagged.
func (g *Generator) GenerateCreateTable(t *core.TableDefinition) string {
	var defs []string
	var pkCols []string

	for i := range t.Columns {
		col := &t.Columns[i]
		defs = append(defs, g.columnDefinition(col))
		if col.PrimaryKey {
			pkCols = append(pkCols, g.QuoteIdentifier(col.Name))
		}
	}

	if len(pkCols) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);",
		g.QualifyTable(t.Schema, t.Name), strings.Join(defs, ",\n    "))
}

func (g *Generator) columnDefinition(c *core.ColumnDefinition) string {
	parts := []string{g.QuoteIdentifier(c.Name), c.NativeType}

	if c.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}

	if c.HasDefault() {
		parts = append(parts, "DEFAULT "+c.DefaultString())
	}

	if c.Check != "" {
		parts = append(parts, "CHECK ("+c.Check+")")
	}

	if c.ForeignKey != "" {
		if refTable, refCol, ok := core.ParseReference(c.ForeignKey); ok {
			ref := fmt.Sprintf("REFERENCES %s (%s)", g.QuoteIdentifier(refTable), g.QuoteIdentifier(refCol))
			if c.OnDelete != "" {
				ref += " ON DELETE " + strings.ToUpper(c.OnDelete)
			}
			parts = append(parts, ref)
		}
	}

	return strings.Join(parts, " ")
}

// GenerateDropTable renders DROP TABLE IF EXISTS with CASCADE, so dependent
// indexes and the audit table's foreign references do not block the drop.
func (g *Generator) GenerateDropTable(table, schema string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", g.QualifyTable(schema, table))
}

// GenerateAddColumn renders ADD COLUMN. Adding a NOT NULL column without a
// default against a table with rows would fail at apply time, so that case
// becomes two statements: add the column nullable, then SET NOT NULL.
// Existing rows keep NULL (the constraint binds future writes only), which
// is why the change stays non-destructive.
func (g *Generator) GenerateAddColumn(table, schema string, col core.ColumnDefinition) string {
	qualified := g.QualifyTable(schema, table)

	if !col.Nullable && !col.HasDefault() {
		nullable := col
		nullable.Nullable = true
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;\nALTER TABLE %s ALTER COLUMN %s SET NOT NULL;",
			qualified, g.columnDefinition(&nullable),
			qualified, g.QuoteIdentifier(col.Name))
	}

	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;",
		qualified, g.columnDefinition(&col))
}

// GenerateDropColumn renders DROP COLUMN IF EXISTS.
func (g *Generator) GenerateDropColumn(table, schema, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;",
		g.QualifyTable(schema, table), g.QuoteIdentifier(column))
}

// GenerateAlterColumnType renders ALTER COLUMN TYPE with a USING cast so
// widening conversions succeed without a manual rewrite.
func (g *Generator) GenerateAlterColumnType(table, schema string, col core.ColumnDefinition) string {
	name := g.QuoteIdentifier(col.Name)
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;",
		g.QualifyTable(schema, table), name, col.NativeType, name, col.NativeType)
}

// GenerateAlterNullability renders the nullability change for an existing
// column.
//
// nullable -> NOT NULL only has a safe rendering when the column carries a
// default: existing NULLs are backfilled to the default, then the
// constraint is set. Without a default the change is refused with the three
// possible resolutions named, rather than emitting SQL that fails at apply
// time.
func (g *Generator) GenerateAlterNullability(table, schema string, col core.ColumnDefinition) (string, error) {
	qualified := g.QualifyTable(schema, table)
	name := g.QuoteIdentifier(col.Name)

	if col.Nullable {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", qualified, name), nil
	}

	if !col.HasDefault() {
		return "", fmt.Errorf(
			"cannot alter column %s.%s to NOT NULL without a default; either (1) declare a default value, (2) backfill existing NULLs with a manual migration first, or (3) drop and recreate the column",
			table, col.Name)
	}

	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL;\nALTER TABLE %s ALTER COLUMN %s SET NOT NULL;",
		qualified, name, col.DefaultString(), name,
		qualified, name), nil
}

// GenerateAddIndex renders CREATE [UNIQUE] INDEX IF NOT EXISTS, including
// the access method and partial predicate when present.
func (g *Generator) GenerateAddIndex(schema string, idx core.IndexDefinition) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(g.QuoteIdentifier(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(g.QualifyTable(schema, idx.Table))
	b.WriteString(" USING ")
	b.WriteString(idx.EffectiveMethod())
	b.WriteString(" (")
	for i, col := range idx.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.QuoteIdentifier(col))
	}
	b.WriteString(")")
	if strings.TrimSpace(idx.Where) != "" {
		b.WriteString(" WHERE ")
		b.WriteString(idx.Where)
	}
	b.WriteString(";")
	return b.String()
}

// GenerateDropIndex renders DROP INDEX IF EXISTS.
func (g *Generator) GenerateDropIndex(schema, name string) string {
	if schema == "" {
		return fmt.Sprintf("DROP INDEX IF EXISTS %s;", g.QuoteIdentifier(name))
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s.%s;", g.QuoteIdentifier(schema), g.QuoteIdentifier(name))
}

// WrapInTransaction wraps an ordered statement list into one atomic block.
func (g *Generator) WrapInTransaction(statements []string) string {
	var b strings.Builder
	b.WriteString("BEGIN;\n")
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		b.WriteString(stmt)
		if !strings.HasSuffix(stmt, ";") {
			b.WriteString(";")
		}
		b.WriteString("\n")
	}
	b.WriteString("COMMIT;")
	return b.String()
}

// SplitStatements splits generated SQL into individual statements for
// drivers that reject multi-statement strings inside a transaction.
func SplitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part+";")
	}
	return out
}
