// Package postgres reads the live database catalog and produces the
// structured table definitions the differ compares against. All queries
// are read-only; concurrent DDL by other sessions is tolerated (the result
// is eventually consistent, no locks are taken here).
package postgres

import (
	"context"
	"fmt"

	"tempora/internal/core"
	pg "tempora/internal/dialect/postgres"
	"tempora/internal/pool"
)

// Introspector reads table structure from information_schema and
// pg_catalog. Every native type it reports has passed through the
// normalizer, so definitions compare cleanly against extracted models.
type Introspector struct {
	db   pool.DB
	norm *pg.Normalizer
}

// New initializes an introspector over the given executor.
func New(db pool.DB) *Introspector {
	return &Introspector{db: db, norm: pg.NewNormalizer()}
}

// Tables returns the base-table names in a schema, sorted by name.
func (in *Introspector) Tables(ctx context.Context, schema string) ([]string, error) {
	rows, err := in.db.FetchAll(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in schema %s: %w", schema, err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, asString(row["table_name"]))
	}
	return names, nil
}

// Exists reports whether the table exists in the schema.
func (in *Introspector) Exists(ctx context.Context, table, schema string) (bool, error) {
	v, err := in.db.FetchValue(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, schema, table)
	if err != nil {
		return false, fmt.Errorf("failed to check existence of %s.%s: %w", schema, table, err)
	}
	return asBool(v), nil
}

// Columns returns the column definitions of a table in ordinal order.
func (in *Introspector) Columns(ctx context.Context, table, schema string) ([]core.ColumnDefinition, error) {
	rows, err := in.db.FetchAll(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect columns of %s.%s: %w", schema, table, err)
	}

	pkCols, err := in.primaryKeyColumns(ctx, table, schema)
	if err != nil {
		return nil, err
	}

	columns := make([]core.ColumnDefinition, 0, len(rows))
	for _, row := range rows {
		native := in.norm.NormalizeNativeType(nativeFromCatalog(
			asString(row["data_type"]), asString(row["udt_name"])))
		colType := in.norm.ColumnTypeOf(native)

		col := core.ColumnDefinition{
			Name:       asString(row["column_name"]),
			Type:       colType,
			Nullable:   asString(row["is_nullable"]) == "YES",
			MaxLength:  asInt(row["character_maximum_length"]),
			Precision:  asInt(row["numeric_precision"]),
			Scale:      asInt(row["numeric_scale"]),
			PrimaryKey: pkCols[asString(row["column_name"])],
			NativeType: native,
		}

		if d := row["column_default"]; d != nil {
			raw := asString(d)
			col.Default = in.norm.NormalizeDefault(&raw, colType)
		}

		columns = append(columns, col)
	}
	return columns, nil
}

// Indexes returns the secondary indexes of a table. The primary-key index
// is excluded; it belongs to the column definitions.
func (in *Introspector) Indexes(ctx context.Context, table, schema string) ([]core.IndexDefinition, error) {
	rows, err := in.db.FetchAll(ctx, `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			am.amname AS method,
			pg_get_expr(ix.indpred, ix.indrelid) AS predicate,
			a.attname AS column_name,
			array_position(ix.indkey, a.attnum) AS position
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON i.relam = am.oid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2 AND NOT ix.indisprimary
		ORDER BY i.relname, position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect indexes of %s.%s: %w", schema, table, err)
	}

	byName := map[string]*core.IndexDefinition{}
	var order []string

	for _, row := range rows {
		name := asString(row["index_name"])
		idx, ok := byName[name]
		if !ok {
			idx = &core.IndexDefinition{
				Name:   name,
				Table:  table,
				Unique: asBool(row["is_unique"]),
				Method: asString(row["method"]),
			}
			if p := row["predicate"]; p != nil {
				idx.Where = asString(p)
			}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, asString(row["column_name"]))
	}

	indexes := make([]core.IndexDefinition, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *byName[name])
	}
	return indexes, nil
}

// TableSchema returns the full structured definition of a table, or nil
// when the table does not exist.
func (in *Introspector) TableSchema(ctx context.Context, table, schema string) (*core.TableDefinition, error) {
	exists, err := in.Exists(ctx, table, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	columns, err := in.Columns(ctx, table, schema)
	if err != nil {
		return nil, err
	}
	indexes, err := in.Indexes(ctx, table, schema)
	if err != nil {
		return nil, err
	}

	return &core.TableDefinition{
		Name:    table,
		Schema:  schema,
		Columns: columns,
		Indexes: indexes,
	}, nil
}

func (in *Introspector) primaryKeyColumns(ctx context.Context, table, schema string) (map[string]bool, error) {
	rows, err := in.db.FetchAll(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
			AND tc.constraint_type = 'PRIMARY KEY'
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect primary key of %s.%s: %w", schema, table, err)
	}

	cols := make(map[string]bool, len(rows))
	for _, row := range rows {
		cols[asString(row["column_name"])] = true
	}
	return cols, nil
}

// nativeFromCatalog picks the usable type spelling out of the two the
// information schema reports: data_type says "ARRAY" or "USER-DEFINED" for
// anything interesting, and udt_name carries the real name ("_text",
// "citext") in those cases.
func nativeFromCatalog(dataType, udtName string) string {
	switch dataType {
	case "ARRAY", "USER-DEFINED":
		return udtName
	case "":
		return udtName
	}
	return dataType
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "t" || b == "true" || b == "YES"
	}
	return false
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
