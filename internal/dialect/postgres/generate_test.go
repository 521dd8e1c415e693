package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora/internal/core"
)

func TestQuoteIdentifier(t *testing.T) {
	g := NewGenerator()

	assert.Equal(t, `"products"`, g.QuoteIdentifier("products"))
	assert.Equal(t, `"order"`, g.QuoteIdentifier("order"), "reserved keywords stay valid")
	assert.Equal(t, `"we""ird"`, g.QuoteIdentifier(`we"ird`))
}

func TestGenerateCreateTable(t *testing.T) {
	g := NewGenerator()

	table := &core.TableDefinition{
		Name:   "products",
		Schema: "public",
		Columns: []core.ColumnDefinition{
			{Name: "id", Type: core.ColumnUUID, PrimaryKey: true, Default: core.Def("gen_random_uuid()"), NativeType: "UUID"},
			{Name: "name", Type: core.ColumnString, NativeType: "VARCHAR(255)"},
			{Name: "owner_id", Type: core.ColumnUUID, Nullable: true, ForeignKey: "users.id", OnDelete: "cascade", NativeType: "UUID"},
		},
	}

	sql := g.GenerateCreateTable(table)

	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "public"."products"`)
	assert.Contains(t, sql, `"id" UUID NOT NULL DEFAULT gen_random_uuid()`)
	assert.Contains(t, sql, `"name" VARCHAR(255) NOT NULL`)
	assert.Contains(t, sql, `"owner_id" UUID NULL REFERENCES "users" ("id") ON DELETE CASCADE`)
	assert.Contains(t, sql, `PRIMARY KEY ("id")`)
}

func TestGenerateCreateTableCompositePrimaryKey(t *testing.T) {
	g := NewGenerator()

	table := &core.TableDefinition{
		Name:   "contracts",
		Schema: "public",
		Columns: []core.ColumnDefinition{
			{Name: "id", Type: core.ColumnUUID, PrimaryKey: true, NativeType: "UUID"},
			{Name: "version", Type: core.ColumnInteger, PrimaryKey: true, Default: core.Def("1"), NativeType: "INTEGER"},
		},
	}

	sql := g.GenerateCreateTable(table)
	assert.Contains(t, sql, `PRIMARY KEY ("id", "version")`)
}

func TestGenerateRendersCheckConstraint(t *testing.T) {
	g := NewGenerator()

	table := &core.TableDefinition{
		Name:   "products",
		Schema: "public",
		Columns: []core.ColumnDefinition{
			{Name: "id", Type: core.ColumnUUID, PrimaryKey: true, NativeType: "UUID"},
			{Name: "price", Type: core.ColumnInteger, NativeType: "INTEGER", Check: "price >= 0"},
		},
	}

	sql := g.GenerateCreateTable(table)
	assert.Contains(t, sql, `"price" INTEGER NOT NULL CHECK (price >= 0)`)

	// The constraint also rides along when the column is added to an
	// existing table.
	sql = g.GenerateAddColumn("products", "public", core.ColumnDefinition{
		Name: "price", Type: core.ColumnInteger, Nullable: true, NativeType: "INTEGER", Check: "price >= 0",
	})
	assert.Contains(t, sql, `"price" INTEGER NULL CHECK (price >= 0)`)
}

func TestGenerateAddColumnNotNullWithoutDefault(t *testing.T) {
	g := NewGenerator()

	col := core.ColumnDefinition{
		Name:       "new_field",
		Type:       core.ColumnString,
		Nullable:   false,
		NativeType: "VARCHAR(255)",
	}

	sql := g.GenerateAddColumn("test_table", "public", col)

	// Two-step: add nullable, then SET NOT NULL. Never fails against
	// existing rows.
	assert.Contains(t, sql, "ADD COLUMN IF NOT EXISTS")
	assert.Contains(t, sql, `"new_field" VARCHAR(255) NULL`)
	assert.Contains(t, sql, "SET NOT NULL")
	assert.Equal(t, 2, strings.Count(sql, ";"))
}

func TestGenerateAddColumnNotNullWithDefault(t *testing.T) {
	g := NewGenerator()

	col := core.ColumnDefinition{
		Name:       "status",
		Type:       core.ColumnString,
		Nullable:   false,
		Default:    core.Def("'pending'"),
		NativeType: "VARCHAR(50)",
	}

	sql := g.GenerateAddColumn("test_table", "public", col)

	assert.Contains(t, sql, "ADD COLUMN IF NOT EXISTS")
	assert.Contains(t, sql, "NOT NULL")
	assert.Contains(t, sql, "DEFAULT 'pending'")
	assert.Equal(t, 1, strings.Count(sql, ";"))
}

func TestGenerateAddColumnNullable(t *testing.T) {
	g := NewGenerator()

	col := core.ColumnDefinition{
		Name:       "optional_field",
		Type:       core.ColumnString,
		Nullable:   true,
		NativeType: "VARCHAR(255)",
	}

	sql := g.GenerateAddColumn("test_table", "public", col)
	assert.Contains(t, sql, "VARCHAR(255)")
	assert.Equal(t, 1, strings.Count(sql, ";"))
}

func TestGenerateAlterNullability(t *testing.T) {
	g := NewGenerator()

	// NOT NULL -> nullable is one statement.
	sql, err := g.GenerateAlterNullability("t", "public", core.ColumnDefinition{
		Name: "f", Nullable: true, NativeType: "VARCHAR(255)",
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "DROP NOT NULL")

	// nullable -> NOT NULL with a default backfills first.
	sql, err = g.GenerateAlterNullability("t", "public", core.ColumnDefinition{
		Name: "f", Nullable: false, Default: core.Def("'x'"), NativeType: "VARCHAR(255)",
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `UPDATE "public"."t" SET "f" = 'x' WHERE "f" IS NULL;`)
	assert.Contains(t, sql, "SET NOT NULL")

	// nullable -> NOT NULL without a default is refused, naming the three
	// resolutions.
	_, err = g.GenerateAlterNullability("t", "public", core.ColumnDefinition{
		Name: "f", Nullable: false, NativeType: "VARCHAR(255)",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default value")
	assert.Contains(t, err.Error(), "backfill")
	assert.Contains(t, err.Error(), "drop and recreate")
}

func TestGenerateAddIndex(t *testing.T) {
	g := NewGenerator()

	sql := g.GenerateAddIndex("public", core.IndexDefinition{
		Name:    "uq_products_current",
		Table:   "products",
		Columns: []string{"id"},
		Unique:  true,
		Where:   "valid_to IS NULL",
	})

	assert.Equal(t,
		`CREATE UNIQUE INDEX IF NOT EXISTS "uq_products_current" ON "public"."products" USING btree ("id") WHERE valid_to IS NULL;`,
		sql)
}

func TestGenerateDropStatementsAreGuarded(t *testing.T) {
	g := NewGenerator()

	assert.Equal(t, `DROP TABLE IF EXISTS "public"."old" CASCADE;`, g.GenerateDropTable("old", "public"))
	assert.Equal(t, `ALTER TABLE "public"."t" DROP COLUMN IF EXISTS "legacy";`, g.GenerateDropColumn("t", "public", "legacy"))
	assert.Equal(t, `DROP INDEX IF EXISTS "public"."idx_old";`, g.GenerateDropIndex("public", "idx_old"))
}

func TestGenerateAlterColumnTypeUsesCast(t *testing.T) {
	g := NewGenerator()

	sql := g.GenerateAlterColumnType("t", "public", core.ColumnDefinition{
		Name: "amount", NativeType: "NUMERIC(15,2)",
	})
	assert.Contains(t, sql, `ALTER COLUMN "amount" TYPE NUMERIC(15,2) USING "amount"::NUMERIC(15,2);`)
}

func TestGenerateDispatch(t *testing.T) {
	g := NewGenerator()

	table := &core.TableDefinition{
		Name:   "products",
		Schema: "public",
		Columns: []core.ColumnDefinition{
			{Name: "id", Type: core.ColumnUUID, PrimaryKey: true, NativeType: "UUID"},
		},
	}

	change := &core.SchemaChange{Kind: core.CreateTable, Table: "products", TableDef: table}
	sql, err := g.Generate(change)
	require.NoError(t, err)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS")
	assert.Equal(t, sql, change.SQL, "generated SQL is written back to the change")

	_, err = g.Generate(&core.SchemaChange{Kind: core.AddColumn, Table: "products"})
	assert.Error(t, err, "add-column change without a column is rejected")

	_, err = g.Generate(&core.SchemaChange{Kind: core.ChangeKind("RENAME"), Table: "products"})
	assert.Error(t, err)
}

func TestWrapInTransaction(t *testing.T) {
	g := NewGenerator()

	sql := g.WrapInTransaction([]string{"CREATE TABLE a ();", "CREATE TABLE b ()"})

	assert.True(t, strings.HasPrefix(sql, "BEGIN;\n"))
	assert.True(t, strings.HasSuffix(sql, "COMMIT;"))
	assert.Contains(t, sql, "CREATE TABLE a ();")
	assert.Contains(t, sql, "CREATE TABLE b ();")
}

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements("ALTER TABLE t ADD COLUMN a TEXT;\nALTER TABLE t ALTER COLUMN a SET NOT NULL;")
	require.Len(t, stmts, 2)
	assert.Equal(t, "ALTER TABLE t ADD COLUMN a TEXT;", stmts[0])
}
