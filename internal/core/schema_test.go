package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindColumn(t *testing.T) {
	table := &TableDefinition{
		Name:   "products",
		Schema: "public",
		Columns: []ColumnDefinition{
			{Name: "id", Type: ColumnUUID, NativeType: "UUID"},
			{Name: "name", Type: ColumnString, NativeType: "VARCHAR(255)"},
		},
	}

	col := table.FindColumn("name")
	require.NotNil(t, col)
	assert.Equal(t, ColumnString, col.Type)

	// Lookup is case-insensitive, catalog casing varies.
	assert.NotNil(t, table.FindColumn("NAME"))
	assert.Nil(t, table.FindColumn("missing"))
}

func TestFindIndex(t *testing.T) {
	table := &TableDefinition{
		Name: "products",
		Indexes: []IndexDefinition{
			{Name: "idx_products_name", Table: "products", Columns: []string{"name"}},
		},
	}

	require.NotNil(t, table.FindIndex("idx_products_name"))
	require.NotNil(t, table.FindIndex("IDX_PRODUCTS_NAME"))
	assert.Nil(t, table.FindIndex("idx_products_sku"))
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "public.products", (&TableDefinition{Name: "products", Schema: "public"}).QualifiedName())
	assert.Equal(t, "products", (&TableDefinition{Name: "products"}).QualifiedName())
}

func TestEffectiveMethod(t *testing.T) {
	assert.Equal(t, "btree", (&IndexDefinition{}).EffectiveMethod())
	assert.Equal(t, "gin", (&IndexDefinition{Method: "GIN"}).EffectiveMethod())
}

func TestParseReference(t *testing.T) {
	tbl, col, ok := ParseReference("organizations.id")
	require.True(t, ok)
	assert.Equal(t, "organizations", tbl)
	assert.Equal(t, "id", col)

	for _, bad := range []string{"", "organizations", ".id", "organizations."} {
		_, _, ok := ParseReference(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestColumnDefaults(t *testing.T) {
	col := ColumnDefinition{Name: "status"}
	assert.False(t, col.HasDefault())
	assert.Equal(t, "", col.DefaultString())

	col.Default = Def("'pending'")
	assert.True(t, col.HasDefault())
	assert.Equal(t, "'pending'", col.DefaultString())

	col.Default = Def("   ")
	assert.False(t, col.HasDefault())
}

func TestSchemaChangeString(t *testing.T) {
	safe := &SchemaChange{Kind: AddColumn, Table: "products", Description: "add column sku"}
	assert.Contains(t, safe.String(), "ADD_COLUMN")
	assert.Contains(t, safe.String(), "safe")

	drop := &SchemaChange{Kind: DropColumn, Table: "products", Destructive: true, Description: "drop column legacy"}
	assert.Contains(t, drop.String(), "DESTRUCTIVE")
}
