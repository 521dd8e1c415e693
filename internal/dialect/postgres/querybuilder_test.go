package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInsert(t *testing.T) {
	qb := NewQueryBuilder()

	sql, params := qb.BuildInsert("public", "products",
		[]string{"id", "name", "order"},
		[]any{"a1", "Widget", 3},
		true)

	assert.Equal(t,
		`INSERT INTO "public"."products" ("id", "name", "order") VALUES ($1, $2, $3) RETURNING *`,
		sql)
	assert.Equal(t, []any{"a1", "Widget", 3}, params)
}

func TestBuildUpdatePlaceholderNumbering(t *testing.T) {
	qb := NewQueryBuilder()

	sql, params := qb.BuildUpdate("public", "products",
		[]string{"name", "updated_at"},
		[]any{"Widget v2", "now"},
		[]Condition{Eq("id", "a1"), Eq("tenant_id", "t1")},
		true)

	assert.Equal(t,
		`UPDATE "public"."products" SET "name" = $1, "updated_at" = $2 WHERE "id" = $3 AND "tenant_id" = $4 RETURNING *`,
		sql)
	assert.Equal(t, []any{"Widget v2", "now", "a1", "t1"}, params)
}

func TestBuildWhereNullHandling(t *testing.T) {
	qb := NewQueryBuilder()

	fragment, params := qb.BuildWhere([]Condition{
		Eq("deleted_at", nil),
		{Field: "valid_to", Op: OpNe, Value: nil},
		Eq("id", "a1"),
	}, 1)

	assert.Equal(t, `"deleted_at" IS NULL AND "valid_to" IS NOT NULL AND "id" = $1`, fragment)
	assert.Equal(t, []any{"a1"}, params)
}

func TestBuildWhereInList(t *testing.T) {
	qb := NewQueryBuilder()

	fragment, params := qb.BuildWhere([]Condition{
		Eq("status", []string{"active", "pending"}),
	}, 1)

	assert.Equal(t, `"status" = ANY($1)`, fragment)
	require.Len(t, params, 1)
}

func TestBuildWhereRangeOperators(t *testing.T) {
	qb := NewQueryBuilder()

	fragment, params := qb.BuildWhere([]Condition{
		{Field: "price", Op: OpGte, Value: 10},
		{Field: "price", Op: OpLt, Value: 100},
	}, 1)

	assert.Equal(t, `"price" >= $1 AND "price" < $2`, fragment)
	assert.Equal(t, []any{10, 100}, params)
}

func TestBuildWhereEmpty(t *testing.T) {
	qb := NewQueryBuilder()
	fragment, params := qb.BuildWhere(nil, 1)
	assert.Equal(t, "", fragment)
	assert.Empty(t, params)
}

func TestParseFilterKey(t *testing.T) {
	tests := map[string]struct {
		field string
		op    Op
	}{
		"price":      {"price", OpEq},
		"price__gte": {"price", OpGte},
		"price__lte": {"price", OpLte},
		"price__gt":  {"price", OpGt},
		"price__lt":  {"price", OpLt},
		"price__ne":  {"price", OpNe},
	}

	for key, want := range tests {
		field, op := ParseFilterKey(key)
		assert.Equal(t, want.field, field, "key %q", key)
		assert.Equal(t, want.op, op, "key %q", key)
	}
}

func TestReservedKeywordIdentifiersAlwaysQuoted(t *testing.T) {
	qb := NewQueryBuilder()

	sql, _ := qb.BuildInsert("public", "order", []string{"select", "from"}, []any{1, 2}, false)
	assert.Equal(t, `INSERT INTO "public"."order" ("select", "from") VALUES ($1, $2)`, sql)
}
