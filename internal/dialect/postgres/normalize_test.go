package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora/internal/core"
)

func TestNormalizeNativeTypeAliases(t *testing.T) {
	n := NewNormalizer()

	tests := map[string]string{
		"float8":                   "DOUBLE PRECISION",
		"double":                   "DOUBLE PRECISION",
		"DOUBLE PRECISION":         "DOUBLE PRECISION",
		"Double Precision":         "DOUBLE PRECISION",
		"float4":                   "REAL",
		"real":                     "REAL",
		"int4":                     "INTEGER",
		"int":                      "INTEGER",
		"integer":                  "INTEGER",
		"int8":                     "BIGINT",
		"bool":                     "BOOLEAN",
		"BOOLEAN":                  "BOOLEAN",
		"timestamptz":              "TIMESTAMP WITH TIME ZONE",
		"timestamp with time zone": "TIMESTAMP WITH TIME ZONE",
		"timestamp(6) with time zone": "TIMESTAMP WITH TIME ZONE",
		"timestamp without time zone": "TIMESTAMP",
		"character varying":           "VARCHAR",
		"VARCHAR(255)":                "VARCHAR",
		"NUMERIC(15,2)":               "NUMERIC",
		"decimal(10,4)":               "NUMERIC",
		"uuid":                        "UUID",
		"jsonb":                       "JSONB",
		"text":                        "TEXT",
	}

	for input, want := range tests {
		assert.Equal(t, want, n.NormalizeNativeType(input), "input %q", input)
	}
}

func TestNormalizeNativeTypeArrays(t *testing.T) {
	n := NewNormalizer()

	assert.Equal(t, "TEXT[]", n.NormalizeNativeType("_text"))
	assert.Equal(t, "TEXT[]", n.NormalizeNativeType("TEXT[]"))
	assert.Equal(t, "TEXT[]", n.NormalizeNativeType("text ARRAY"))
	assert.Equal(t, "INTEGER[]", n.NormalizeNativeType("_int4"))
}

func TestNormalizeNativeTypeUnknownPassesThrough(t *testing.T) {
	n := NewNormalizer()

	// Unknown types never abort a comparison; they pass through upper-cased
	// and parameter-stripped.
	assert.Equal(t, "CITEXT", n.NormalizeNativeType("citext"))
	assert.Equal(t, "TSVECTOR", n.NormalizeNativeType("tsvector"))
	assert.Equal(t, "", n.NormalizeNativeType("  "))
}

func TestNormalizeNativeTypeIdempotent(t *testing.T) {
	n := NewNormalizer()

	inputs := []string{
		"VARCHAR(255)", "float8", "_text", "timestamptz", "bool",
		"NUMERIC(15,2)", "citext", "timestamp(3) without time zone", "int8",
	}
	for _, input := range inputs {
		once := n.NormalizeNativeType(input)
		assert.Equal(t, once, n.NormalizeNativeType(once), "input %q", input)
	}
}

func TestNormalizeDefaultBooleans(t *testing.T) {
	n := NewNormalizer()

	for _, truthy := range []string{"t", "true", "TRUE", "1", "'t'"} {
		got := n.NormalizeDefault(core.Def(truthy), core.ColumnBoolean)
		require.NotNil(t, got, "input %q", truthy)
		assert.Equal(t, "TRUE", *got, "input %q", truthy)
	}
	for _, falsy := range []string{"f", "false", "FALSE", "0"} {
		got := n.NormalizeDefault(core.Def(falsy), core.ColumnBoolean)
		require.NotNil(t, got, "input %q", falsy)
		assert.Equal(t, "FALSE", *got, "input %q", falsy)
	}
}

func TestNormalizeDefaultNullForms(t *testing.T) {
	n := NewNormalizer()

	assert.Nil(t, n.NormalizeDefault(nil, core.ColumnString))
	assert.Nil(t, n.NormalizeDefault(core.Def(""), core.ColumnString))
	assert.Nil(t, n.NormalizeDefault(core.Def("   "), core.ColumnString))
	assert.Nil(t, n.NormalizeDefault(core.Def("NULL"), core.ColumnString))
	assert.Nil(t, n.NormalizeDefault(core.Def("null"), core.ColumnString))
}

func TestNormalizeDefaultCastSuffix(t *testing.T) {
	n := NewNormalizer()

	got := n.NormalizeDefault(core.Def("'pending'::character varying"), core.ColumnString)
	require.NotNil(t, got)
	assert.Equal(t, "'pending'", *got)

	got = n.NormalizeDefault(core.Def("0.00::numeric(15,2)"), core.ColumnDecimal)
	require.NotNil(t, got)
	assert.Equal(t, "0.00", *got)
}

func TestNormalizeDefaultClockExpressions(t *testing.T) {
	n := NewNormalizer()

	for _, expr := range []string{"now()", "NOW()", "CURRENT_TIMESTAMP"} {
		got := n.NormalizeDefault(core.Def(expr), core.ColumnTimestampTZ)
		require.NotNil(t, got, "input %q", expr)
		assert.Equal(t, "NOW()", *got, "input %q", expr)
	}
}

func TestNormalizeWhereClause(t *testing.T) {
	n := NewNormalizer()

	// The catalog stores predicates parenthesized and lower-cased.
	assert.Equal(t, "deleted_at is null", n.NormalizeWhereClause("(deleted_at IS NULL)"))
	assert.Equal(t, "deleted_at is null", n.NormalizeWhereClause("deleted_at  IS  NULL"))
	assert.Equal(t,
		n.NormalizeWhereClause("((valid_to IS NULL))"),
		n.NormalizeWhereClause("valid_to IS NULL"))

	// Outer parens strip only when balanced.
	assert.Equal(t, "(a = 1) or (b = 2)", n.NormalizeWhereClause("(a = 1) OR (b = 2)"))
}

func TestNormalizeColumn(t *testing.T) {
	n := NewNormalizer()

	fromCatalog := core.ColumnDefinition{
		Name:       "price",
		Type:       core.ColumnDecimal,
		NativeType: "float8",
	}
	fromModel := core.ColumnDefinition{
		Name:       "price",
		Type:       core.ColumnDecimal,
		NativeType: "DOUBLE PRECISION",
	}

	assert.Equal(t,
		n.NormalizeColumn(fromCatalog).NativeType,
		n.NormalizeColumn(fromModel).NativeType)

	// Input not mutated.
	assert.Equal(t, "float8", fromCatalog.NativeType)
}

func TestColumnTypeOf(t *testing.T) {
	n := NewNormalizer()

	cases := map[string]core.ColumnType{
		"uuid":                     core.ColumnUUID,
		"character varying":        core.ColumnString,
		"varchar(255)":             core.ColumnString,
		"text":                     core.ColumnText,
		"int4":                     core.ColumnInteger,
		"int8":                     core.ColumnBigInt,
		"bool":                     core.ColumnBoolean,
		"timestamptz":              core.ColumnTimestampTZ,
		"timestamp with time zone": core.ColumnTimestampTZ,
		"timestamp":                core.ColumnTimestamp,
		"date":                     core.ColumnTimestamp,
		"jsonb":                    core.ColumnJSONB,
		"numeric(15,2)":            core.ColumnDecimal,
		"float8":                   core.ColumnDecimal,
		"_text":                    core.ColumnArray,
		"TEXT[]":                   core.ColumnArray,
		"citext":                   core.ColumnString,
	}
	for native, want := range cases {
		assert.Equal(t, want, n.ColumnTypeOf(native), native)
	}
}
