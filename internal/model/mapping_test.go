package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tempora/internal/core"
)

func TestFieldColumnTypeTable(t *testing.T) {
	tests := []struct {
		name   string
		field  Field
		want   core.ColumnType
		native string
	}{
		{"uuid", Field{Type: FieldUUID}, core.ColumnUUID, "UUID"},
		{"string default length", Field{Type: FieldString}, core.ColumnString, "VARCHAR(255)"},
		{"string bounded", Field{Type: FieldString, MaxLength: 100}, core.ColumnString, "VARCHAR(100)"},
		{"text", Field{Type: FieldText}, core.ColumnText, "TEXT"},
		{"int", Field{Type: FieldInt}, core.ColumnInteger, "INTEGER"},
		{"bigint", Field{Type: FieldBigInt}, core.ColumnBigInt, "BIGINT"},
		{"bool", Field{Type: FieldBool}, core.ColumnBoolean, "BOOLEAN"},
		{"float", Field{Type: FieldFloat}, core.ColumnDecimal, "DOUBLE PRECISION"},
		{"time", Field{Type: FieldTime}, core.ColumnTimestampTZ, "TIMESTAMP WITH TIME ZONE"},
		{"date", Field{Type: FieldDate}, core.ColumnTimestamp, "DATE"},
		{"decimal defaults", Field{Type: FieldDecimal}, core.ColumnDecimal, "NUMERIC(15,2)"},
		{"decimal explicit", Field{Type: FieldDecimal, Precision: 10, Scale: 4}, core.ColumnDecimal, "NUMERIC(10,4)"},
		{"json", Field{Type: FieldJSON}, core.ColumnJSONB, "JSONB"},
		{"text array", Field{Type: FieldTextArray}, core.ColumnArray, "TEXT[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			colType, native := tt.field.ColumnType()
			assert.Equal(t, tt.want, colType)
			assert.Equal(t, tt.native, native)
		})
	}
}

func TestTypeOverrideWins(t *testing.T) {
	f := Field{Type: FieldString, TypeOverride: "CITEXT"}
	colType, native := f.ColumnType()
	assert.Equal(t, "CITEXT", native)
	assert.Equal(t, core.ColumnText, colType)

	f = Field{Type: FieldInt, TypeOverride: "NUMERIC(20,8)"}
	colType, native = f.ColumnType()
	assert.Equal(t, core.ColumnDecimal, colType)
	assert.Equal(t, "NUMERIC(20,8)", native)
}

func TestClassifyRawType(t *testing.T) {
	tests := map[string]core.ColumnType{
		"uuid":                     core.ColumnUUID,
		"VARCHAR(64)":              core.ColumnString,
		"text":                     core.ColumnText,
		"INTEGER":                  core.ColumnInteger,
		"bigint":                   core.ColumnBigInt,
		"BOOLEAN":                  core.ColumnBoolean,
		"TIMESTAMP WITH TIME ZONE": core.ColumnTimestampTZ,
		"timestamptz":              core.ColumnTimestampTZ,
		"DATE":                     core.ColumnTimestamp,
		"jsonb":                    core.ColumnJSONB,
		"NUMERIC(15,2)":            core.ColumnDecimal,
		"DOUBLE PRECISION":         core.ColumnDecimal,
		"TEXT[]":                   core.ColumnArray,
	}

	for raw, want := range tests {
		assert.Equal(t, want, classifyRawType(raw), "raw type %q", raw)
	}
}
