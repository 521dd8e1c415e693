package model

import (
	"fmt"
	"strings"

	"tempora/internal/core"
)

const (
	defaultVarcharLength = 255
	defaultDecimalDigits = 15
	defaultDecimalScale  = 2
)

// ColumnType resolves a field to its (canonical type, native type string)
// pair. A TypeOverride always wins; otherwise the fixed type table applies.
func (f *Field) ColumnType() (core.ColumnType, string) {
	if raw := strings.TrimSpace(f.TypeOverride); raw != "" {
		return classifyRawType(raw), raw
	}

	switch f.Type {
	case FieldUUID:
		return core.ColumnUUID, "UUID"
	case FieldString:
		n := f.MaxLength
		if n <= 0 {
			n = defaultVarcharLength
		}
		return core.ColumnString, fmt.Sprintf("VARCHAR(%d)", n)
	case FieldText:
		return core.ColumnText, "TEXT"
	case FieldInt:
		return core.ColumnInteger, "INTEGER"
	case FieldBigInt:
		return core.ColumnBigInt, "BIGINT"
	case FieldBool:
		return core.ColumnBoolean, "BOOLEAN"
	case FieldFloat:
		return core.ColumnDecimal, "DOUBLE PRECISION"
	case FieldTime:
		return core.ColumnTimestampTZ, "TIMESTAMP WITH TIME ZONE"
	case FieldDate:
		return core.ColumnTimestamp, "DATE"
	case FieldDecimal:
		p, s := f.Precision, f.Scale
		if p <= 0 {
			p = defaultDecimalDigits
		}
		if s <= 0 {
			s = defaultDecimalScale
		}
		return core.ColumnDecimal, fmt.Sprintf("NUMERIC(%d,%d)", p, s)
	case FieldJSON:
		return core.ColumnJSONB, "JSONB"
	case FieldTextArray:
		return core.ColumnArray, "TEXT[]"
	}

	// Unknown types fall back to TEXT rather than failing; Validate catches
	// them before extraction in the normal path.
	return core.ColumnText, "TEXT"
}

// classifyRawType maps a raw dialect type override onto the canonical enum.
// It mirrors the substring classification the normalizer applies to catalog
// types, so overridden columns still compare correctly.
func classifyRawType(raw string) core.ColumnType {
	upper := strings.ToUpper(raw)

	switch {
	case strings.Contains(upper, "UUID"):
		return core.ColumnUUID
	case strings.Contains(upper, "[]") || strings.Contains(upper, "ARRAY"):
		return core.ColumnArray
	case strings.Contains(upper, "VARCHAR") || strings.Contains(upper, "CHARACTER"):
		return core.ColumnString
	case strings.Contains(upper, "TEXT"):
		return core.ColumnText
	case strings.Contains(upper, "BIGINT"):
		return core.ColumnBigInt
	case strings.Contains(upper, "INT") || strings.Contains(upper, "SERIAL"):
		return core.ColumnInteger
	case strings.Contains(upper, "BOOL"):
		return core.ColumnBoolean
	case strings.Contains(upper, "TIME ZONE") || strings.Contains(upper, "TIMESTAMPTZ"):
		return core.ColumnTimestampTZ
	case strings.Contains(upper, "TIMESTAMP") || strings.Contains(upper, "DATE"):
		return core.ColumnTimestamp
	case strings.Contains(upper, "JSON"):
		return core.ColumnJSONB
	case strings.Contains(upper, "DECIMAL") || strings.Contains(upper, "NUMERIC") ||
		strings.Contains(upper, "DOUBLE") || strings.Contains(upper, "REAL"):
		return core.ColumnDecimal
	}
	return core.ColumnString
}
