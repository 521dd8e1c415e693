// Package postgres provides PostgreSQL dialect support: type and default
// normalization, DDL generation for schema changes, and the parameterized
// query builder the temporal strategies share.
package postgres

import (
	"regexp"
	"strings"

	"tempora/internal/core"
)

// Normalizer canonicalizes the type and default spellings PostgreSQL
// reports so that semantically identical columns compare equal between the
// introspection and generation paths. Normalization is idempotent:
// Normalize(Normalize(x)) == Normalize(x).
type Normalizer struct{}

// NewNormalizer returns a stateless normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

var parameterList = regexp.MustCompile(`\([^)]*\)`)

// typeAliases folds the engine's alternate spellings onto one canonical
// form. Keys are upper-cased, parameter-stripped type names.
var typeAliases = map[string]string{
	"INT":                         "INTEGER",
	"INT4":                        "INTEGER",
	"SERIAL":                      "INTEGER",
	"INT8":                        "BIGINT",
	"BIGSERIAL":                   "BIGINT",
	"INT2":                        "SMALLINT",
	"FLOAT8":                      "DOUBLE PRECISION",
	"DOUBLE":                      "DOUBLE PRECISION",
	"FLOAT":                       "DOUBLE PRECISION",
	"FLOAT4":                      "REAL",
	"BOOL":                        "BOOLEAN",
	"TIMESTAMPTZ":                 "TIMESTAMP WITH TIME ZONE",
	"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
	"TIMETZ":                      "TIME WITH TIME ZONE",
	"CHARACTER VARYING":           "VARCHAR",
	"BPCHAR":                      "CHAR",
	"CHARACTER":                   "CHAR",
	"DECIMAL":                     "NUMERIC",
}

// NormalizeNativeType canonicalizes a native type string: parameter lists
// are stripped, known aliases fold to one spelling, and the result is
// upper-cased. Unknown types pass through upper-cased rather than failing;
// an unrecognized type must never abort a schema comparison.
func (n *Normalizer) NormalizeNativeType(nativeType string) string {
	s := strings.TrimSpace(nativeType)
	if s == "" {
		return ""
	}

	// Array types: the catalog reports "_text", DDL says "TEXT[]", and the
	// information schema says "ARRAY". Normalize the element and re-attach
	// the suffix.
	if elem, ok := arrayElement(s); ok {
		return n.NormalizeNativeType(elem) + "[]"
	}

	s = parameterList.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToUpper(s)

	if canonical, ok := typeAliases[s]; ok {
		return canonical
	}
	return s
}

func arrayElement(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "_"):
		return s[1:], true
	case strings.HasSuffix(s, "[]"):
		return s[:len(s)-2], true
	case strings.HasSuffix(strings.ToUpper(s), " ARRAY"):
		return s[:len(s)-len(" ARRAY")], true
	}
	return "", false
}

// nativeTags maps canonical native types to their logical column tags.
var nativeTags = map[string]core.ColumnType{
	"UUID":                     core.ColumnUUID,
	"VARCHAR":                  core.ColumnString,
	"CHAR":                     core.ColumnString,
	"TEXT":                     core.ColumnText,
	"SMALLINT":                 core.ColumnInteger,
	"INTEGER":                  core.ColumnInteger,
	"BIGINT":                   core.ColumnBigInt,
	"BOOLEAN":                  core.ColumnBoolean,
	"DATE":                     core.ColumnTimestamp,
	"TIMESTAMP":                core.ColumnTimestamp,
	"TIMESTAMP WITH TIME ZONE": core.ColumnTimestampTZ,
	"JSON":                     core.ColumnJSONB,
	"JSONB":                    core.ColumnJSONB,
	"NUMERIC":                  core.ColumnDecimal,
	"REAL":                     core.ColumnDecimal,
	"DOUBLE PRECISION":         core.ColumnDecimal,
}

// ColumnTypeOf classifies a native type under its logical column tag.
// The input may be in any spelling; it is normalized first. Array types
// classify as arrays regardless of element, and unrecognized types fall
// back to the string tag so comparison stays on the native spelling.
func (n *Normalizer) ColumnTypeOf(nativeType string) core.ColumnType {
	s := n.NormalizeNativeType(nativeType)
	if strings.HasSuffix(s, "[]") {
		return core.ColumnArray
	}
	if tag, ok := nativeTags[s]; ok {
		return tag
	}
	return core.ColumnString
}

// NormalizeDefault canonicalizes a reported default expression for
// comparison. PostgreSQL decorates defaults with cast suffixes
// ("'pending'::character varying") and reports booleans in several
// spellings; both sides must agree before the differ sees them.
// Nil, empty, and literal NULL defaults all normalize to nil.
func (n *Normalizer) NormalizeDefault(value *string, colType core.ColumnType) *string {
	if value == nil {
		return nil
	}

	s := strings.TrimSpace(*value)
	if s == "" || strings.EqualFold(s, "NULL") {
		return nil
	}

	s = stripCastSuffix(s)

	if colType == core.ColumnBoolean {
		switch strings.ToLower(strings.Trim(s, "'")) {
		case "t", "true", "1":
			return core.Def("TRUE")
		case "f", "false", "0":
			return core.Def("FALSE")
		}
	}

	// now() and CURRENT_TIMESTAMP are the same clock read.
	switch strings.ToUpper(s) {
	case "NOW()", "CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP()":
		return core.Def("NOW()")
	}

	return core.Def(s)
}

// stripCastSuffix removes a trailing ::type cast, including casts to
// parameterized types ("::numeric(15,2)").
func stripCastSuffix(s string) string {
	if idx := strings.Index(s, "::"); idx > 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

// NormalizeWhereClause canonicalizes a partial-index predicate. PostgreSQL
// stores predicates fully parenthesized and lower-cased; declared
// predicates usually are not. Comparison only; generated DDL keeps the
// declared spelling.
func (n *Normalizer) NormalizeWhereClause(where string) string {
	s := strings.TrimSpace(where)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balancedParens(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// NormalizeColumn returns a copy of col with its native type and default
// canonicalized. The input is never mutated.
func (n *Normalizer) NormalizeColumn(col core.ColumnDefinition) core.ColumnDefinition {
	out := col
	out.NativeType = n.NormalizeNativeType(col.NativeType)
	out.Default = n.NormalizeDefault(col.Default, col.Type)
	return out
}

// NormalizeIndex returns a copy of idx with its predicate and method
// canonicalized for comparison.
func (n *Normalizer) NormalizeIndex(idx core.IndexDefinition) core.IndexDefinition {
	out := idx
	out.Method = idx.EffectiveMethod()
	out.Where = n.NormalizeWhereClause(idx.Where)
	return out
}
