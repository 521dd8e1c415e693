package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QueryBuilder renders parameterized DML fragments for the temporal layer.
// Every identifier that passes through it is quoted unconditionally; this
// is the single enforcement point keeping reserved-keyword field names
// ("order", "user", "select") valid everywhere above it.
type QueryBuilder struct {
	gen *Generator
}

// NewQueryBuilder initializes a query builder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{gen: NewGenerator()}
}

// QuoteIdentifier quotes one identifier.
func (qb *QueryBuilder) QuoteIdentifier(name string) string {
	return qb.gen.QuoteIdentifier(name)
}

// QualifyTable renders a quoted schema-qualified table reference.
func (qb *QueryBuilder) QualifyTable(schema, table string) string {
	return qb.gen.QualifyTable(schema, table)
}

// BuildInsert renders an INSERT for the given columns. Values are passed
// through in column order; slices are adapted with pq.Array. When
// returning is true the statement ends with RETURNING *.
func (qb *QueryBuilder) BuildInsert(schema, table string, columns []string, values []any, returning bool) (string, []any) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	params := make([]any, len(values))
	for i, col := range columns {
		quoted[i] = qb.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	for i, v := range values {
		params[i] = adaptParam(v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qb.QualifyTable(schema, table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))
	if returning {
		sql += " RETURNING *"
	}
	return sql, params
}

// BuildUpdate renders an UPDATE ... SET ... WHERE statement. Placeholder
// numbering continues from the SET list into the WHERE conditions.
func (qb *QueryBuilder) BuildUpdate(schema, table string, setColumns []string, setValues []any, where []Condition, returning bool) (string, []any) {
	sets := make([]string, len(setColumns))
	params := make([]any, 0, len(setValues)+len(where))
	for i, col := range setColumns {
		sets[i] = fmt.Sprintf("%s = $%d", qb.QuoteIdentifier(col), i+1)
		params = append(params, adaptParam(setValues[i]))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s",
		qb.QualifyTable(schema, table), strings.Join(sets, ", "))

	fragment, whereParams := qb.BuildWhere(where, len(setColumns)+1)
	if fragment != "" {
		sql += " WHERE " + fragment
	}
	params = append(params, whereParams...)

	if returning {
		sql += " RETURNING *"
	}
	return sql, params
}

// Op is a comparison operator in a WHERE condition.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Condition is one WHERE predicate. A nil Value with OpEq renders IS NULL
// (and IS NOT NULL for OpNe); a slice value with OpEq renders = ANY($n).
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

// BuildWhere renders an AND-joined condition list. startIndex is the first
// placeholder number to use, so fragments compose with preceding SET lists.
func (qb *QueryBuilder) BuildWhere(conditions []Condition, startIndex int) (string, []any) {
	if len(conditions) == 0 {
		return "", nil
	}

	var parts []string
	var params []any
	next := startIndex

	for _, c := range conditions {
		field := qb.QuoteIdentifier(c.Field)

		if c.Value == nil {
			switch c.Op {
			case OpNe:
				parts = append(parts, field+" IS NOT NULL")
			default:
				parts = append(parts, field+" IS NULL")
			}
			continue
		}

		if isSlice(c.Value) && (c.Op == OpEq || c.Op == "") {
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", field, next))
			params = append(params, pq.Array(c.Value))
			next++
			continue
		}

		op := c.Op
		if op == "" {
			op = OpEq
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", field, op, next))
		params = append(params, adaptParam(c.Value))
		next++
	}

	return strings.Join(parts, " AND "), params
}

// filter-key suffixes, matching the convention the repository's List
// filters use: "price__gte" means price >= value.
var filterSuffixes = []struct {
	suffix string
	op     Op
}{
	{"__gte", OpGte},
	{"__lte", OpLte},
	{"__gt", OpGt},
	{"__lt", OpLt},
	{"__ne", OpNe},
}

// ParseFilterKey splits a filter key into its field name and operator.
func ParseFilterKey(key string) (field string, op Op) {
	for _, fs := range filterSuffixes {
		if strings.HasSuffix(key, fs.suffix) && len(key) > len(fs.suffix) {
			return key[:len(key)-len(fs.suffix)], fs.op
		}
	}
	return key, OpEq
}

func isSlice(v any) bool {
	switch v.(type) {
	case []string, []int, []int64, []float64, []any:
		return true
	}
	return false
}

// adaptParam wraps slice values with pq.Array so they bind to array
// columns; everything else passes through.
func adaptParam(v any) any {
	if isSlice(v) {
		return pq.Array(v)
	}
	return v
}
