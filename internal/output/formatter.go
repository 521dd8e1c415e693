// Package output renders a sync plan in one of several formats. It is
// extendable and for now provides three: SQL, JSON, and a compact summary.
package output

import (
	"fmt"
	"strings"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/schemasync"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatSQL     Format = "sql"
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// Formatter renders a planned or applied sync result.
type Formatter interface {
	FormatResult(*schemasync.Result) (string, error)
}

// NewFormatter creates a Formatter by name. An empty name defaults to SQL.
func NewFormatter(name string, gen *pg.Generator) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatSQL:
		return sqlFormatter{gen: gen}, nil
	case FormatJSON:
		return jsonFormatter{gen: gen}, nil
	case FormatSummary:
		return summaryFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'sql', 'json', or 'summary'", name)
	}
}

func normalizeStatements(stmts []string) []string {
	var out []string
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if !strings.HasSuffix(stmt, ";") {
			stmt += ";"
		}
		out = append(out, stmt)
	}
	return out
}
