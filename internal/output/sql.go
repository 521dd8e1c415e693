package output

import (
	"strings"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/schemasync"
)

type sqlFormatter struct {
	gen *pg.Generator
}

// FormatResult renders the approved plan as executable SQL. Destructive
// changes held back by the gate appear as comments so the script stays safe
// to pipe into psql as is.
func (f sqlFormatter) FormatResult(r *schemasync.Result) (string, error) {
	if r == nil {
		return "-- no changes\n", nil
	}

	statements, err := r.Statements(f.gen)
	if err != nil {
		return "", err
	}
	statements = normalizeStatements(statements)

	var sb strings.Builder
	if len(statements) == 0 {
		sb.WriteString("-- schema in sync, nothing to do\n")
	}
	for _, stmt := range statements {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	for _, tr := range r.Tables {
		for i := range tr.Skipped {
			sb.WriteString("-- skipped (destructive): ")
			sb.WriteString(tr.Skipped[i].String())
			sb.WriteString("\n")
		}
	}
	for _, name := range failedModels(r) {
		sb.WriteString("-- failed: ")
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(r.Failed[name].Error())
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
