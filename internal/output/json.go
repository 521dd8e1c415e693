package output

import (
	"encoding/json"
	"sort"

	"tempora/internal/core"
	pg "tempora/internal/dialect/postgres"
	"tempora/internal/schemasync"
)

type jsonFormatter struct {
	gen *pg.Generator
}

type resultSummary struct {
	Tables    int `json:"tables"`
	Planned   int `json:"planned"`
	Skipped   int `json:"skipped"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Statement int `json:"statements"`
}

type tablePayload struct {
	Model   string              `json:"model"`
	Table   string              `json:"table"`
	Changes []core.SchemaChange `json:"changes,omitempty"`
	Skipped []core.SchemaChange `json:"skipped,omitempty"`
}

type resultPayload struct {
	Format     string            `json:"format"`
	Summary    resultSummary     `json:"summary"`
	Tables     []tablePayload    `json:"tables,omitempty"`
	Statements []string          `json:"statements,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// FormatResult renders the full plan, skip list, and failures as indented
// JSON for machine consumption.
func (f jsonFormatter) FormatResult(r *schemasync.Result) (string, error) {
	payload := resultPayload{Format: string(FormatJSON)}
	if r != nil {
		statements, err := r.Statements(f.gen)
		if err != nil {
			return "", err
		}
		statements = normalizeStatements(statements)

		planned := 0
		for _, tr := range r.Tables {
			planned += len(tr.Changes)
			payload.Tables = append(payload.Tables, tablePayload{
				Model:   tr.Model,
				Table:   tr.Table,
				Changes: tr.Changes,
				Skipped: tr.Skipped,
			})
		}
		if len(r.Failed) > 0 {
			payload.Failures = make(map[string]string, len(r.Failed))
			for name, err := range r.Failed {
				payload.Failures[name] = err.Error()
			}
		}

		payload.Statements = statements
		payload.Summary = resultSummary{
			Tables:    len(r.Tables),
			Planned:   planned,
			Skipped:   r.SkippedCount(),
			Applied:   r.Applied,
			Failed:    len(r.Failed),
			Statement: len(statements),
		}
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func failedModels(r *schemasync.Result) []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
