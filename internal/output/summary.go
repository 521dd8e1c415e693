package output

import (
	"fmt"
	"strings"

	"tempora/internal/core"
	"tempora/internal/schemasync"
)

type summaryFormatter struct{}

// FormatResult formats a sync result as a compact summary.
// Example output:
//
//	Tables:  2 planned, 1 skipped
//	Changes: +1 table, +2 cols, -0 cols
func (summaryFormatter) FormatResult(r *schemasync.Result) (string, error) {
	if r == nil || (len(r.Tables) == 0 && len(r.Failed) == 0) {
		return "No changes detected.\n", nil
	}

	var sb strings.Builder
	sb.WriteString("Sync Summary\n")
	sb.WriteString("============\n\n")

	planned, skipped := 0, 0
	counts := map[core.ChangeKind]int{}
	for _, tr := range r.Tables {
		planned += len(tr.Changes)
		skipped += len(tr.Skipped)
		for i := range tr.Changes {
			counts[tr.Changes[i].Kind]++
		}
	}

	fmt.Fprintf(&sb, "Tables:  %d\n", len(r.Tables))
	fmt.Fprintf(&sb, "Changes: %d planned, %d skipped, %d applied\n", planned, skipped, r.Applied)

	writeKindCounts(&sb, counts)
	writeTableDetails(&sb, r)

	if len(r.Failed) > 0 {
		fmt.Fprintf(&sb, "\nFailed models: %d\n", len(r.Failed))
		for _, name := range failedModels(r) {
			fmt.Fprintf(&sb, "   - %s: %v\n", name, r.Failed[name])
		}
	}
	return sb.String(), nil
}

// kindOrder fixes the rendering order so output is stable run to run.
var kindOrder = []core.ChangeKind{
	core.CreateTable, core.DropTable,
	core.AddColumn, core.DropColumn,
	core.AlterColumnType, core.AlterColumnNull,
	core.AddIndex, core.DropIndex,
	core.AddConstraint,
}

func writeKindCounts(sb *strings.Builder, counts map[core.ChangeKind]int) {
	if len(counts) == 0 {
		return
	}
	sb.WriteString("\nBy kind:\n")
	for _, kind := range kindOrder {
		if n := counts[kind]; n > 0 {
			fmt.Fprintf(sb, "  %-25s %d\n", string(kind), n)
		}
	}
}

func writeTableDetails(sb *strings.Builder, r *schemasync.Result) {
	wrote := false
	for _, tr := range r.Tables {
		if len(tr.Changes) == 0 && len(tr.Skipped) == 0 {
			continue
		}
		if !wrote {
			sb.WriteString("\nDetails:\n")
			wrote = true
		}
		fmt.Fprintf(sb, "  ~ %s (%s)\n", tr.Table, countTableChanges(&tr))
	}
}

// countTableChanges returns a human-readable change count for one table.
func countTableChanges(tr *schemasync.TableResult) string {
	var parts []string
	if creates(tr.Changes) {
		parts = append(parts, "new table")
	}
	if n := countKind(tr.Changes, core.AddColumn); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d cols", n))
	}
	if n := countKind(tr.Changes, core.AlterColumnType) + countKind(tr.Changes, core.AlterColumnNull); n > 0 {
		parts = append(parts, fmt.Sprintf("~%d cols", n))
	}
	if n := countKind(tr.Changes, core.DropColumn); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d cols", n))
	}
	if n := countKind(tr.Changes, core.AddIndex); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d idx", n))
	}
	if n := countKind(tr.Changes, core.DropIndex); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d idx", n))
	}
	if n := len(tr.Skipped); n > 0 {
		parts = append(parts, fmt.Sprintf("%d held back", n))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

func creates(changes []core.SchemaChange) bool {
	for i := range changes {
		if changes[i].Kind == core.CreateTable {
			return true
		}
	}
	return false
}

func countKind(changes []core.SchemaChange, kind core.ChangeKind) int {
	n := 0
	for i := range changes {
		if changes[i].Kind == kind {
			n++
		}
	}
	return n
}
