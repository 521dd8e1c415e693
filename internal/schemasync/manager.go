// Package schemasync orchestrates the sync pipeline: extract the declared
// table shape per model, introspect the live one, diff, generate DDL, and
// apply the approved batch in a single transaction.
package schemasync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tempora/internal/core"
	pg "tempora/internal/dialect/postgres"
	"tempora/internal/diff"
	introspect "tempora/internal/introspect/postgres"
	"tempora/internal/model"
	"tempora/internal/pool"
)

// Options controls one sync run.
type Options struct {
	// AllowDestructive permits drop and narrowing changes. Off by default;
	// gated changes are skipped and logged, never applied silently.
	AllowDestructive bool
	// DryRun plans the full change set without executing anything.
	DryRun bool
}

// TableResult is the planned outcome for one table of one model.
type TableResult struct {
	Model   string
	Table   string
	Changes []core.SchemaChange
	Skipped []core.SchemaChange
}

// Result is the outcome of a sync run. In dry-run mode Applied is always
// zero and Tables still carries the full plan so drift can be audited.
type Result struct {
	Tables  []TableResult
	Applied int
	// Failed maps model names to the introspection error that excluded
	// them from the run. Other models proceed.
	Failed map[string]error
}

// Statements flattens the approved plan into the DDL statements it would
// execute, in application order.
func (r *Result) Statements(gen *pg.Generator) ([]string, error) {
	var out []string
	for _, tr := range r.Tables {
		for i := range tr.Changes {
			sql, err := gen.Generate(&tr.Changes[i])
			if err != nil {
				return nil, err
			}
			out = append(out, pg.SplitStatements(sql)...)
		}
	}
	return out, nil
}

// SkippedCount returns the number of destructive changes held back.
func (r *Result) SkippedCount() int {
	n := 0
	for _, tr := range r.Tables {
		n += len(tr.Skipped)
	}
	return n
}

// Manager drives schema synchronization for a set of model declarations.
type Manager struct {
	db     pool.DB
	intro  *introspect.Introspector
	differ *diff.Differ
	gen    *pg.Generator
	log    *zap.Logger
}

// NewManager builds a manager over the given executor. A nil logger is
// replaced with a no-op one.
func NewManager(db pool.DB, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		db:     db,
		intro:  introspect.New(db),
		differ: diff.NewDiffer(),
		gen:    pg.NewGenerator(),
		log:    log,
	}
}

// Generator exposes the DDL generator so callers can render a plan's
// statements.
func (m *Manager) Generator() *pg.Generator {
	return m.gen
}

// Sync reconciles the database with the declared models and returns the
// number of changes applied. Destructive changes are skipped unless
// opts.AllowDestructive; in dry-run mode the full plan is computed and
// nothing executes. All approved changes across all models run in one
// transaction: either the whole batch lands or none of it does.
func (m *Manager) Sync(ctx context.Context, models []*model.Definition, opts Options) (*Result, error) {
	result := &Result{Failed: map[string]error{}}

	for _, def := range models {
		tables, err := m.planModel(ctx, def, opts)
		if err != nil {
			// Catalog read failures exclude one model and the run goes on;
			// anything else (bad declaration, unsafe diff) aborts the run.
			var ie *introspectError
			if !errors.As(err, &ie) {
				return nil, err
			}
			m.log.Error("skipping model: introspection failed",
				zap.String("model", def.Name),
				zap.Error(ie.err))
			result.Failed[def.Name] = ie.err
			continue
		}
		result.Tables = append(result.Tables, tables...)
	}

	if opts.DryRun {
		m.logPlan(result, opts)
		return result, nil
	}

	statements, err := result.Statements(m.gen)
	if err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		m.log.Info("schema in sync, nothing to apply",
			zap.Int("skipped", result.SkippedCount()))
		return result, nil
	}

	err = m.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		for _, stmt := range statements {
			if _, execErr := tx.Exec(ctx, stmt); execErr != nil {
				return fmt.Errorf("failed to apply schema change: %w\n  Statement: %s", execErr, stmt)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Applied = plannedCount(result)
	m.log.Info("schema sync applied",
		zap.Int("changes", result.Applied),
		zap.Int("statements", len(statements)),
		zap.Int("skipped", result.SkippedCount()))
	return result, nil
}

// planModel computes the change plan for a model's primary table and its
// auxiliary tables.
func (m *Manager) planModel(ctx context.Context, def *model.Definition, opts Options) ([]TableResult, error) {
	desired, err := model.Extract(def)
	if err != nil {
		return nil, err
	}

	aux, err := model.AuxiliaryTables(def)
	if err != nil {
		return nil, err
	}
	targets := append([]*core.TableDefinition{desired}, aux...)

	var out []TableResult
	for _, target := range targets {
		current, err := m.intro.TableSchema(ctx, target.Name, target.Schema)
		if err != nil {
			return nil, &introspectError{table: target.QualifiedName(), err: err}
		}

		changes, err := m.differ.Diff(target, current)
		if err != nil {
			return nil, err
		}

		tr := TableResult{Model: def.Name, Table: target.QualifiedName()}
		for _, change := range changes {
			if change.Destructive && !opts.AllowDestructive {
				m.log.Warn("skipping destructive change",
					zap.String("model", def.Name),
					zap.String("table", tr.Table),
					zap.String("change", change.String()))
				tr.Skipped = append(tr.Skipped, change)
				continue
			}
			tr.Changes = append(tr.Changes, change)
		}
		out = append(out, tr)
	}
	return out, nil
}

func (m *Manager) logPlan(result *Result, opts Options) {
	for _, tr := range result.Tables {
		for _, change := range tr.Changes {
			m.log.Info("planned change",
				zap.String("model", tr.Model),
				zap.String("table", tr.Table),
				zap.String("change", change.String()))
		}
	}
	m.log.Info("dry run complete",
		zap.Int("planned", plannedCount(result)),
		zap.Int("skipped", result.SkippedCount()),
		zap.Bool("allow_destructive", opts.AllowDestructive))
}

func plannedCount(result *Result) int {
	n := 0
	for _, tr := range result.Tables {
		n += len(tr.Changes)
	}
	return n
}

// introspectError marks a catalog read failure so the run can skip the
// affected model instead of aborting.
type introspectError struct {
	table string
	err   error
}

func (e *introspectError) Error() string {
	return fmt.Sprintf("failed to introspect %s: %v", e.table, e.err)
}

func (e *introspectError) Unwrap() error { return e.err }
