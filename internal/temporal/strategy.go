// Package temporal implements the write-time versioning strategies and the
// repository façade over them. A strategy decides what a create, update, or
// delete does to history: nothing (none), a field-level audit trail
// (copy_on_change), or full row versioning (scd2). Correctness under
// concurrent writers rests on database row locks and constraints, never on
// in-process locks, so it holds across processes.
package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/model"
	"tempora/internal/pool"
)

// Record is one logical record keyed by column name, as fetched from or
// written to the model's table.
type Record = map[string]any

// ReadOptions modifies Get and List behavior.
type ReadOptions struct {
	// AsOf asks for the version valid at that instant. Only scd2 supports
	// it; other strategies return ErrAsOfUnsupported.
	AsOf *time.Time
	// IncludeDeleted includes soft-deleted records in the result.
	IncludeDeleted bool
}

// Strategy is the per-model write behavior. Get returns (nil, nil) when no
// record matches; write operations on a missing record return ErrNotFound.
type Strategy interface {
	Create(ctx context.Context, data Record, actor *uuid.UUID) (Record, error)
	Update(ctx context.Context, id uuid.UUID, data Record, actor *uuid.UUID) (Record, error)
	Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error)
	Restore(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (Record, error)
	Get(ctx context.Context, id uuid.UUID, opts ReadOptions) (Record, error)
	List(ctx context.Context, filters map[string]any, opts ReadOptions) ([]Record, error)
	Count(ctx context.Context, filters map[string]any) (int64, error)
}

// NewStrategy selects the implementation declared by the model.
func NewStrategy(db pool.DB, def *model.Definition, tenant *uuid.UUID, log *zap.Logger) (Strategy, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	b := base{
		db:     db,
		def:    def,
		qb:     pg.NewQueryBuilder(),
		tenant: tenant,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}

	switch def.Strategy {
	case model.StrategyNone:
		return &noneStrategy{base: b}, nil
	case model.StrategyCopyOnChange:
		return &copyOnChangeStrategy{base: b}, nil
	case model.StrategySCD2:
		return &scd2Strategy{base: b}, nil
	}
	return nil, &model.ConfigError{Model: def.Name, Reason: fmt.Sprintf("unknown strategy %q", def.Strategy)}
}

// base carries what every strategy shares: the executor, the model, the
// query builder, the bound tenant, and an injectable clock.
type base struct {
	db     pool.DB
	def    *model.Definition
	qb     *pg.QueryBuilder
	tenant *uuid.UUID
	log    *zap.Logger
	now    func() time.Time
}

func (b *base) table() string  { return b.def.Table }
func (b *base) schema() string { return b.def.TableSchema() }

// requireTenant enforces tenant binding before any SQL is issued on a
// multi-tenant model.
func (b *base) requireTenant() error {
	if b.def.MultiTenant && b.tenant == nil {
		return ErrTenantRequired
	}
	return nil
}

// idConditions are the WHERE predicates addressing one logical record,
// including the tenant filter on multi-tenant models. Every read and write
// goes through this, so a bound tenant can never touch another tenant's
// rows.
func (b *base) idConditions(id uuid.UUID) []pg.Condition {
	conds := []pg.Condition{pg.Eq("id", id.String())}
	if b.def.MultiTenant {
		conds = append(conds, pg.Eq(b.def.TenantColumn(), b.tenant.String()))
	}
	return conds
}

func (b *base) tenantConditions() []pg.Condition {
	if !b.def.MultiTenant {
		return nil
	}
	return []pg.Condition{pg.Eq(b.def.TenantColumn(), b.tenant.String())}
}

// aliveCondition hides soft-deleted rows unless asked for.
func (b *base) aliveCondition(includeDeleted bool) []pg.Condition {
	if !b.def.SoftDelete || includeDeleted {
		return nil
	}
	return []pg.Condition{pg.Eq("deleted_at", nil)}
}

// writeValues serializes user data into parallel column/value slices in
// model declaration order. Keys the model does not declare are rejected
// before any SQL is issued.
func (b *base) writeValues(data Record) ([]string, []any, error) {
	for key := range data {
		if b.def.FindField(key) == nil {
			return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, b.def.Name, key)
		}
	}

	var columns []string
	var values []any
	for i := range b.def.Fields {
		f := &b.def.Fields[i]
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		serialized, err := serializeValue(f, v)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, f.Name)
		values = append(values, serialized)
	}
	return columns, values, nil
}

// serializeValue converts a field value into its driver representation.
// Document fields marshal to JSON text; everything else binds directly
// (slices are array-adapted by the query builder).
func serializeValue(f *model.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Type == model.FieldJSON {
		switch v.(type) {
		case string, []byte:
			return v, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize field %s: %w", f.Name, err)
		}
		return string(encoded), nil
	}
	return v, nil
}

// selectSQL renders a SELECT * with the given conditions. orderBy and
// suffix (LIMIT, FOR UPDATE) are appended verbatim by callers that need
// them; column identifiers inside conditions are quoted by the builder.
func (b *base) selectSQL(conds []pg.Condition, orderBy, suffix string) (string, []any) {
	sql := fmt.Sprintf("SELECT * FROM %s", b.qb.QualifyTable(b.schema(), b.table()))
	fragment, params := b.qb.BuildWhere(conds, 1)
	if fragment != "" {
		sql += " WHERE " + fragment
	}
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	if suffix != "" {
		sql += " " + suffix
	}
	return sql, params
}

// filterConditions converts repository-style filters ("price__gte": 10)
// into conditions, validating every referenced field against the model and
// its strategy columns.
func (b *base) filterConditions(filters map[string]any) ([]pg.Condition, error) {
	// Deterministic SQL for identical filters, regardless of map order.
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var conds []pg.Condition
	for _, key := range keys {
		field, op := pg.ParseFilterKey(key)
		if !b.filterable(field) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, b.def.Name, field)
		}
		conds = append(conds, pg.Condition{Field: field, Op: op, Value: filters[key]})
	}
	return conds, nil
}

// filterable reports whether a column may appear in List/Count filters:
// declared fields plus the bookkeeping columns the strategy maintains.
func (b *base) filterable(column string) bool {
	if b.def.FindField(column) != nil {
		return true
	}
	switch strings.ToLower(column) {
	case "id", "created_at", "updated_at", "created_by", "updated_by":
		return true
	case "deleted_at", "deleted_by":
		return b.def.SoftDelete
	case "version", "valid_from", "valid_to":
		return b.def.Strategy == model.StrategySCD2
	}
	return b.def.MultiTenant && column == b.def.TenantColumn()
}

// writeConflict maps a serialization failure (SQLSTATE 40001, two writers
// racing under a stricter isolation level) onto ErrVersionConflict. Other
// errors, including nil, pass through.
func writeConflict(err error) error {
	if pool.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	return err
}

// recordOf adapts a fetched row; nil stays nil.
func recordOf(row pool.Row) Record {
	if row == nil {
		return nil
	}
	return Record(row)
}

func recordsOf(rows []pool.Row) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record(row)
	}
	return out
}

// actorValue renders an actor id for a nullable *_by column.
func actorValue(actor *uuid.UUID) any {
	if actor == nil {
		return nil
	}
	return actor.String()
}

// countWhere runs SELECT COUNT(*) with the given conditions.
func (b *base) countWhere(ctx context.Context, conds []pg.Condition) (int64, error) {
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", b.qb.QualifyTable(b.schema(), b.table()))
	fragment, params := b.qb.BuildWhere(conds, 1)
	if fragment != "" {
		sql += " WHERE " + fragment
	}

	v, err := b.db.FetchValue(ctx, sql, params...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", b.def.Name, err)
	}
	return asInt64(v), nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case string:
		var parsed int64
		fmt.Sscan(n, &parsed)
		return parsed
	}
	return 0
}
