package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/pool"
)

// FieldChange is one field's difference between two versions.
type FieldChange struct {
	From any
	To   any
}

// scd2Strategy keeps every version as its own row. Exactly one row per
// logical id has valid_to NULL; the unique partial index enforces that
// even if two writers race past the close-and-insert protocol.
type scd2Strategy struct {
	base
}

func (s *scd2Strategy) Create(ctx context.Context, data Record, actor *uuid.UUID) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}
	columns, values, err := s.writeValues(data)
	if err != nil {
		return nil, err
	}

	columns = append(columns, "id", "version", "valid_from", "created_by", "updated_by")
	values = append(values, uuid.New().String(), 1, s.now(), actorValue(actor), actorValue(actor))
	if s.def.MultiTenant {
		columns = append(columns, s.def.TenantColumn())
		values = append(values, s.tenant.String())
	}

	sql, params := s.qb.BuildInsert(s.schema(), s.table(), columns, values, true)
	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		if pool.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, s.def.Name)
		}
		return nil, fmt.Errorf("failed to create %s: %w", s.def.Name, err)
	}
	return recordOf(row), nil
}

func (s *scd2Strategy) Update(ctx context.Context, id uuid.UUID, data Record, actor *uuid.UUID) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}
	if _, _, err := s.writeValues(data); err != nil {
		return nil, err
	}

	var updated Record
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.closeCurrent(ctx, tx, id)
		if err != nil {
			return err
		}
		row, err := s.insertNextVersion(ctx, tx, current, data, actor, nil)
		if err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		err = writeConflict(err)
		s.log.Error("versioned update failed",
			zap.String("model", s.def.Name),
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, err
	}
	return updated, nil
}

func (s *scd2Strategy) Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	if err := s.requireTenant(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.closeCurrent(ctx, tx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		// Without soft delete the close is terminal: the history stays but
		// no current version remains. With it, a tombstone version records
		// who deleted and when.
		if s.def.SoftDelete {
			deletedAt := s.now()
			if _, err := s.insertNextVersion(ctx, tx, current, Record{}, actor, &deletedAt); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	return deleted, writeConflict(err)
}

func (s *scd2Strategy) Restore(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (Record, error) {
	if !s.def.SoftDelete {
		return nil, ErrRestoreUnsupported
	}
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	var restored Record
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.closeCurrent(ctx, tx, id)
		if err != nil {
			return err
		}
		if current["deleted_at"] == nil {
			return fmt.Errorf("%w: %s %s is not deleted", ErrNotFound, s.def.Name, id)
		}
		row, err := s.insertNextVersion(ctx, tx, current, Record{}, actor, nil)
		if err != nil {
			return err
		}
		restored = row
		return nil
	})
	if err != nil {
		return nil, writeConflict(err)
	}
	return restored, nil
}

func (s *scd2Strategy) Get(ctx context.Context, id uuid.UUID, opts ReadOptions) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds := s.idConditions(id)
	if opts.AsOf == nil {
		conds = append(conds, pg.Eq("valid_to", nil))
	}
	if s.def.SoftDelete && !opts.IncludeDeleted {
		conds = append(conds, pg.Eq("deleted_at", nil))
	}

	sql, params := s.selectSQL(conds, "", "")
	sql, params = s.applyAsOf(sql, params, opts.AsOf)

	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.def.Name, err)
	}
	return recordOf(row), nil
}

func (s *scd2Strategy) List(ctx context.Context, filters map[string]any, opts ReadOptions) ([]Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds, err := s.filterConditions(filters)
	if err != nil {
		return nil, err
	}
	conds = append(conds, s.tenantConditions()...)
	if opts.AsOf == nil {
		conds = append(conds, pg.Eq("valid_to", nil))
	}
	if s.def.SoftDelete && !opts.IncludeDeleted {
		conds = append(conds, pg.Eq("deleted_at", nil))
	}

	sql, params := s.selectSQL(conds, `"created_at"`, "")
	sql, params = s.applyAsOf(sql, params, opts.AsOf)

	rows, err := s.db.FetchAll(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.def.Name, err)
	}
	return recordsOf(rows), nil
}

func (s *scd2Strategy) Count(ctx context.Context, filters map[string]any) (int64, error) {
	if err := s.requireTenant(); err != nil {
		return 0, err
	}

	conds, err := s.filterConditions(filters)
	if err != nil {
		return 0, err
	}
	conds = append(conds, s.tenantConditions()...)
	conds = append(conds, pg.Eq("valid_to", nil))
	if s.def.SoftDelete {
		conds = append(conds, pg.Eq("deleted_at", nil))
	}
	return s.countWhere(ctx, conds)
}

// GetVersionHistory returns every version of a logical record in version
// order, including closed and tombstone versions.
func (s *scd2Strategy) GetVersionHistory(ctx context.Context, id uuid.UUID) ([]Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	sql, params := s.selectSQL(s.idConditions(id), `"version"`, "")
	rows, err := s.db.FetchAll(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to read version history of %s %s: %w", s.def.Name, id, err)
	}
	return recordsOf(rows), nil
}

// GetVersion returns one specific version of a record, or nil.
func (s *scd2Strategy) GetVersion(ctx context.Context, id uuid.UUID, version int) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds := append(s.idConditions(id), pg.Eq("version", version))
	sql, params := s.selectSQL(conds, "", "")
	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to get version %d of %s %s: %w", version, s.def.Name, id, err)
	}
	return recordOf(row), nil
}

// CompareVersions returns the declared fields whose values differ between
// two versions of one record.
func (s *scd2Strategy) CompareVersions(ctx context.Context, id uuid.UUID, v1, v2 int) (map[string]FieldChange, error) {
	from, err := s.GetVersion(ctx, id, v1)
	if err != nil {
		return nil, err
	}
	to, err := s.GetVersion(ctx, id, v2)
	if err != nil {
		return nil, err
	}
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: %s %s versions %d/%d", ErrNotFound, s.def.Name, id, v1, v2)
	}

	diff := map[string]FieldChange{}
	for i := range s.def.Fields {
		name := s.def.Fields[i].Name
		if !equalValues(from[name], to[name]) {
			diff[name] = FieldChange{From: from[name], To: to[name]}
		}
	}
	return diff, nil
}

// closeCurrent ends the validity of the current version and returns it.
// The UPDATE takes the row lock, so a concurrent closer blocks here; when
// it resumes and finds nothing left to close, the existence probe decides
// between a missing record and a lost race.
func (s *scd2Strategy) closeCurrent(ctx context.Context, tx pool.DB, id uuid.UUID) (Record, error) {
	where := append(s.idConditions(id), pg.Eq("valid_to", nil))
	sql, params := s.qb.BuildUpdate(s.schema(), s.table(), []string{"valid_to"}, []any{s.now()}, where, true)

	row, err := tx.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to close current version of %s %s: %w", s.def.Name, id, err)
	}
	if row != nil {
		return recordOf(row), nil
	}

	fragment, existParams := s.qb.BuildWhere(s.idConditions(id), 1)
	existsSQL := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)",
		s.qb.QualifyTable(s.schema(), s.table()), fragment)
	v, err := tx.FetchValue(ctx, existsSQL, existParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s %s: %w", s.def.Name, id, err)
	}
	if truthy(v) {
		return nil, fmt.Errorf("%w: %s %s", ErrVersionConflict, s.def.Name, id)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNotFound, s.def.Name, id)
}

// insertNextVersion writes the successor of current: declared fields carry
// over unless overridden by data, the version increments, and the new row
// becomes current. A unique violation on the current-version index means
// another writer won the race.
func (s *scd2Strategy) insertNextVersion(ctx context.Context, tx pool.DB, current Record, data Record, actor *uuid.UUID, deletedAt *time.Time) (Record, error) {
	merged := Record{}
	for i := range s.def.Fields {
		name := s.def.Fields[i].Name
		if v, ok := data[name]; ok {
			merged[name] = v
		} else if v, ok := current[name]; ok {
			merged[name] = v
		}
	}

	columns, values, err := s.writeValues(merged)
	if err != nil {
		return nil, err
	}

	columns = append(columns, "id", "version", "valid_from",
		"created_at", "created_by", "updated_at", "updated_by")
	values = append(values, current["id"], asInt64(current["version"])+1, s.now(),
		current["created_at"], current["created_by"], s.now(), actorValue(actor))

	if s.def.MultiTenant {
		columns = append(columns, s.def.TenantColumn())
		values = append(values, s.tenant.String())
	}
	if s.def.SoftDelete {
		columns = append(columns, "deleted_at", "deleted_by")
		if deletedAt != nil {
			values = append(values, *deletedAt, actorValue(actor))
		} else {
			values = append(values, nil, nil)
		}
	}

	sql, params := s.qb.BuildInsert(s.schema(), s.table(), columns, values, true)
	row, err := tx.FetchOne(ctx, sql, params...)
	if err != nil {
		if pool.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s %v", ErrVersionConflict, s.def.Name, current["id"])
		}
		return nil, fmt.Errorf("failed to insert new version of %s: %w", s.def.Name, err)
	}
	return recordOf(row), nil
}

// applyAsOf appends the validity-interval predicate for point-in-time
// reads: the interval containing t is valid_from <= t < valid_to, with an
// open end for the current version.
func (s *scd2Strategy) applyAsOf(sql string, params []any, asOf *time.Time) (string, []any) {
	if asOf == nil {
		return sql, params
	}
	n := len(params)
	clause := fmt.Sprintf(`"valid_from" <= $%d AND ("valid_to" > $%d OR "valid_to" IS NULL)`, n+1, n+2)

	// The SELECT may or may not already carry a WHERE clause, and an ORDER
	// BY must stay behind the predicate.
	return insertPredicate(sql, clause), append(params, *asOf, *asOf)
}

func insertPredicate(sql, clause string) string {
	head, tail := sql, ""
	if i := strings.Index(sql, " ORDER BY "); i >= 0 {
		head, tail = sql[:i], sql[i:]
	}
	if strings.Contains(head, " WHERE ") {
		return head + " AND " + clause + tail
	}
	return head + " WHERE " + clause + tail
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "t" || b == "true"
	}
	return false
}
