package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/pool"
)

// noneStrategy keeps current state only. Updates overwrite in place and
// concurrent writers resolve last-writer-wins; that is its defined,
// deliberately weaker contract.
type noneStrategy struct {
	base
}

func (s *noneStrategy) Create(ctx context.Context, data Record, actor *uuid.UUID) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}
	columns, values, err := s.writeValues(data)
	if err != nil {
		return nil, err
	}

	columns = append(columns, "id", "created_by", "updated_by")
	values = append(values, uuid.New().String(), actorValue(actor), actorValue(actor))
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
		s.log.Error("create failed", zap.String("model", s.def.Name), zap.Error(err))
		return nil, fmt.Errorf("failed to create %s: %w", s.def.Name, err)
	}
	return recordOf(row), nil
}

func (s *noneStrategy) Update(ctx context.Context, id uuid.UUID, data Record, actor *uuid.UUID) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}
	columns, values, err := s.writeValues(data)
	if err != nil {
		return nil, err
	}

	columns = append(columns, "updated_at", "updated_by")
	values = append(values, s.now(), actorValue(actor))

	where := append(s.idConditions(id), s.aliveCondition(false)...)
	sql, params := s.qb.BuildUpdate(s.schema(), s.table(), columns, values, where, true)

	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		s.log.Error("update failed",
			zap.String("model", s.def.Name),
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update %s: %w", s.def.Name, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, s.def.Name, id)
	}
	return recordOf(row), nil
}

func (s *noneStrategy) Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	if err := s.requireTenant(); err != nil {
		return false, err
	}

	if !s.def.SoftDelete {
		sql := fmt.Sprintf("DELETE FROM %s", s.qb.QualifyTable(s.schema(), s.table()))
		fragment, params := s.qb.BuildWhere(s.idConditions(id), 1)
		affected, err := s.db.Exec(ctx, sql+" WHERE "+fragment, params...)
		if err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", s.def.Name, err)
		}
		return affected > 0, nil
	}

	columns := []string{"deleted_at", "deleted_by", "updated_at", "updated_by"}
	values := []any{s.now(), actorValue(actor), s.now(), actorValue(actor)}
	where := append(s.idConditions(id), pg.Eq("deleted_at", nil))

	sql, params := s.qb.BuildUpdate(s.schema(), s.table(), columns, values, where, false)
	affected, err := s.db.Exec(ctx, sql, params...)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", s.def.Name, err)
	}
	return affected > 0, nil
}

func (s *noneStrategy) Restore(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (Record, error) {
	if !s.def.SoftDelete {
		return nil, ErrRestoreUnsupported
	}
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	columns := []string{"deleted_at", "deleted_by", "updated_at", "updated_by"}
	values := []any{nil, nil, s.now(), actorValue(actor)}
	where := append(s.idConditions(id), pg.Condition{Field: "deleted_at", Op: pg.OpNe, Value: nil})

	sql, params := s.qb.BuildUpdate(s.schema(), s.table(), columns, values, where, true)
	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", s.def.Name, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, s.def.Name, id)
	}
	return recordOf(row), nil
}

func (s *noneStrategy) Get(ctx context.Context, id uuid.UUID, opts ReadOptions) (Record, error) {
	if opts.AsOf != nil {
		return nil, ErrAsOfUnsupported
	}
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds := append(s.idConditions(id), s.aliveCondition(opts.IncludeDeleted)...)
	sql, params := s.selectSQL(conds, "", "")
	row, err := s.db.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.def.Name, err)
	}
	return recordOf(row), nil
}

func (s *noneStrategy) List(ctx context.Context, filters map[string]any, opts ReadOptions) ([]Record, error) {
	if opts.AsOf != nil {
		return nil, ErrAsOfUnsupported
	}
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds, err := s.filterConditions(filters)
	if err != nil {
		return nil, err
	}
	conds = append(conds, s.tenantConditions()...)
	conds = append(conds, s.aliveCondition(opts.IncludeDeleted)...)

	sql, params := s.selectSQL(conds, `"created_at"`, "")
	rows, err := s.db.FetchAll(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.def.Name, err)
	}
	return recordsOf(rows), nil
}

func (s *noneStrategy) Count(ctx context.Context, filters map[string]any) (int64, error) {
	if err := s.requireTenant(); err != nil {
		return 0, err
	}

	conds, err := s.filterConditions(filters)
	if err != nil {
		return 0, err
	}
	conds = append(conds, s.tenantConditions()...)
	conds = append(conds, s.aliveCondition(false)...)
	return s.countWhere(ctx, conds)
}
