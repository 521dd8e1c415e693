package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pg "tempora/internal/dialect/postgres"
	"tempora/internal/pool"
)

// AuditEntry is one field-level change recorded by the copy_on_change
// strategy. Old and new values round-trip through JSON, so they come back
// as decoded documents (numbers as float64).
type AuditEntry struct {
	AuditID   string
	RecordID  string
	FieldName string
	OldValue  any
	NewValue  any
	Operation string
	ChangedAt time.Time
	ChangedBy *string
	TenantID  *string
}

// copyOnChangeStrategy keeps current state in the main table and a
// field-level trail in {table}_audit. The row lock taken during update
// holds across diff and audit writes, so two concurrent updaters serialize
// and the second one diffs against the first one's committed values.
type copyOnChangeStrategy struct {
	base
}

// Create is a plain insert; there is no before-state to audit.
func (s *copyOnChangeStrategy) Create(ctx context.Context, data Record, actor *uuid.UUID) (Record, error) {
	plain := noneStrategy{base: s.base}
	return plain.Create(ctx, data, actor)
}

func (s *copyOnChangeStrategy) Update(ctx context.Context, id uuid.UUID, data Record, actor *uuid.UUID) (Record, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}
	columns, values, err := s.writeValues(data)
	if err != nil {
		return nil, err
	}

	var updated Record
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.lockRecord(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s %s", ErrNotFound, s.def.Name, id)
		}

		for i, col := range columns {
			if equalValues(current[col], values[i]) {
				continue
			}
			if err := s.insertAudit(ctx, tx, id, col, current[col], values[i], "update", actor); err != nil {
				return err
			}
		}

		setColumns := append(columns, "updated_at", "updated_by")
		setValues := append(values, s.now(), actorValue(actor))
		where := append(s.idConditions(id), s.aliveCondition(false)...)

		sql, params := s.qb.BuildUpdate(s.schema(), s.table(), setColumns, setValues, where, true)
		row, err := tx.FetchOne(ctx, sql, params...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", s.def.Name, err)
		}
		updated = recordOf(row)
		return nil
	})
	if err != nil {
		err = writeConflict(err)
		s.log.Error("audited update failed",
			zap.String("model", s.def.Name),
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, err
	}
	return updated, nil
}

func (s *copyOnChangeStrategy) Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	if err := s.requireTenant(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.lockRecord(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}

		deletedAt := s.now()
		if err := s.insertAudit(ctx, tx, id, "deleted_at", nil, deletedAt, "delete", actor); err != nil {
			return err
		}

		if !s.def.SoftDelete {
			sql := fmt.Sprintf("DELETE FROM %s", s.qb.QualifyTable(s.schema(), s.table()))
			fragment, params := s.qb.BuildWhere(s.idConditions(id), 1)
			if _, err := tx.Exec(ctx, sql+" WHERE "+fragment, params...); err != nil {
				return fmt.Errorf("failed to delete %s: %w", s.def.Name, err)
			}
			deleted = true
			return nil
		}

		columns := []string{"deleted_at", "deleted_by", "updated_at", "updated_by"}
		values := []any{deletedAt, actorValue(actor), deletedAt, actorValue(actor)}
		where := append(s.idConditions(id), pg.Eq("deleted_at", nil))

		sql, params := s.qb.BuildUpdate(s.schema(), s.table(), columns, values, where, false)
		if _, err := tx.Exec(ctx, sql, params...); err != nil {
			return fmt.Errorf("failed to delete %s: %w", s.def.Name, err)
		}
		deleted = true
		return nil
	})
	return deleted, writeConflict(err)
}

func (s *copyOnChangeStrategy) Restore(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (Record, error) {
	if !s.def.SoftDelete {
		return nil, ErrRestoreUnsupported
	}
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	var restored Record
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		current, err := s.lockRecord(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current == nil || current["deleted_at"] == nil {
			return fmt.Errorf("%w: %s %s", ErrNotFound, s.def.Name, id)
		}

		if err := s.insertAudit(ctx, tx, id, "deleted_at", current["deleted_at"], nil, "restore", actor); err != nil {
			return err
		}

		columns := []string{"deleted_at", "deleted_by", "updated_at", "updated_by"}
		values := []any{nil, nil, s.now(), actorValue(actor)}
		where := append(s.idConditions(id), pg.Condition{Field: "deleted_at", Op: pg.OpNe, Value: nil})

		sql, params := s.qb.BuildUpdate(s.schema(), s.table(), columns, values, where, true)
		row, err := tx.FetchOne(ctx, sql, params...)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", s.def.Name, err)
		}
		restored = recordOf(row)
		return nil
	})
	if err != nil {
		return nil, writeConflict(err)
	}
	return restored, nil
}

func (s *copyOnChangeStrategy) Get(ctx context.Context, id uuid.UUID, opts ReadOptions) (Record, error) {
	// Point-in-time reads of the main record are not possible here; only
	// the audit trail gives historical visibility.
	if opts.AsOf != nil {
		return nil, ErrAsOfUnsupported
	}
	plain := noneStrategy{base: s.base}
	return plain.Get(ctx, id, opts)
}

func (s *copyOnChangeStrategy) List(ctx context.Context, filters map[string]any, opts ReadOptions) ([]Record, error) {
	if opts.AsOf != nil {
		return nil, ErrAsOfUnsupported
	}
	plain := noneStrategy{base: s.base}
	return plain.List(ctx, filters, opts)
}

func (s *copyOnChangeStrategy) Count(ctx context.Context, filters map[string]any) (int64, error) {
	plain := noneStrategy{base: s.base}
	return plain.Count(ctx, filters)
}

// GetAuditHistory returns every audit entry for a record in change order.
func (s *copyOnChangeStrategy) GetAuditHistory(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	return s.auditEntries(ctx, id, "")
}

// GetFieldHistory returns the audit entries of one field in change order.
func (s *copyOnChangeStrategy) GetFieldHistory(ctx context.Context, id uuid.UUID, field string) ([]AuditEntry, error) {
	return s.auditEntries(ctx, id, field)
}

func (s *copyOnChangeStrategy) auditEntries(ctx context.Context, id uuid.UUID, field string) ([]AuditEntry, error) {
	if err := s.requireTenant(); err != nil {
		return nil, err
	}

	conds := []pg.Condition{pg.Eq("record_id", id.String())}
	if field != "" {
		conds = append(conds, pg.Eq("field_name", field))
	}
	if s.def.MultiTenant {
		conds = append(conds, pg.Eq("tenant_id", s.tenant.String()))
	}

	fragment, params := s.qb.BuildWhere(conds, 1)
	sql := fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY "changed_at", "audit_id"`,
		s.qb.QualifyTable(s.schema(), s.def.AuditTableName()), fragment)

	rows, err := s.db.FetchAll(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit history of %s %s: %w", s.def.Name, id, err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, auditEntryOf(row))
	}
	return entries, nil
}

// lockRecord reads the target row under FOR UPDATE so the diff and audit
// writes that follow see no concurrent mutation.
func (s *copyOnChangeStrategy) lockRecord(ctx context.Context, tx pool.DB, id uuid.UUID, includeDeleted bool) (Record, error) {
	conds := append(s.idConditions(id), s.aliveCondition(includeDeleted)...)
	sql, params := s.selectSQL(conds, "", "FOR UPDATE")
	row, err := tx.FetchOne(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s %s: %w", s.def.Name, id, err)
	}
	return recordOf(row), nil
}

func (s *copyOnChangeStrategy) insertAudit(ctx context.Context, tx pool.DB, id uuid.UUID, field string, oldValue, newValue any, operation string, actor *uuid.UUID) error {
	columns := []string{"record_id", "field_name", "old_value", "new_value", "operation", "changed_by"}
	values := []any{id.String(), field, jsonValue(oldValue), jsonValue(newValue), operation, actorValue(actor)}
	if s.def.MultiTenant {
		columns = append(columns, "tenant_id")
		values = append(values, s.tenant.String())
	}

	sql, params := s.qb.BuildInsert(s.schema(), s.def.AuditTableName(), columns, values, false)
	if _, err := tx.Exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("failed to write audit entry for %s.%s: %w", s.def.Name, field, err)
	}
	return nil
}

// jsonValue encodes an audit value as JSON text for the document columns.
// nil stays nil (SQL NULL), which is distinct from the JSON null document.
func jsonValue(v any) any {
	if v == nil {
		return nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	}
	return string(encoded)
}

// equalValues compares a stored value against its incoming replacement
// through their JSON encodings, which folds driver representation
// differences (int64 vs int, time.Time formatting) away.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	aj, aErr := json.Marshal(a)
	bj, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
	return string(aj) == string(bj)
}

func auditEntryOf(row pool.Row) AuditEntry {
	entry := AuditEntry{
		AuditID:   stringOf(row["audit_id"]),
		RecordID:  stringOf(row["record_id"]),
		FieldName: stringOf(row["field_name"]),
		OldValue:  decodeDocument(row["old_value"]),
		NewValue:  decodeDocument(row["new_value"]),
		Operation: stringOf(row["operation"]),
	}
	if t, ok := row["changed_at"].(time.Time); ok {
		entry.ChangedAt = t
	}
	if v := row["changed_by"]; v != nil {
		s := stringOf(v)
		entry.ChangedBy = &s
	}
	if v := row["tenant_id"]; v != nil {
		s := stringOf(v)
		entry.TenantID = &s
	}
	return entry
}

func decodeDocument(v any) any {
	if v == nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(stringOf(v)), &decoded); err != nil {
		return v
	}
	return decoded
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
