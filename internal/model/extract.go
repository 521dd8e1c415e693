package model

import (
	"fmt"

	"tempora/internal/core"
)

// Extract converts a validated model declaration into the desired
// core.TableDefinition, injecting the columns and indexes the selected
// temporal strategy requires. The returned definition is owned by the
// caller; extraction never caches.
func Extract(d *Definition) (*core.TableDefinition, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	table := &core.TableDefinition{
		Name:   d.Table,
		Schema: d.TableSchema(),
	}

	table.Columns = append(table.Columns, core.ColumnDefinition{
		Name:       "id",
		Type:       core.ColumnUUID,
		Nullable:   false,
		PrimaryKey: true,
		Default:    core.Def("gen_random_uuid()"),
		NativeType: "UUID",
	})

	for i := range d.Fields {
		f := &d.Fields[i]
		colType, native := f.ColumnType()

		col := core.ColumnDefinition{
			Name:       f.Name,
			Type:       colType,
			Nullable:   f.Nullable,
			MaxLength:  f.MaxLength,
			Precision:  f.Precision,
			Scale:      f.Scale,
			ForeignKey: f.ForeignKey,
			OnDelete:   f.OnDelete,
			Check:      f.Check,
			NativeType: native,
		}
		if f.Default != "" {
			col.Default = core.Def(f.Default)
		}
		table.Columns = append(table.Columns, col)

		if f.Unique || f.Index {
			table.Indexes = append(table.Indexes, core.IndexDefinition{
				Name:    fmt.Sprintf("idx_%s_%s", d.Table, f.Name),
				Table:   d.Table,
				Columns: []string{f.Name},
				Unique:  f.Unique,
				Where:   f.IndexWhere,
			})
		}
	}

	appendAuditColumns(table)

	if d.MultiTenant {
		table.Columns = append(table.Columns, core.ColumnDefinition{
			Name:       d.TenantColumn(),
			Type:       core.ColumnUUID,
			Nullable:   false,
			NativeType: "UUID",
		})
	}

	if d.SoftDelete {
		table.Columns = append(table.Columns,
			core.ColumnDefinition{
				Name:       "deleted_at",
				Type:       core.ColumnTimestampTZ,
				Nullable:   true,
				NativeType: "TIMESTAMP WITH TIME ZONE",
			},
			core.ColumnDefinition{
				Name:       "deleted_by",
				Type:       core.ColumnUUID,
				Nullable:   true,
				NativeType: "UUID",
			},
		)
	}

	if d.Strategy == StrategySCD2 {
		appendSCD2Columns(table)
	}

	table.Indexes = append(table.Indexes, strategyIndexes(d)...)

	return table, nil
}

// AuxiliaryTables returns the extra tables a strategy needs alongside the
// main table. Only copy_on_change has one: the field-level audit table.
func AuxiliaryTables(d *Definition) ([]*core.TableDefinition, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Strategy != StrategyCopyOnChange {
		return nil, nil
	}
	return []*core.TableDefinition{auditTable(d)}, nil
}

// appendAuditColumns adds the bookkeeping columns every strategy carries.
func appendAuditColumns(table *core.TableDefinition) {
	table.Columns = append(table.Columns,
		core.ColumnDefinition{
			Name:       "created_at",
			Type:       core.ColumnTimestampTZ,
			Nullable:   false,
			Default:    core.Def("NOW()"),
			NativeType: "TIMESTAMP WITH TIME ZONE",
		},
		core.ColumnDefinition{
			Name:       "updated_at",
			Type:       core.ColumnTimestampTZ,
			Nullable:   false,
			Default:    core.Def("NOW()"),
			NativeType: "TIMESTAMP WITH TIME ZONE",
		},
		core.ColumnDefinition{
			Name:       "created_by",
			Type:       core.ColumnUUID,
			Nullable:   true,
			NativeType: "UUID",
		},
		core.ColumnDefinition{
			Name:       "updated_by",
			Type:       core.ColumnUUID,
			Nullable:   true,
			NativeType: "UUID",
		},
	)
}

// appendSCD2Columns adds version bookkeeping. The primary key widens to
// (id, version) because every version of a logical id shares that id.
func appendSCD2Columns(table *core.TableDefinition) {
	table.Columns = append(table.Columns,
		core.ColumnDefinition{
			Name:       "version",
			Type:       core.ColumnInteger,
			Nullable:   false,
			PrimaryKey: true,
			Default:    core.Def("1"),
			NativeType: "INTEGER",
		},
		core.ColumnDefinition{
			Name:       "valid_from",
			Type:       core.ColumnTimestampTZ,
			Nullable:   false,
			Default:    core.Def("NOW()"),
			NativeType: "TIMESTAMP WITH TIME ZONE",
		},
		core.ColumnDefinition{
			Name:       "valid_to",
			Type:       core.ColumnTimestampTZ,
			Nullable:   true,
			NativeType: "TIMESTAMP WITH TIME ZONE",
		},
	)
}

func strategyIndexes(d *Definition) []core.IndexDefinition {
	var indexes []core.IndexDefinition

	if d.MultiTenant {
		tenant := d.TenantColumn()
		indexes = append(indexes, core.IndexDefinition{
			Name:    fmt.Sprintf("idx_%s_%s", d.Table, tenant),
			Table:   d.Table,
			Columns: []string{tenant},
		})

		composite := core.IndexDefinition{
			Name:    fmt.Sprintf("idx_%s_%s_created", d.Table, tenant),
			Table:   d.Table,
			Columns: []string{tenant, "created_at"},
		}
		if d.SoftDelete {
			composite.Where = "deleted_at IS NULL"
		}
		indexes = append(indexes, composite)
	}

	if d.SoftDelete {
		indexes = append(indexes, core.IndexDefinition{
			Name:    fmt.Sprintf("idx_%s_not_deleted", d.Table),
			Table:   d.Table,
			Columns: []string{"deleted_at"},
			Where:   "deleted_at IS NULL",
		})
	}

	if d.Strategy == StrategySCD2 {
		indexes = append(indexes,
			core.IndexDefinition{
				Name:    fmt.Sprintf("idx_%s_valid_period", d.Table),
				Table:   d.Table,
				Columns: []string{"valid_from", "valid_to"},
			},
			// At most one current version per logical id: enforced by the
			// database, not just by the close-and-insert protocol.
			core.IndexDefinition{
				Name:    fmt.Sprintf("uq_%s_current", d.Table),
				Table:   d.Table,
				Columns: []string{"id"},
				Unique:  true,
				Where:   "valid_to IS NULL",
			},
		)
	}

	return indexes
}

// auditTable builds the {table}_audit definition for copy_on_change models.
func auditTable(d *Definition) *core.TableDefinition {
	name := d.AuditTableName()

	table := &core.TableDefinition{
		Name:   name,
		Schema: d.TableSchema(),
		Columns: []core.ColumnDefinition{
			{
				Name:       "audit_id",
				Type:       core.ColumnUUID,
				Nullable:   false,
				PrimaryKey: true,
				Default:    core.Def("gen_random_uuid()"),
				NativeType: "UUID",
			},
			{Name: "record_id", Type: core.ColumnUUID, Nullable: false, NativeType: "UUID"},
			{Name: "field_name", Type: core.ColumnString, Nullable: false, MaxLength: 255, NativeType: "VARCHAR(255)"},
			{Name: "old_value", Type: core.ColumnJSONB, Nullable: true, NativeType: "JSONB"},
			{Name: "new_value", Type: core.ColumnJSONB, Nullable: true, NativeType: "JSONB"},
			{Name: "operation", Type: core.ColumnString, Nullable: false, MaxLength: 50, NativeType: "VARCHAR(50)"},
			{
				Name:       "changed_at",
				Type:       core.ColumnTimestampTZ,
				Nullable:   false,
				Default:    core.Def("NOW()"),
				NativeType: "TIMESTAMP WITH TIME ZONE",
			},
			{Name: "changed_by", Type: core.ColumnUUID, Nullable: true, NativeType: "UUID"},
			{Name: "tenant_id", Type: core.ColumnUUID, Nullable: true, NativeType: "UUID"},
		},
		Indexes: []core.IndexDefinition{
			{
				Name:    fmt.Sprintf("idx_%s_record", name),
				Table:   name,
				Columns: []string{"record_id"},
			},
			{
				Name:    fmt.Sprintf("idx_%s_changed_at", name),
				Table:   name,
				Columns: []string{"changed_at"},
			},
		},
	}

	return table
}
