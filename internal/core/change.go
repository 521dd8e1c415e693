package core

import "fmt"

// ChangeKind identifies what kind of schema change a SchemaChange describes.
type ChangeKind string

const (
	CreateTable     ChangeKind = "CREATE_TABLE"
	DropTable       ChangeKind = "DROP_TABLE"
	AddColumn       ChangeKind = "ADD_COLUMN"
	DropColumn      ChangeKind = "DROP_COLUMN"
	AlterColumnType ChangeKind = "ALTER_COLUMN_TYPE"
	AlterColumnNull ChangeKind = "ALTER_COLUMN_NULLABILITY"
	AddIndex        ChangeKind = "ADD_INDEX"
	DropIndex       ChangeKind = "DROP_INDEX"
	AddConstraint   ChangeKind = "ADD_CONSTRAINT"
)

// SchemaChange is one delta between a desired and a current table definition.
// The differ creates it with SQL empty, the generator fills SQL in, and the
// schema manager consumes it once. Changes are never persisted.
type SchemaChange struct {
	Kind  ChangeKind `json:"kind"`
	Table string     `json:"table"`

	// Destructive marks changes that can lose data or break existing queries
	// (drops, narrowing alters). They require explicit approval to apply.
	Destructive bool `json:"destructive"`

	Description string `json:"description"`

	// SQL holds the generated statement(s), filled by the generator.
	SQL string `json:"sql,omitempty"`

	// Attached definitions, set depending on Kind.
	TableDef *TableDefinition  `json:"-"`
	Column   *ColumnDefinition `json:"column,omitempty"`
	Index    *IndexDefinition  `json:"index,omitempty"`

	// OldColumn carries the current catalog state for alter changes.
	OldColumn *ColumnDefinition `json:"oldColumn,omitempty"`
}

// String returns a one-line human-readable rendering of the change, used in
// dry-run reports and logs.
func (c *SchemaChange) String() string {
	risk := "safe"
	if c.Destructive {
		risk = "DESTRUCTIVE"
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", c.Kind, c.Table, c.Description, risk)
}
