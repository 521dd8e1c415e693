package temporal

import "errors"

// Sentinel errors callers can branch on. Write-path errors are never
// swallowed: an operation either fully applies or returns one of these
// (or a wrapped driver error) with nothing committed.
var (
	// ErrNotFound is returned when no live record matches the id (and
	// tenant) an operation targeted.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with a unique
	// constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrVersionConflict is returned when two writers raced to produce the
	// same version of one logical record.
	ErrVersionConflict = errors.New("version conflict: concurrent update detected")

	// ErrTenantRequired is returned when a multi-tenant model is used
	// without a bound tenant id.
	ErrTenantRequired = errors.New("tenant id required for multi-tenant model")

	// ErrAsOfUnsupported is returned when a point-in-time read is asked of
	// a strategy that keeps no version history.
	ErrAsOfUnsupported = errors.New("as-of queries unsupported by this strategy")

	// ErrRestoreUnsupported is returned when restore is asked of a model
	// without soft-delete.
	ErrRestoreUnsupported = errors.New("restore unsupported: model has no soft delete")

	// ErrHistoryUnsupported is returned when an audit- or version-history
	// read is asked of a strategy that does not record one.
	ErrHistoryUnsupported = errors.New("history unsupported by this strategy")

	// ErrUnknownField is returned when written data carries a key the
	// model does not declare.
	ErrUnknownField = errors.New("unknown field")
)
