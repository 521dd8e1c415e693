package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempora/internal/model"
	"tempora/internal/pool"
)

// Repository binds one model, one executor, and optionally one tenant to
// the strategy the model declares, with an optional TTL read cache on top.
// Every method is a thin delegation plus cache bookkeeping; all temporal
// semantics live in the strategies.
type Repository struct {
	db       pool.DB
	def      *model.Definition
	strategy Strategy
	tenant   *uuid.UUID
	cache    *cache
	log      *zap.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithTenant scopes every operation to one tenant. Required for
// multi-tenant models.
func WithTenant(id uuid.UUID) Option {
	return func(r *Repository) { r.tenant = &id }
}

// WithLogger sets the structured logger. Defaults to a no-op one.
func WithLogger(log *zap.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithCacheTTL enables the read cache with the given time-to-live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Repository) { r.cache = newCache(ttl) }
}

// NewRepository validates the model and builds its bound repository.
func NewRepository(db pool.DB, def *model.Definition, opts ...Option) (*Repository, error) {
	r := &Repository{db: db, def: def, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	strategy, err := NewStrategy(db, def, r.tenant, r.log)
	if err != nil {
		return nil, err
	}
	r.strategy = strategy
	return r, nil
}

// Model returns the bound model declaration.
func (r *Repository) Model() *model.Definition { return r.def }

func (r *Repository) Create(ctx context.Context, data Record, actor *uuid.UUID) (Record, error) {
	rec, err := r.strategy.Create(ctx, data, actor)
	if err != nil {
		return nil, err
	}
	r.invalidate(rec)
	return rec, nil
}

// CreateMany inserts a batch atomically: one failed insert rolls back the
// whole batch.
func (r *Repository) CreateMany(ctx context.Context, items []Record, actor *uuid.UUID) ([]Record, error) {
	created := make([]Record, 0, len(items))
	err := r.db.WithinTx(ctx, func(ctx context.Context, tx pool.DB) error {
		st, err := NewStrategy(tx, r.def, r.tenant, r.log)
		if err != nil {
			return err
		}
		for _, data := range items {
			rec, err := st.Create(ctx, data, actor)
			if err != nil {
				return err
			}
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.invalidateAll()
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, data Record, actor *uuid.UUID) (Record, error) {
	rec, err := r.strategy.Update(ctx, id, data, actor)
	if err != nil {
		return nil, err
	}
	r.invalidateID(id)
	return rec, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (bool, error) {
	deleted, err := r.strategy.Delete(ctx, id, actor)
	if err != nil {
		return false, err
	}
	if deleted {
		r.invalidateID(id)
	}
	return deleted, nil
}

func (r *Repository) Restore(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (Record, error) {
	rec, err := r.strategy.Restore(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	r.invalidateID(id)
	return rec, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID, opts ReadOptions) (Record, error) {
	key := fmt.Sprintf("get:%s:%s", id, readKey(opts))
	if cached, ok := r.cached(key); ok {
		return cached.(Record), nil
	}

	rec, err := r.strategy.Get(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		r.store(key, rec)
	}
	return rec, nil
}

// Exists reports whether a record is currently visible under opts. It is the
// supported way to check a reference into a versioned table before writing a
// row that points at it; declared foreign keys cannot target versioned tables
// because the referenced id spans many version rows.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID, opts ReadOptions) (bool, error) {
	rec, err := r.Get(ctx, id, opts)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// GetMany fetches a batch of records by id in one query. Missing ids are
// simply absent from the result.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID, opts ReadOptions) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	return r.strategy.List(ctx, map[string]any{"id": idStrings}, opts)
}

func (r *Repository) List(ctx context.Context, filters map[string]any, opts ReadOptions) ([]Record, error) {
	key := fmt.Sprintf("list:%s:%s", filterKey(filters), readKey(opts))
	if cached, ok := r.cached(key); ok {
		return cached.([]Record), nil
	}

	recs, err := r.strategy.List(ctx, filters, opts)
	if err != nil {
		return nil, err
	}
	r.store(key, recs)
	return recs, nil
}

func (r *Repository) Count(ctx context.Context, filters map[string]any) (int64, error) {
	key := "count:" + filterKey(filters)
	if cached, ok := r.cached(key); ok {
		return cached.(int64), nil
	}

	n, err := r.strategy.Count(ctx, filters)
	if err != nil {
		return 0, err
	}
	r.store(key, n)
	return n, nil
}

// auditReader is implemented by the copy_on_change strategy.
type auditReader interface {
	GetAuditHistory(ctx context.Context, id uuid.UUID) ([]AuditEntry, error)
	GetFieldHistory(ctx context.Context, id uuid.UUID, field string) ([]AuditEntry, error)
}

// versionReader is implemented by the scd2 strategy.
type versionReader interface {
	GetVersionHistory(ctx context.Context, id uuid.UUID) ([]Record, error)
	GetVersion(ctx context.Context, id uuid.UUID, version int) (Record, error)
	CompareVersions(ctx context.Context, id uuid.UUID, v1, v2 int) (map[string]FieldChange, error)
}

// GetAuditHistory returns the field-level change trail of a record.
// Only copy_on_change records one.
func (r *Repository) GetAuditHistory(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	ar, ok := r.strategy.(auditReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return ar.GetAuditHistory(ctx, id)
}

// GetFieldHistory returns one field's change trail.
func (r *Repository) GetFieldHistory(ctx context.Context, id uuid.UUID, field string) ([]AuditEntry, error) {
	ar, ok := r.strategy.(auditReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return ar.GetFieldHistory(ctx, id, field)
}

// GetVersionHistory returns every stored version of a record. Only scd2
// keeps them.
func (r *Repository) GetVersionHistory(ctx context.Context, id uuid.UUID) ([]Record, error) {
	vr, ok := r.strategy.(versionReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return vr.GetVersionHistory(ctx, id)
}

// GetVersion returns one version of a record, or nil.
func (r *Repository) GetVersion(ctx context.Context, id uuid.UUID, version int) (Record, error) {
	vr, ok := r.strategy.(versionReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return vr.GetVersion(ctx, id, version)
}

// CompareVersions returns the field-level difference between two versions.
func (r *Repository) CompareVersions(ctx context.Context, id uuid.UUID, v1, v2 int) (map[string]FieldChange, error) {
	vr, ok := r.strategy.(versionReader)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	return vr.CompareVersions(ctx, id, v1, v2)
}

func (r *Repository) cached(key string) (any, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.get(key)
}

func (r *Repository) store(key string, value any) {
	if r.cache != nil {
		r.cache.set(key, value)
	}
}

func (r *Repository) invalidateID(id uuid.UUID) {
	if r.cache != nil {
		r.cache.invalidateRecord(id.String())
	}
}

func (r *Repository) invalidate(rec Record) {
	if r.cache == nil {
		return
	}
	if id, ok := rec["id"].(string); ok {
		r.cache.invalidateRecord(id)
		return
	}
	r.cache.invalidateAll()
}

func readKey(opts ReadOptions) string {
	asOf := ""
	if opts.AsOf != nil {
		asOf = opts.AsOf.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s:%t", asOf, opts.IncludeDeleted)
}

// filterKey renders filters deterministically; json.Marshal sorts map keys.
func filterKey(filters map[string]any) string {
	if len(filters) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		return fmt.Sprintf("%v", filters)
	}
	return string(encoded)
}
