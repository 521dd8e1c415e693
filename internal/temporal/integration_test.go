package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tempora/internal/core"
	"tempora/internal/model"
	"tempora/internal/pool"
	"tempora/internal/schemasync"
)

func setupPostgres(t *testing.T) *pool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	p, err := pool.Open(ctx, dsn)
	require.NoError(t, err, "failed to open pool")
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("failed to close pool: %v", err)
		}
	})

	return p
}

func syncModels(t *testing.T, p *pool.Pool, models ...*model.Definition) {
	t.Helper()
	manager := schemasync.NewManager(p, nil)
	_, err := manager.Sync(context.Background(), models, schemasync.Options{})
	require.NoError(t, err, "failed to sync schema")
}

func TestTemporalIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	p := setupPostgres(t)
	ctx := context.Background()

	person := &model.Definition{
		Name:       "Person",
		Table:      "people",
		Strategy:   model.StrategyCopyOnChange,
		SoftDelete: true,
		Fields: []model.Field{
			{Name: "name", Type: model.FieldString},
			{Name: "age", Type: model.FieldInt, Nullable: true},
		},
	}
	contract := &model.Definition{
		Name:       "Contract",
		Table:      "contracts",
		Strategy:   model.StrategySCD2,
		SoftDelete: true,
		Fields: []model.Field{
			{Name: "terms", Type: model.FieldText},
		},
	}
	note := &model.Definition{
		Name:       "Note",
		Table:      "notes",
		Strategy:   model.StrategyNone,
		SoftDelete: true,
		Fields: []model.Field{
			{Name: "body", Type: model.FieldText},
		},
	}
	account := &model.Definition{
		Name:        "Account",
		Table:       "accounts",
		Strategy:    model.StrategyNone,
		MultiTenant: true,
		Fields: []model.Field{
			{Name: "label", Type: model.FieldString},
		},
	}

	syncModels(t, p, person, contract, note, account)

	t.Run("sync is idempotent", func(t *testing.T) {
		manager := schemasync.NewManager(p, nil)
		result, err := manager.Sync(ctx, []*model.Definition{person, contract, note, account}, schemasync.Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Applied, "a second sync against an unchanged schema applies nothing")
		assert.Equal(t, 0, result.SkippedCount())
	})

	t.Run("audit round trip", func(t *testing.T) {
		repo, err := NewRepository(p, person)
		require.NoError(t, err)

		rec, err := repo.Create(ctx, Record{"name": "Alice", "age": 30}, nil)
		require.NoError(t, err)
		id := uuid.MustParse(rec["id"].(string))

		_, err = repo.Update(ctx, id, Record{"name": "Alice", "age": 31}, nil)
		require.NoError(t, err)

		history, err := repo.GetFieldHistory(ctx, id, "age")
		require.NoError(t, err)
		require.Len(t, history, 1, "one changed field produces exactly one audit entry")
		assert.Equal(t, float64(30), history[0].OldValue)
		assert.Equal(t, float64(31), history[0].NewValue)
		assert.Equal(t, "update", history[0].Operation)

		current, err := repo.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(31), current["age"])
	})

	t.Run("time travel", func(t *testing.T) {
		repo, err := NewRepository(p, contract)
		require.NoError(t, err)

		rec, err := repo.Create(ctx, Record{"terms": "v1"}, nil)
		require.NoError(t, err)
		id := uuid.MustParse(rec["id"].(string))

		time.Sleep(50 * time.Millisecond)
		between := time.Now().UTC()
		time.Sleep(50 * time.Millisecond)

		_, err = repo.Update(ctx, id, Record{"terms": "v2"}, nil)
		require.NoError(t, err)

		old, err := repo.Get(ctx, id, ReadOptions{AsOf: &between})
		require.NoError(t, err)
		require.NotNil(t, old)
		assert.Equal(t, "v1", old["terms"])

		current, err := repo.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, "v2", current["terms"])

		history, err := repo.GetVersionHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 2)

		diff, err := repo.CompareVersions(ctx, id, 1, 2)
		require.NoError(t, err)
		require.Contains(t, diff, "terms")
		assert.Equal(t, "v1", diff["terms"].From)
		assert.Equal(t, "v2", diff["terms"].To)
	})

	t.Run("exactly one current version", func(t *testing.T) {
		repo, err := NewRepository(p, contract)
		require.NoError(t, err)

		rec, err := repo.Create(ctx, Record{"terms": "a"}, nil)
		require.NoError(t, err)
		id := uuid.MustParse(rec["id"].(string))

		for _, terms := range []string{"b", "c", "d"} {
			_, err = repo.Update(ctx, id, Record{"terms": terms}, nil)
			require.NoError(t, err)
		}
		_, err = repo.Delete(ctx, id, nil)
		require.NoError(t, err)
		_, err = repo.Restore(ctx, id, nil)
		require.NoError(t, err)

		n, err := p.FetchValue(ctx,
			`SELECT COUNT(*) FROM "public"."contracts" WHERE "id" = $1 AND "valid_to" IS NULL`,
			id.String())
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("soft delete and restore", func(t *testing.T) {
		repo, err := NewRepository(p, note)
		require.NoError(t, err)

		rec, err := repo.Create(ctx, Record{"body": "remember"}, nil)
		require.NoError(t, err)
		id := uuid.MustParse(rec["id"].(string))

		deleted, err := repo.Delete(ctx, id, nil)
		require.NoError(t, err)
		assert.True(t, deleted)

		gone, err := repo.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		assert.Nil(t, gone)

		hidden, err := repo.Get(ctx, id, ReadOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.NotNil(t, hidden)
		assert.NotNil(t, hidden["deleted_at"])

		_, err = repo.Restore(ctx, id, nil)
		require.NoError(t, err)

		back, err := repo.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		require.NotNil(t, back)
		assert.Equal(t, "remember", back["body"])
	})

	t.Run("tenant isolation", func(t *testing.T) {
		tenantA, tenantB := uuid.New(), uuid.New()

		repoA, err := NewRepository(p, account, WithTenant(tenantA))
		require.NoError(t, err)
		repoB, err := NewRepository(p, account, WithTenant(tenantB))
		require.NoError(t, err)

		rec, err := repoA.Create(ctx, Record{"label": "a-only"}, nil)
		require.NoError(t, err)
		id := uuid.MustParse(rec["id"].(string))

		fromA, err := repoA.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		require.NotNil(t, fromA)

		fromB, err := repoB.Get(ctx, id, ReadOptions{})
		require.NoError(t, err)
		assert.Nil(t, fromB, "tenant B must not see tenant A's record")

		listB, err := repoB.List(ctx, nil, ReadOptions{})
		require.NoError(t, err)
		assert.Empty(t, listB)
	})

	t.Run("destructive gating", func(t *testing.T) {
		trimmed := &model.Definition{
			Name:       note.Name,
			Table:      note.Table,
			Strategy:   note.Strategy,
			SoftDelete: note.SoftDelete,
			Fields:     nil, // body removed
		}

		manager := schemasync.NewManager(p, nil)
		result, err := manager.Sync(ctx, []*model.Definition{trimmed}, schemasync.Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Applied)
		require.Equal(t, 1, result.SkippedCount())
		assert.Equal(t, core.DropColumn, result.Tables[0].Skipped[0].Kind)

		result, err = manager.Sync(ctx, []*model.Definition{trimmed}, schemasync.Options{AllowDestructive: true})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Applied)

		// Put the column back for any later subtest.
		result, err = manager.Sync(ctx, []*model.Definition{note}, schemasync.Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Applied)
	})
}
