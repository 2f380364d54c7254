package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/registry"
)

// newTestPool поднимает Postgres в контейнере и применяет схему.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres tests in short mode")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stencil"),
		postgres.WithUsername("stencil"),
		postgres.WithPassword("stencil"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// повторная миграция не ломает схему
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestPostgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	t.Run("templates", func(t *testing.T) {
		repo := NewTemplateRepo(pool)
		tmpl := &domain.Template{
			Namespace: "io.stencil.tests",
			ID:        "template",
			Tasks: []domain.TaskDef{
				domain.Plain("test", "log", map[string]any{"message": "{{ parent.outputs.args['my-forward'] }}"}),
			},
		}

		require.NoError(t, repo.Store(ctx, tmpl))

		err := repo.Store(ctx, tmpl)
		assert.ErrorIs(t, err, registry.ErrDuplicateTemplate)

		got, err := repo.Lookup(ctx, "io.stencil.tests", "template")
		require.NoError(t, err)
		assert.Equal(t, tmpl.Tasks, got.Tasks)

		_, err = repo.Lookup(ctx, "io.stencil.tests", "invalid")
		assert.EqualError(t, err, "Can't find flow template 'io.stencil.tests.invalid'")

		list, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("flows", func(t *testing.T) {
		repo := NewFlowRepo(pool, nil)
		f := &domain.Flow{
			Namespace:   "io.stencil.tests",
			ID:          "with-template",
			Parallelism: 2,
			Tasks: []domain.TaskDef{
				domain.Include("inc", "io.stencil.tests", "template", map[string]string{"my-forward": "{{ inputs.s }}"}),
			},
		}
		require.NoError(t, repo.Put(ctx, f))

		f.Description = "updated"
		require.NoError(t, repo.Put(ctx, f))

		got, err := repo.Get(ctx, "io.stencil.tests", "with-template")
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Description)
		assert.True(t, got.Tasks[0].IsInclude())
		assert.Equal(t, f.Tasks[0].Args, got.Tasks[0].Args)

		_, err = repo.Get(ctx, "io.stencil.tests", "missing")
		assert.ErrorIs(t, err, registry.ErrFlowNotFound)
	})

	t.Run("executions", func(t *testing.T) {
		repo := NewExecutionRepo(pool)

		exec := domain.NewExecution("io.stencil.tests", "with-template", map[string]any{"s": "x"})
		tr := domain.NewTaskRun(exec.ID, "test", "log", []string{"inc"})
		tr.MarkRunning()
		tr.MarkSucceeded(map[string]any{"value": "x"})
		exec.TaskRunList = append(exec.TaskRunList, tr)
		exec.State = domain.StateRunning
		require.NoError(t, repo.Record(ctx, exec))

		finished := time.Now()
		exec.State = domain.StateSuccess
		exec.FinishedAt = &finished
		require.NoError(t, repo.Record(ctx, exec))

		got, err := repo.Get(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateSuccess, got.State)
		assert.NotNil(t, got.FinishedAt)
		require.Len(t, got.TaskRunList, 1)
		assert.Equal(t, []string{"inc"}, got.TaskRunList[0].Path)
		assert.Equal(t, "x", got.TaskRunList[0].Outputs["value"])

		list, err := repo.List(ctx, ExecutionFilter{FlowID: "with-template", State: domain.StateSuccess})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = repo.Get(ctx, uuid.New())
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("logs", func(t *testing.T) {
		repo := NewLogRepo(pool)
		execID := uuid.New()
		now := time.Now()

		for _, e := range []domain.LogEntry{
			{ExecutionID: execID, Level: domain.LevelDebug, Message: "first", Timestamp: now},
			{ExecutionID: execID, Level: domain.LevelError, Message: "second", Timestamp: now},
		} {
			require.NoError(t, repo.Append(ctx, e))
		}

		all, err := repo.ListByExecution(ctx, execID, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "first", all[0].Message)

		errorsOnly, err := repo.ListByExecution(ctx, execID, domain.LevelWarn)
		require.NoError(t, err)
		require.Len(t, errorsOnly, 1)
		assert.Equal(t, "second", errorsOnly[0].Message)
	})

	t.Run("trigger states", func(t *testing.T) {
		repo := NewTriggerRepo(pool)
		key := domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "every-night"}

		_, err := repo.Load(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		state := &domain.TriggerState{
			Namespace: key.Namespace,
			FlowID:    key.FlowID,
			TriggerID: key.TriggerID,
			Cron:      "0 3 * * *",
			NextDueAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC),
		}
		require.NoError(t, repo.Save(ctx, state))

		state.RecordFire(uuid.New(), state.NextDueAt, state.NextDueAt.Add(24*time.Hour))
		require.NoError(t, repo.Save(ctx, state))

		got, err := repo.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.NextDueAt.Equal(time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC)))
		assert.Equal(t, *state.LastExecutionID, *got.LastExecutionID)
	})
}
