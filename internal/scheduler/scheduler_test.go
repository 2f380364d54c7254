package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/repo"
	"github.com/shaiso/Stencil/internal/runner"
)

func newRunner(t *testing.T, flows runner.FlowSource) *runner.Runner {
	t.Helper()
	r := runner.New(runner.Config{
		Flows:     flows,
		Templates: registry.NewMemory(),
		Logger:    quietLogger(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFlows(t *testing.T, inputs []domain.InputDef, triggers ...domain.Trigger) *registry.FlowStore {
	t.Helper()
	flows := registry.NewFlowStore(nil)
	require.NoError(t, flows.Put(context.Background(), &domain.Flow{
		Namespace: "io.stencil.tests",
		ID:        "nightly",
		Inputs:    inputs,
		Tasks:     []domain.TaskDef{domain.Plain("say", "log", map[string]any{"message": "hi"})},
		Triggers:  triggers,
	}))
	return flows
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextDue(t *testing.T) {
	from := time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC)

	next, err := NextDue("0 3 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), next)

	next, err = NextDue("@hourly", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), next)

	_, err = NextDue("every day", from)
	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestValidateTriggers(t *testing.T) {
	f := &domain.Flow{Triggers: []domain.Trigger{
		{ID: "ok", Type: domain.TriggerTypeSchedule, Cron: "*/5 * * * *"},
		{ID: "bad", Type: domain.TriggerTypeSchedule, Cron: "61 * * * *"},
	}}

	err := ValidateTriggers(f)
	require.ErrorIs(t, err, ErrInvalidCron)
	assert.Contains(t, err.Error(), "trigger bad")
	assert.NotContains(t, err.Error(), "trigger ok")
}

func TestScheduler_Tick(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC)}
	states := NewMemoryStates()
	flows := newFlows(t, []domain.InputDef{{Name: "greeting", Type: domain.InputTypeString}}, domain.Trigger{
			ID:     "every-night",
			Type:   domain.TriggerTypeSchedule,
			Cron:   "0 3 * * *",
			Inputs: map[string]any{"greeting": "hello"},
		}, domain.Trigger{
			ID:       "off",
			Type:     domain.TriggerTypeSchedule,
			Cron:     "* * * * *",
			Disabled: true,
		})
	r := newRunner(t, flows)

	s := New(Config{
		Flows:   flows,
		Starter: r,
		States:  states,
		Now:     clk.Now,
		Logger:  quietLogger(),
	})

	key := domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "every-night"}

	// первый тик только планирует
	require.NoError(t, s.Tick(ctx))
	assert.Empty(t, r.List())
	st, err := states.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), st.NextDueAt)

	_, err = states.Load(ctx, domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "off"})
	assert.ErrorIs(t, err, repo.ErrNotFound, "disabled trigger must not get a state")

	clk.Advance(20 * time.Minute)
	require.NoError(t, s.Tick(ctx))
	assert.Empty(t, r.List())

	// после простоя в два дня срабатывает один раз
	clk.Advance(48 * time.Hour)
	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))
	execs := r.List()
	require.Len(t, execs, 1)
	assert.Equal(t, "nightly", execs[0].FlowID)
	assert.Equal(t, map[string]any{"greeting": "hello"}, execs[0].Inputs)

	st, err = states.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, st.LastExecutionID)
	assert.Equal(t, execs[0].ID, *st.LastExecutionID)
	assert.Equal(t, time.Date(2024, 5, 3, 3, 0, 0, 0, time.UTC), st.NextDueAt)
	require.NotNil(t, st.LastFiredAt)
	assert.Equal(t, clk.now, *st.LastFiredAt)
}

func TestScheduler_CronChangeReschedules(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC)}
	states := NewMemoryStates()
	key := domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "t"}

	require.NoError(t, states.Save(ctx, &domain.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Cron:      "0 0 1 1 *",
		NextDueAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	flows := newFlows(t, nil, domain.Trigger{ID: "t", Type: domain.TriggerTypeSchedule, Cron: "45 2 * * *"})
	s := New(Config{
		Flows:   flows,
		Starter: newRunner(t, flows),
		States:  states,
		Now:     clk.Now,
		Logger:  quietLogger(),
	})
	require.NoError(t, s.Tick(ctx))

	st, err := states.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "45 2 * * *", st.Cron)
	assert.Equal(t, time.Date(2024, 5, 1, 2, 45, 0, 0, time.UTC), st.NextDueAt)
}

func TestScheduler_StartFailureAdvances(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 2, 59, 0, 0, time.UTC)}
	states := NewMemoryStates()
	// обязательный вход без значения в триггере
	flows := newFlows(t, []domain.InputDef{{Name: "greeting", Type: domain.InputTypeString}},
		domain.Trigger{ID: "t", Type: domain.TriggerTypeSchedule, Cron: "0 3 * * *"})
	r := newRunner(t, flows)

	s := New(Config{
		Flows:   flows,
		Starter: r,
		States:  states,
		Now:     clk.Now,
		Logger:  quietLogger(),
	})

	require.NoError(t, s.Tick(ctx))
	clk.Advance(time.Minute)
	// ошибка триггера логируется, Tick не падает
	require.NoError(t, s.Tick(ctx))

	st, err := states.Load(ctx, domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "t"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), st.NextDueAt)
	assert.Nil(t, st.LastFiredAt)
	assert.Empty(t, r.List())
}

func TestScheduler_WithRunner(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 2, 59, 0, 0, time.UTC)}
	flows := newFlows(t, nil, domain.Trigger{ID: "t", Type: domain.TriggerTypeSchedule, Cron: "0 3 * * *"})
	r := newRunner(t, flows)

	states := NewMemoryStates()
	s := New(Config{Flows: flows, Starter: r, States: states, Now: clk.Now, Logger: quietLogger()})

	require.NoError(t, s.Tick(ctx))
	clk.Advance(time.Minute)
	require.NoError(t, s.Tick(ctx))

	st, err := states.Load(ctx, domain.TriggerKey{Namespace: "io.stencil.tests", FlowID: "nightly", TriggerID: "t"})
	require.NoError(t, err)
	require.NotNil(t, st.LastExecutionID)
	assert.NotEqual(t, uuid.Nil, *st.LastExecutionID)

	h, err := r.Handle(*st.LastExecutionID, 5*time.Second)
	require.NoError(t, err)
	exec, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuccess, exec.State)
}

func TestScheduler_ListError(t *testing.T) {
	s := New(Config{Flows: failingLister{}, Logger: quietLogger()})
	err := s.Tick(context.Background())
	assert.ErrorContains(t, err, "list flows")
}

type failingLister struct{}

func (failingLister) List(context.Context) ([]*domain.Flow, error) {
	return nil, errors.New("db down")
}
