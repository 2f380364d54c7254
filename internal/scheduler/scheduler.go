package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/repo"
	"github.com/shaiso/Stencil/internal/runner"
	"github.com/shaiso/Stencil/internal/telemetry"
)

const defaultInterval = 10 * time.Second

// FlowLister возвращает flow, чьи триггеры проверяются.
type FlowLister interface {
	List(ctx context.Context) ([]*domain.Flow, error)
}

// Starter запускает execution. Обычно это *runner.Runner.
type Starter interface {
	Start(ctx context.Context, req runner.RunRequest) (*runner.Handle, error)
}

// Scheduler — планировщик schedule-триггеров flow.
type Scheduler struct {
	flows    FlowLister
	starter  Starter
	states   StateStore
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Flows   FlowLister
	Starter Starter

	// States — состояние триггеров (если nil — в памяти).
	States StateStore

	// Interval — период тиков в Run (default: 10s).
	Interval time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	states := cfg.States
	if states == nil {
		states = NewMemoryStates()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		flows:    cfg.Flows,
		starter:  cfg.Starter,
		states:   states,
		interval: interval,
		now:      now,
		logger:   logger,
	}
}

// Run вызывает Tick каждые Interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	for {
		select {
		case <-tk.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// Tick выполняет один тик планировщика.
//
//  1. Перебирает включённые schedule-триггеры всех flow
//  2. Для нового триггера (или изменённого cron) вычисляет первое время
//  3. Для наступившего запускает execution с inputs триггера
//  4. Сохраняет следующее время
//
// Пропущенные срабатывания не догоняются: после простоя триггер
// срабатывает один раз. Ошибки одного триггера не блокируют остальные.
func (s *Scheduler) Tick(ctx context.Context) error {
	flows, err := s.flows.List(ctx)
	if err != nil {
		return fmt.Errorf("list flows: %w", err)
	}

	now := s.now().UTC()
	var checked, fired int
	for _, f := range flows {
		for _, tr := range f.Triggers {
			if tr.Disabled || tr.Type != domain.TriggerTypeSchedule {
				continue
			}
			checked++

			ok, err := s.processTrigger(ctx, f, tr, now)
			if err != nil {
				s.logger.Error("failed to process trigger",
					"namespace", f.Namespace,
					"flow_id", f.ID,
					"trigger_id", tr.ID,
					"error", err,
				)
				continue
			}
			if ok {
				fired++
			}
		}
	}

	if fired > 0 {
		s.logger.Info("scheduler tick completed", "triggers", checked, "fired", fired)
	}
	return nil
}

// processTrigger обрабатывает один триггер.
// Возвращает true, если execution был запущен.
func (s *Scheduler) processTrigger(ctx context.Context, f *domain.Flow, tr domain.Trigger, now time.Time) (bool, error) {
	key := domain.TriggerKey{Namespace: f.Namespace, FlowID: f.ID, TriggerID: tr.ID}

	state, err := s.states.Load(ctx, key)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("load trigger state: %w", err)
	}

	if state == nil || state.Cron != tr.Cron {
		next, err := NextDue(tr.Cron, now)
		if err != nil {
			telemetry.TriggerFiresTotal.WithLabelValues("invalid_cron").Inc()
			return false, err
		}
		if state == nil {
			state = &domain.TriggerState{Namespace: f.Namespace, FlowID: f.ID, TriggerID: tr.ID}
		}
		state.Cron = tr.Cron
		state.NextDueAt = next
		s.logger.Debug("trigger scheduled", "trigger", key.String(), "next_due_at", next)
		return false, s.save(ctx, state)
	}

	if now.Before(state.NextDueAt) {
		return false, nil
	}

	next, err := NextDue(tr.Cron, now)
	if err != nil {
		telemetry.TriggerFiresTotal.WithLabelValues("invalid_cron").Inc()
		return false, err
	}

	h, err := s.starter.Start(ctx, runner.RunRequest{
		Namespace: f.Namespace,
		FlowID:    f.ID,
		Inputs:    domain.CloneMap(tr.Inputs),
	})
	if err != nil {
		// срабатывание пропускается, следующее время всё равно сдвигается
		telemetry.TriggerFiresTotal.WithLabelValues("start_failed").Inc()
		state.NextDueAt = next
		if saveErr := s.save(ctx, state); saveErr != nil {
			return false, errors.Join(err, saveErr)
		}
		return false, fmt.Errorf("start execution: %w", err)
	}

	telemetry.TriggerFiresTotal.WithLabelValues("started").Inc()
	s.logger.Info("trigger fired",
		"trigger", key.String(),
		"execution_id", h.ID(),
		"next_due_at", next,
	)

	state.RecordFire(h.ID(), now, next)
	return true, s.save(ctx, state)
}

func (s *Scheduler) save(ctx context.Context, state *domain.TriggerState) error {
	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("save trigger state: %w", err)
	}
	return nil
}
