package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/repo"
	"github.com/shaiso/Stencil/internal/runner"
)

// ExecutionHistory — сохранённые execution, которых уже нет в памяти runner.
type ExecutionHistory interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	List(ctx context.Context, filter repo.ExecutionFilter) ([]*domain.Execution, error)
}

// LogStore — записи лога execution.
type LogStore interface {
	ListByExecution(ctx context.Context, executionID uuid.UUID, minLevel domain.Level) ([]domain.LogEntry, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	templates registry.Templates
	flows     registry.Flows
	runner    *runner.Runner
	history   ExecutionHistory
	logs      LogStore
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Templates registry.Templates
	Flows     registry.Flows
	Runner    *runner.Runner

	// History — опционально (Postgres).
	History ExecutionHistory

	// Logs — источник записей для /executions/{id}/logs.
	Logs LogStore

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		templates: cfg.Templates,
		flows:     cfg.Flows,
		runner:    cfg.Runner,
		history:   cfg.History,
		logs:      cfg.Logs,
		logger:    logger,
	}
}
