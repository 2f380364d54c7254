package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
)

// CreateExecutionRequest — тело запроса на запуск flow.
type CreateExecutionRequest struct {
	Inputs map[string]any `json:"inputs,omitempty"`
}

// ExecutionSummary — execution в списке, без task runs.
type ExecutionSummary struct {
	ID         uuid.UUID    `json:"id"`
	Namespace  string       `json:"namespace"`
	FlowID     string       `json:"flowId"`
	State      domain.State `json:"state"`
	TaskRuns   int          `json:"taskRuns"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// SummaryFromDomain конвертирует domain.Execution в ExecutionSummary.
func SummaryFromDomain(e *domain.Execution) ExecutionSummary {
	return ExecutionSummary{
		ID:         e.ID,
		Namespace:  e.Namespace,
		FlowID:     e.FlowID,
		State:      e.State,
		TaskRuns:   len(e.TaskRunList),
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
}
