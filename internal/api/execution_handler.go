package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/repo"
	"github.com/shaiso/Stencil/internal/runner"
)

// ListExecutions возвращает execution, известные runner, а при
// наличии истории и сохранённые.
// GET /api/v1/executions?namespace=...&flowId=...&state=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ExecutionFilter{
		Namespace: q.Get("namespace"),
		FlowID:    q.Get("flowId"),
		State:     domain.State(q.Get("state")),
	}
	if filter.State != "" && !filter.State.IsValid() {
		BadRequest(w, "invalid state")
		return
	}

	result := []ExecutionSummary{}
	seen := make(map[uuid.UUID]bool)
	for _, e := range h.runner.List() {
		if !matches(e, filter) {
			continue
		}
		seen[e.ID] = true
		result = append(result, SummaryFromDomain(e))
	}

	if h.history != nil {
		stored, err := h.history.List(r.Context(), filter)
		if HandleError(w, h.logger, err) {
			return
		}
		for _, e := range stored {
			if !seen[e.ID] {
				result = append(result, SummaryFromDomain(e))
			}
		}
	}

	List(w, result, len(result))
}

func matches(e *domain.Execution, f repo.ExecutionFilter) bool {
	return (f.Namespace == "" || e.Namespace == f.Namespace) &&
		(f.FlowID == "" || e.FlowID == f.FlowID) &&
		(f.State == "" || e.State == f.State)
}

// CreateExecution запускает flow.
//
// По умолчанию отвечает 202 сразу после запуска. С wait=true ждёт
// финального состояния (не дольше timeout) и отвечает 200.
// POST /api/v1/executions/{namespace}/{id}?wait=true&timeout=30s
func (h *Handler) CreateExecution(w http.ResponseWriter, r *http.Request) {
	var body CreateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	q := r.URL.Query()
	req := runner.RunRequest{
		Namespace: r.PathValue("namespace"),
		FlowID:    r.PathValue("id"),
		Inputs:    body.Inputs,
	}

	if raw := q.Get("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			BadRequest(w, "invalid timeout")
			return
		}
		req.Timeout = timeout
	}

	wait := false
	if raw := q.Get("wait"); raw != "" {
		var err error
		if wait, err = strconv.ParseBool(raw); err != nil {
			BadRequest(w, "invalid wait")
			return
		}
	}

	handle, err := h.runner.Start(r.Context(), req)
	if HandleError(w, h.logger, err) {
		return
	}

	if !wait {
		Accepted(w, handle.Snapshot())
		return
	}

	exec, err := handle.Wait(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, exec)
}

// GetExecution возвращает execution с task runs.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(w, r)
	if !ok {
		return
	}

	exec, err := h.runner.Get(id)
	if errors.Is(err, runner.ErrExecutionNotFound) && h.history != nil {
		exec, err = h.history.Get(r.Context(), id)
	}
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, exec)
}

// KillExecution останавливает execution.
// POST /api/v1/executions/{id}/kill
func (h *Handler) KillExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(w, r)
	if !ok {
		return
	}

	if HandleError(w, h.logger, h.runner.Kill(id)) {
		return
	}

	exec, err := h.runner.Get(id)
	if HandleError(w, h.logger, err) {
		return
	}
	Accepted(w, exec)
}

// ListExecutionLogs возвращает записи лога execution.
// GET /api/v1/executions/{id}/logs?minLevel=WARN
func (h *Handler) ListExecutionLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(w, r)
	if !ok {
		return
	}

	var minLevel domain.Level
	if raw := r.URL.Query().Get("minLevel"); raw != "" {
		level, ok := domain.ParseLevel(raw)
		if !ok {
			BadRequest(w, "invalid minLevel")
			return
		}
		minLevel = level
	}

	if h.logs == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "log store is not configured")
		return
	}

	entries, err := h.logs.ListByExecution(r.Context(), id, minLevel)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, entries, len(entries))
}

func parseExecutionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return uuid.Nil, false
	}
	return id, true
}
