package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/scheduler"
)

// ListFlows возвращает все flow.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.flows.List(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	if flows == nil {
		flows = []*domain.Flow{}
	}
	List(w, flows, len(flows))
}

// GetFlow возвращает flow.
// GET /api/v1/flows/{namespace}/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(r.Context(), r.PathValue("namespace"), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, flow)
}

// PutFlow создаёт или заменяет flow. Namespace и id берутся из пути.
// PUT /api/v1/flows/{namespace}/{id}
func (h *Handler) PutFlow(w http.ResponseWriter, r *http.Request) {
	var flow domain.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	flow.Namespace = r.PathValue("namespace")
	flow.ID = r.PathValue("id")

	if err := engine.Validate(&flow, h.runner.Tasks().Has); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := scheduler.ValidateTriggers(&flow); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if HandleError(w, h.logger, h.flows.Put(r.Context(), &flow)) {
		return
	}

	h.logger.Info("flow saved", "flow", flow.Key().String())
	Success(w, flow)
}
