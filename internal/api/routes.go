package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.CreateTemplate)))
	mux.Handle("GET /api/v1/templates/{namespace}/{id}", chain(http.HandlerFunc(h.GetTemplate)))

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("GET /api/v1/flows/{namespace}/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("PUT /api/v1/flows/{namespace}/{id}", chain(http.HandlerFunc(h.PutFlow)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("POST /api/v1/executions/{namespace}/{id}", chain(http.HandlerFunc(h.CreateExecution)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
	mux.Handle("POST /api/v1/executions/{id}/kill", chain(http.HandlerFunc(h.KillExecution)))
	mux.Handle("GET /api/v1/executions/{id}/logs", chain(http.HandlerFunc(h.ListExecutionLogs)))
}
