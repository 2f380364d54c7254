package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
)

// ListTemplates возвращает все шаблоны.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	if templates == nil {
		templates = []*domain.Template{}
	}
	List(w, templates, len(templates))
}

// CreateTemplate сохраняет новый шаблон. Повторное сохранение — 409.
// POST /api/v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl domain.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := engine.ValidateTemplate(&tmpl, h.runner.Tasks().Has); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if HandleError(w, h.logger, h.templates.Store(r.Context(), &tmpl)) {
		return
	}

	h.logger.Info("template created", "template", tmpl.Key().String())
	Created(w, tmpl)
}

// GetTemplate возвращает шаблон.
// GET /api/v1/templates/{namespace}/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.templates.Lookup(r.Context(), r.PathValue("namespace"), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, tmpl)
}
