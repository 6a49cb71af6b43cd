package handler

import (
	"net/http"

	"ripple/internal/catalog"
	"ripple/internal/httputil"
)

// ModelsHandler exposes the model catalog.
type ModelsHandler struct {
	catalog *catalog.Catalog
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(c *catalog.Catalog) *ModelsHandler {
	return &ModelsHandler{catalog: c}
}

// ListModels returns every model in the catalog, in catalog order.
// GET /api/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"models": h.catalog.List()})
}
