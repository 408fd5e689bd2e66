package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/docextract/internal/llm"
)

type ModelsHandler struct {
	gateway llm.Gateway
	types   func() []string
}

// NewModelsHandler reports the configured language models and the document
// types the extraction registry knows.
func NewModelsHandler(gateway llm.Gateway, types func() []string) *ModelsHandler {
	return &ModelsHandler{gateway: gateway, types: types}
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":        h.gateway.ListModels(),
		"documentTypes": h.types(),
	})
}
