package handle

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mind-lens/api/internal/prompt"
	"mind-lens/api/internal/store"
)

const maxPageSize = 100

type logsPage struct {
	Items  []store.AnalysisLog `json:"items"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// ListLogs — GET /api/logs?limit=&offset=
func (h *Handle) ListLogs(w http.ResponseWriter, r *http.Request) error {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.logs.Recent(r.Context(), limit, offset)
	if err != nil {
		return err
	}
	total, err := h.logs.Count(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, logsPage{Items: items, Total: total, Limit: limit, Offset: offset})
	return nil
}

// GetLog — GET /api/logs/{id}
func (h *Handle) GetLog(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return httpErr(http.StatusBadRequest, "bad id", nil)
	}
	entry, err := h.logs.Get(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

// Personas — GET /api/personas
func (h *Handle) Personas(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, prompt.Personas)
	return nil
}
