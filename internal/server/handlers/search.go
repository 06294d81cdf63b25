package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/licitalens/licitalens/internal/core/engine"
	apperrors "github.com/licitalens/licitalens/internal/errors"
)

// SearchHandler serves coordinated searches.
type SearchHandler struct {
	Coordinator *engine.Coordinator
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(c *engine.Coordinator) *SearchHandler {
	return &SearchHandler{Coordinator: c}
}

type searchRequestBody struct {
	Query      string         `json:"query"`
	Filters    map[string]any `json:"filters,omitempty"`
	MaxResults int            `json:"max_results,omitempty"`
}

// ServeHTTP handles POST /api/v1/search.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		return
	}

	resp, err := h.Coordinator.Search(r.Context(), engine.Request{
		Query:      body.Query,
		Filters:    body.Filters,
		MaxResults: body.MaxResults,
		Token:      bearerToken(r),
	})
	if err != nil {
		if errors.Is(err, engine.ErrMissingQuery) {
			respondWithError(w, r, apperrors.NewInvalidInputError("query is required"))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "search failed"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
