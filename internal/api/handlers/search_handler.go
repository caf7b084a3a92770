package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

type SearchHandler struct {
	retrieval *services.RetrievalService
}

func NewSearchHandler(retrieval *services.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

type searchBody struct {
	AgentID   string `json:"agent_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
	MaxTokens int    `json:"max_tokens"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}

	var body searchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, core.Validationf("invalid request body"))
		return
	}

	results, err := h.retrieval.Search(r.Context(), services.SearchRequest{
		TenantID:  tenantID,
		AgentID:   body.AgentID,
		Query:     body.Query,
		TopK:      body.TopK,
		MaxTokens: body.MaxTokens,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
