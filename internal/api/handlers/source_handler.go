package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/api/middlewares"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

const maxUploadBytes = 32 << 20

type SourceHandler struct {
	sources *services.SourceService
}

func NewSourceHandler(sources *services.SourceService) *SourceHandler {
	return &SourceHandler{sources: sources}
}

type createSourceBody struct {
	AgentID string            `json:"agent_id"`
	Kind    models.SourceKind `json:"kind"`
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	RawText string            `json:"raw_text"`
	Section string            `json:"section"`
}

type sourceResponse struct {
	Source *models.KnowledgeSource `json:"source"`
	Job    *models.IngestionJob    `json:"job,omitempty"`
}

// CreateSource accepts JSON for URL and TEXT sources and multipart/form-data
// with a "file" part for PDF uploads. With ?sync=true the pipeline runs inside
// the request and the final source is returned.
func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}

	req, err := decodeCreate(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.TenantID = tenantID
	req.ActorID = middleware.UserID(r.Context())

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		src, err := h.sources.CreateAndIngest(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sourceResponse{Source: src})
		return
	}

	src, job, err := h.sources.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sourceResponse{Source: src, Job: job})
}

func decodeCreate(w http.ResponseWriter, r *http.Request) (services.CreateSourceRequest, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		return decodeUpload(w, r)
	}

	var body createSourceBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return services.CreateSourceRequest{}, core.Validationf("invalid request body")
	}
	return services.CreateSourceRequest{
		AgentID: body.AgentID,
		Kind:    body.Kind,
		Title:   body.Title,
		URL:     body.URL,
		RawText: body.RawText,
		Section: body.Section,
	}, nil
}

func decodeUpload(w http.ResponseWriter, r *http.Request) (services.CreateSourceRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return services.CreateSourceRequest{}, core.Validationf("invalid upload: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return services.CreateSourceRequest{}, core.Validationf("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return services.CreateSourceRequest{}, core.Validationf("read upload: %v", err)
	}
	return services.CreateSourceRequest{
		AgentID:     r.FormValue("agent_id"),
		Kind:        models.SourceKindPDF,
		Title:       r.FormValue("title"),
		Section:     r.FormValue("section"),
		FileName:    filepath.Base(header.Filename),
		FileData:    data,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

func (h *SourceHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}
	src, job, err := h.sources.Reindex(r.Context(), tenantID, chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sourceResponse{Source: src, Job: job})
}

func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}
	src, err := h.sources.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sourceResponse{Source: src})
}

func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}
	list, err := h.sources.List(r.Context(), tenantID, r.URL.Query().Get("agent_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.KnowledgeSource{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SourceHandler) Logs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOrUnauthorized(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, core.Validationf("limit must be a number"))
			return
		}
		limit = n
	}
	logs, err := h.sources.Logs(r.Context(), tenantID, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
