package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/document"
	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/sharepoint"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type ViewCache interface {
	Get(ctx context.Context, id uuid.UUID, dest interface{}) bool
	Put(ctx context.Context, id uuid.UUID, view interface{})
}

type ReprocessEnqueuer interface {
	EnqueueReprocess(ctx context.Context, ext models.ExternalID) error
}

type FileDownloader interface {
	Download(ctx context.Context, driveID, itemID string) (*sharepoint.File, error)
}

type DocumentDeps struct {
	Repo    *document.Repository
	Schemas document.SchemaLookup
	Views   ViewCache // optional
	Queue   ReprocessEnqueuer
	Files   FileDownloader
	// InputsDriveID resolves routes that carry only a SharePoint item id.
	InputsDriveID string
}

type DocumentHandler struct {
	deps DocumentDeps
}

func NewDocumentHandler(deps DocumentDeps) *DocumentHandler {
	return &DocumentHandler{deps: deps}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := parseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := parsePositive(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, err := parsePositive(q.Get("pageSize"), defaultPageSize)
	if err != nil || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}

	docs, total, err := h.deps.Repo.ListByStatus(r.Context(), status, page, pageSize)
	if err != nil {
		writeDocumentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    docs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := parseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseTime(q.Get("processedFrom"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid processedFrom")
		return
	}
	to, err := parseTime(q.Get("processedTo"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid processedTo")
		return
	}

	docs, err := h.deps.Repo.ListForExport(r.Context(), document.ExportQuery{
		Status:        status,
		ProcessedFrom: from,
		ProcessedTo:   to,
	})
	if err != nil {
		writeDocumentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.deps.Repo.GetByID(r.Context(), id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var view document.View
	if h.deps.Views != nil && h.deps.Views.Get(r.Context(), id, &view) {
		writeJSON(w, http.StatusOK, view)
		return
	}

	v, err := h.deps.Repo.View(r.Context(), id, h.deps.Schemas)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	if h.deps.Views != nil {
		h.deps.Views.Put(r.Context(), id, v)
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *DocumentHandler) GetBySharePointItem(w http.ResponseWriter, r *http.Request) {
	ext := h.inputsItem(chi.URLParam(r, "itemId"))

	doc, err := h.deps.Repo.GetByExternalID(r.Context(), ext)
	if err != nil {
		writeDocumentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

type updateFieldRequest struct {
	FieldName string `json:"fieldName"`
	Value     string `json:"value"`
}

func (h *DocumentHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var req updateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.deps.Repo.UpdateFieldValue(r.Context(), id, req.FieldName, req.Value); err != nil {
		writeDocumentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Reprocess queues a full pipeline rerun for a known document and returns
// before the run starts.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	ext := h.inputsItem(chi.URLParam(r, "id"))

	exists, err := h.deps.Repo.ExistsByExternalID(r.Context(), ext)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	if err := h.deps.Queue.EnqueueReprocess(r.Context(), ext); err != nil {
		slog.Error("enqueue reprocess", "external_id", ext.String(), "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not queue reprocess")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"driveId": ext.DriveID,
		"itemId":  ext.ItemID,
	})
}

// SearchablePDF streams the searchable copy produced by OCR.
func (h *DocumentHandler) SearchablePDF(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	loc, err := h.deps.Repo.SearchableArtifact(r.Context(), id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}

	file, err := h.deps.Files.Download(r.Context(), loc.DriveID, loc.ItemID)
	if err != nil {
		slog.Error("download searchable pdf", "document_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "could not download searchable pdf")
		return
	}
	defer file.Body.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("File-Name", file.Name)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, file.Body); err != nil {
		slog.Warn("stream searchable pdf", "document_id", id, "error", err)
	}
}

func (h *DocumentHandler) inputsItem(itemID string) models.ExternalID {
	return models.ExternalID{DriveID: h.deps.InputsDriveID, ItemID: itemID}
}

func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, document.ErrArtifactUnavailable):
		writeError(w, http.StatusNotFound, "searchable pdf not available")
	case errors.Is(err, document.ErrInvalidField):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("document request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseStatus(raw string) (*models.Status, error) {
	if raw == "" {
		return nil, nil
	}
	s := models.Status(raw)
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %q", raw)
	}
	return &s, nil
}

func parsePositive(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return n, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", raw)
}
