package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wppq/internal/store"
	"go.uber.org/zap"
)

// RecordRequest is the body of record create and update calls. On update
// a null field value deletes the field.
type RecordRequest struct {
	Fields map[string]any `json:"fields"`
}

func validKind(kind string) bool {
	if kind == "" || len(kind) > 64 {
		return false
	}
	for _, c := range kind {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := chi.URLParam(r, "kind")
	if !validKind(kind) {
		writeError(w, http.StatusBadRequest, "invalid record kind")
		return "", false
	}
	return kind, true
}

// ListRecords handles GET /v1/records/{kind}.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit", 50)
	offset, ok2 := queryInt(r, "offset", 0)
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	recs, err := h.Store.ListRecords(r.Context(), kind, min(max(limit, 1), 500), offset)
	if err != nil {
		h.Logger.Error("list records", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

// CreateRecord handles POST /v1/records/{kind}.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req RecordRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Store.CreateRecord(r.Context(), kind, req.Fields)
	if err != nil {
		h.Logger.Error("create record", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetRecord handles GET /v1/records/{kind}/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	rec, err := h.Store.GetRecord(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, store.ErrRecordNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateRecord handles PATCH /v1/records/{kind}/{id}.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req RecordRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.Store.UpdateRecord(r.Context(), kind, chi.URLParam(r, "id"), req.Fields)
	if errors.Is(err, store.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("update record", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
