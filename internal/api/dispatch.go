package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wppq/internal/compose"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/phone"
	"github.com/matheus3301/wppq/internal/status"
	"go.uber.org/zap"
)

// DispatchStatus is the body of GET /v1/dispatch.
type DispatchStatus struct {
	dispatch.Snapshot
	DailyLimit     int  `json:"daily_limit"`
	DailyRemaining int  `json:"daily_remaining"`
	WindowOpen     bool `json:"window_open"`
}

type EnqueueItem struct {
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Values    map[string]string `json:"values,omitempty"`
}

type EnqueueRequest struct {
	Items []EnqueueItem `json:"items"`
}

// EnqueueRecordsRequest renders one message per record. PhoneField
// defaults to "phone".
type EnqueueRecordsRequest struct {
	Kind       string   `json:"kind"`
	IDs        []string `json:"ids"`
	PhoneField string   `json:"phone_field,omitempty"`
	Template   string   `json:"template"`
}

// Unresolved lists template tokens left in a rendered body.
type Unresolved struct {
	Index  int      `json:"index"`
	Tokens []string `json:"tokens"`
}

type EnqueueResponse struct {
	Enqueued   []dispatch.Message `json:"enqueued"`
	Unresolved []Unresolved       `json:"unresolved,omitempty"`
	Queued     int                `json:"queued"`
}

// InvalidItem describes why an item was rejected.
type InvalidItem struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type StartRequest struct {
	Override bool `json:"override"`
}

type EditRequest struct {
	Body string `json:"body"`
}

func (h *Handler) status() DispatchStatus {
	snap := h.Dispatch.Snapshot()
	return DispatchStatus{
		Snapshot:       snap,
		DailyLimit:     h.Policy.DailyLimit,
		DailyRemaining: h.Policy.Remaining(snap.DailyCount),
		WindowOpen:     h.Policy.Within(h.Now(), false),
	}
}

// GetDispatch handles GET /v1/dispatch.
func (h *Handler) GetDispatch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// Enqueue handles POST /v1/dispatch/enqueue. Nothing is queued unless every
// recipient normalizes.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	msgs := make([]dispatch.Message, 0, len(req.Items))
	var invalid []InvalidItem
	var unresolved []Unresolved
	for i, it := range req.Items {
		to, err := phone.Normalize(it.Recipient, h.CountryCode)
		if err != nil {
			invalid = append(invalid, InvalidItem{Index: i, Value: it.Recipient, Error: err.Error()})
			continue
		}
		if it.Template == "" {
			invalid = append(invalid, InvalidItem{Index: i, Value: it.Recipient, Error: "empty template"})
			continue
		}
		if missing := compose.Missing(it.Template, it.Values); len(missing) > 0 {
			unresolved = append(unresolved, Unresolved{Index: i, Tokens: missing})
		}
		msgs = append(msgs, dispatch.Message{Recipient: to, Body: compose.Render(it.Template, it.Values)})
	}
	if len(invalid) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   fmt.Sprintf("%d of %d items are invalid", len(invalid), len(req.Items)),
			Details: invalid,
		})
		return
	}
	h.enqueue(w, msgs, unresolved)
}

// EnqueueRecords handles POST /v1/dispatch/enqueue/records.
func (h *Handler) EnqueueRecords(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRecordsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Kind == "" || len(req.IDs) == 0 || req.Template == "" {
		writeError(w, http.StatusBadRequest, "kind, ids and template are required")
		return
	}
	field := req.PhoneField
	if field == "" {
		field = "phone"
	}

	msgs := make([]dispatch.Message, 0, len(req.IDs))
	var invalid []InvalidItem
	var unresolved []Unresolved
	for i, id := range req.IDs {
		rec, err := h.Store.GetRecord(r.Context(), req.Kind, id)
		if err != nil {
			h.Logger.Error("load record", zap.String("kind", req.Kind), zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rec == nil {
			invalid = append(invalid, InvalidItem{Index: i, Value: id, Error: "record not found"})
			continue
		}
		values := rec.StringFields()
		to, err := phone.Normalize(values[field], h.CountryCode)
		if err != nil {
			invalid = append(invalid, InvalidItem{Index: i, Value: id, Error: fmt.Sprintf("%s: %v", field, err)})
			continue
		}
		if missing := compose.Missing(req.Template, values); len(missing) > 0 {
			unresolved = append(unresolved, Unresolved{Index: i, Tokens: missing})
		}
		msgs = append(msgs, dispatch.Message{Recipient: to, Body: compose.Render(req.Template, values)})
	}
	if len(invalid) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   fmt.Sprintf("%d of %d records cannot be addressed", len(invalid), len(req.IDs)),
			Details: invalid,
		})
		return
	}
	h.enqueue(w, msgs, unresolved)
}

func (h *Handler) enqueue(w http.ResponseWriter, msgs []dispatch.Message, unresolved []Unresolved) {
	added := h.Dispatch.Enqueue(msgs)
	writeJSON(w, http.StatusOK, EnqueueResponse{
		Enqueued:   added,
		Unresolved: unresolved,
		Queued:     h.Dispatch.QueueLen(),
	})
}

// Start handles POST /v1/dispatch/start. The body is optional.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if h.Dispatch.QueueLen() == 0 {
		writeError(w, http.StatusBadRequest, "queue is empty")
		return
	}
	if err := h.Policy.CheckStart(h.Now(), h.Dispatch.DailyCount(), req.Override); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	// Every send would fail straight away while the gateway is down.
	if st := h.Gateway.Current(); st != status.Ready && !req.Override {
		writeError(w, http.StatusConflict, fmt.Sprintf("gateway is %s, not %s", st, status.Ready))
		return
	}
	if req.Override {
		h.Logger.Info("dispatch started with window override")
	}
	h.Dispatch.StartSending()
	writeJSON(w, http.StatusOK, h.status())
}

func decodeOptional(r *http.Request, v any) error {
	err := jsonDecoder(r).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Stop handles POST /v1/dispatch/stop.
func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	h.Dispatch.StopSending()
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) EditQueued(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.Dispatch.EditQueued)
}

func (h *Handler) EditFailed(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.Dispatch.EditFailed)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request, fn func(int, string, string) error) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body must not be empty")
		return
	}
	if err := fn(index, r.URL.Query().Get("id"), req.Body); err != nil {
		writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) RemoveQueued(w http.ResponseWriter, r *http.Request) {
	h.take(w, r, h.Dispatch.RemoveQueued)
}

func (h *Handler) RemoveFailed(w http.ResponseWriter, r *http.Request) {
	h.take(w, r, h.Dispatch.RemoveFailed)
}

func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.take(w, r, h.Dispatch.RetryFailed)
}

func (h *Handler) take(w http.ResponseWriter, r *http.Request, fn func(int, string) (dispatch.Message, error)) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	m, err := fn(index, r.URL.Query().Get("id"))
	if err != nil {
		writeIndexError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid index %q", raw))
		return 0, false
	}
	return n, true
}

// writeIndexError maps positional failures. ?id= on a positional route
// names the message the caller means, so a shifted index still reaches it.
func writeIndexError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, dispatch.ErrMessageGone):
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
