// Package api serves the operator HTTP API used by wppqctl.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/status"
	"github.com/matheus3301/wppq/internal/store"
	"github.com/matheus3301/wppq/internal/window"
	"go.uber.org/zap"
)

// Store is the persistence surface the API reads and writes.
type Store interface {
	CreateRecord(ctx context.Context, kind string, fields map[string]any) (*store.Record, error)
	GetRecord(ctx context.Context, kind, id string) (*store.Record, error)
	UpdateRecord(ctx context.Context, kind, id string, fields map[string]any) (*store.Record, error)
	ListRecords(ctx context.Context, kind string, limit, offset int) ([]store.Record, error)
	ListSendLog(ctx context.Context, limit, offset int) ([]store.SendLogEntry, error)
	CountSendLog(ctx context.Context, status store.SendStatus, sinceMs int64) (int, error)
}

// QRSource exposes the pairing code while a device link is pending.
type QRSource interface {
	LatestQR() string
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Dispatch    *dispatch.Controller
	Policy      window.Policy
	Store       Store
	Gateway     *status.Machine
	GatewayKind string
	QR          QRSource
	CountryCode string
	Now         func() time.Time
	Logger      *zap.Logger
	// Bus is optional; its drop counter is reported by /v1/health.
	Bus *bus.Bus
}

type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{Deps: d}
}

// Router builds the chi router with every /v1 route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/dispatch", func(r chi.Router) {
			r.Get("/", h.GetDispatch)
			r.Post("/enqueue", h.Enqueue)
			r.Post("/enqueue/records", h.EnqueueRecords)
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Put("/queue/{index}", h.EditQueued)
			r.Delete("/queue/{index}", h.RemoveQueued)
			r.Put("/failed/{index}", h.EditFailed)
			r.Delete("/failed/{index}", h.RemoveFailed)
			r.Post("/failed/{index}/retry", h.RetryFailed)
		})

		r.Get("/window", h.GetWindow)
		r.Get("/history", h.History)

		r.Get("/gateway", h.GetGateway)
		r.Get("/gateway/qr", h.GetGatewayQR)

		r.Route("/records/{kind}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Patch("/{id}", h.UpdateRecord)
		})
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.Logger.Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// HealthResponse is the body of GET /v1/health. DroppedEvents counts bus
// deliveries lost to a full subscriber, e.g. send log entries never written.
type HealthResponse struct {
	OK            bool   `json:"ok"`
	DroppedEvents uint64 `json:"dropped_events"`
}

// Health handles GET /v1/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{OK: true}
	if h.Bus != nil {
		resp.DroppedEvents = h.Bus.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func jsonDecoder(r *http.Request) *json.Decoder {
	return json.NewDecoder(io.LimitReader(r.Body, 4<<20))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := jsonDecoder(r).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
