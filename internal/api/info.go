package api

import (
	"net/http"
	"time"

	"github.com/matheus3301/wppq/internal/status"
	"github.com/matheus3301/wppq/internal/store"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

type WindowResponse struct {
	Allowed  bool      `json:"allowed"`
	Override bool      `json:"override"`
	Now      time.Time `json:"now"`
	Timezone string    `json:"timezone"`
	Holiday  string    `json:"holiday,omitempty"`
}

type HistoryResponse struct {
	Entries     []store.SendLogEntry `json:"entries"`
	SentToday   int                  `json:"sent_today"`
	FailedToday int                  `json:"failed_today"`
}

type GatewayResponse struct {
	Kind   string       `json:"kind"`
	State  status.State `json:"state"`
	Since  time.Time    `json:"since"`
	Reason string       `json:"reason,omitempty"`
	QR     bool         `json:"qr_pending"`
}

// GetWindow handles GET /v1/window?override=bool.
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	override := queryBool(r, "override")
	now := h.Now()
	loc := h.location()
	writeJSON(w, http.StatusOK, WindowResponse{
		Allowed:  h.Policy.Within(now, override),
		Override: override,
		Now:      now.In(loc),
		Timezone: loc.String(),
		Holiday:  h.Policy.Holiday(now),
	})
}

func (h *Handler) location() *time.Location {
	if h.Policy.Location != nil {
		return h.Policy.Location
	}
	return time.Local
}

// History handles GET /v1/history?limit&offset, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 50)
	offset, ok2 := queryInt(r, "offset", 0)
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}
	limit = min(max(limit, 1), 500)

	ctx := r.Context()
	entries, err := h.Store.ListSendLog(ctx, limit, offset)
	if err != nil {
		h.Logger.Error("list send log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	y, m, d := h.Now().In(h.location()).Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, h.location()).UnixMilli()
	sent, err := h.Store.CountSendLog(ctx, store.SendSent, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failed, err := h.Store.CountSendLog(ctx, store.SendFailed, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if entries == nil {
		entries = []store.SendLogEntry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, SentToday: sent, FailedToday: failed})
}

// GetGateway handles GET /v1/gateway.
func (h *Handler) GetGateway(w http.ResponseWriter, _ *http.Request) {
	resp := GatewayResponse{Kind: h.GatewayKind}
	if h.Gateway != nil {
		resp.State, resp.Since, resp.Reason = h.Gateway.Info()
	}
	resp.QR = h.QR != nil && h.QR.LatestQR() != ""
	writeJSON(w, http.StatusOK, resp)
}

// GetGatewayQR handles GET /v1/gateway/qr, answering with a PNG of the
// pending pairing code.
func (h *Handler) GetGatewayQR(w http.ResponseWriter, _ *http.Request) {
	var code string
	if h.QR != nil {
		code = h.QR.LatestQR()
	}
	if code == "" {
		writeError(w, http.StatusNotFound, "no pairing code pending")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
