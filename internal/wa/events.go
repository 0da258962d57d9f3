package wa

import (
	"github.com/matheus3301/wppq/internal/status"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// EventHandler maps whatsmeow connection events onto the gateway state
// machine. Inbound messages are ignored.
type EventHandler struct {
	machine *status.Machine
	logger  *zap.Logger
}

func NewEventHandler(machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{machine: machine, logger: logger}
}

// Handle is registered with whatsmeow.Client.AddEventHandler.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		h.logger.Info("WhatsApp paired", zap.String("jid", evt.ID.String()))
		h.drive(status.Connecting, "paired")
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		h.drive(status.Ready, "")
	case *events.KeepAliveRestored:
		h.drive(status.Ready, "keepalive restored")
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.drive(status.Reconnecting, "disconnected")
	case *events.KeepAliveTimeout:
		h.logger.Warn("WhatsApp keepalive timeout", zap.Int("error_count", evt.ErrorCount))
		h.drive(status.Reconnecting, "keepalive timeout")
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.drive(status.AuthRequired, "logged out: "+evt.Reason.String())
	case *events.StreamReplaced:
		h.logger.Warn("WhatsApp stream replaced by another client")
		h.drive(status.Error, "stream replaced")
	case *events.TemporaryBan:
		h.logger.Error("WhatsApp temporary ban", zap.String("ban", evt.String()))
		h.drive(status.Error, evt.String())
	case *events.ConnectFailure:
		h.logger.Error("WhatsApp connect failure", zap.String("reason", evt.Reason.String()), zap.String("message", evt.Message))
		h.drive(status.Error, evt.Reason.String())
	case *events.ClientOutdated:
		h.logger.Error("WhatsApp client outdated")
		h.drive(status.Error, "client outdated")
	}
}

func (h *EventHandler) drive(to status.State, reason string) {
	if err := h.machine.Drive(to, reason); err != nil {
		h.logger.Debug("gateway transition skipped", zap.String("to", string(to)), zap.Error(err))
	}
}
