package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/config"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/greenapi"
	"github.com/matheus3301/wppq/internal/session"
	"github.com/matheus3301/wppq/internal/status"
	"github.com/matheus3301/wppq/internal/wa"
	"go.uber.org/zap"
)

// Gateway is the outbound transport the dispatch controller sends through.
type Gateway interface {
	dispatch.Sender
	Open(ctx context.Context) error
	Close() error
	// QR returns the pairing code source, or nil when the gateway has none.
	QR() api.QRSource
}

type whatsmeowGateway struct {
	*wa.Adapter
}

func (g whatsmeowGateway) Open(ctx context.Context) error { return g.Connect(ctx) }
func (g whatsmeowGateway) QR() api.QRSource               { return g.Adapter }

type greenAPIGateway struct {
	*greenapi.Client
	monitor *greenapi.Monitor
}

func (g greenAPIGateway) Open(ctx context.Context) error {
	g.monitor.Start(ctx)
	return nil
}

func (g greenAPIGateway) Close() error {
	g.monitor.Stop()
	return nil
}

func (greenAPIGateway) QR() api.QRSource { return nil }

// newGateway selects the transport named by gateway.kind.
func newGateway(ctx context.Context, p Params, cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (Gateway, error) {
	switch cfg.Gateway.Kind {
	case config.GatewayGreenAPI:
		gc := cfg.GreenAPI
		client := greenapi.New(gc.BaseURL, gc.InstanceID, gc.Token, gc.Timeout.Duration)
		logger.Info("using GreenAPI gateway", zap.String("instance", gc.InstanceID))
		return greenAPIGateway{
			Client:  client,
			monitor: greenapi.NewMonitor(client, machine, logger.Named("greenapi"), p.GatewayPollInterval),
		}, nil
	case config.GatewayWhatsmeow:
		adapter, err := wa.NewAdapter(ctx, session.SessionDBPath(p.SessionName), b, machine, logger.Named("whatsapp"), p.QRWriter)
		if err != nil {
			return nil, err
		}
		return whatsmeowGateway{Adapter: adapter}, nil
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", cfg.Gateway.Kind)
	}
}
