package wa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/status"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotConnected is returned by Send while the socket is down.
var ErrNotConnected = errors.New("whatsapp: not connected")

// Adapter wraps the whatsmeow client and sends dispatch messages over a
// linked-device session.
type Adapter struct {
	client  *whatsmeow.Client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	qrOut   io.Writer

	mu       sync.RWMutex
	latestQR string
}

// NewAdapter opens the whatsmeow device store at dbPath. QR codes shown
// during pairing are rendered to qrOut when it is non-nil.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, machine *status.Machine, logger *zap.Logger, qrOut io.Writer) (*Adapter, error) {
	wastore.SetOSInfo("wppq", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), nil)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:  whatsmeow.NewClient(deviceStore, nil),
		bus:     b,
		machine: machine,
		logger:  logger,
		qrOut:   qrOut,
	}
	a.client.AddEventHandler(NewEventHandler(machine, logger).Handle)
	return a, nil
}

// IsLoggedIn returns whether the device store holds credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// PhoneNumber returns the linked account's number, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// Connect opens the socket. Without stored credentials it starts the QR
// pairing flow in the background and returns once the flow is running.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.IsLoggedIn() {
		_ = a.machine.Drive(status.AuthRequired, "no stored credentials")
		events, err := a.StartQRAuth(ctx)
		if err != nil {
			return err
		}
		go a.relayAuth(events)
		return nil
	}
	_ = a.machine.Drive(status.Connecting, "")
	a.logger.Info("connecting to WhatsApp", zap.String("phone", a.PhoneNumber()))
	return a.client.Connect()
}

func (a *Adapter) relayAuth(events <-chan AuthEvent) {
	for evt := range events {
		switch evt.Type {
		case AuthEventQRCode:
			a.setLatestQR(evt.QRCode)
			if a.qrOut != nil {
				_, _ = fmt.Fprintf(a.qrOut, "\nScan this QR code with WhatsApp:\n\n%s\n", RenderQR(evt.QRCode))
			}
		case AuthEventAuthenticated:
			a.setLatestQR("")
			a.logger.Info("device paired")
		default:
			a.setLatestQR("")
			a.logger.Warn("pairing ended", zap.String("reason", evt.Message))
			_ = a.machine.Drive(status.Error, evt.Message)
		}
	}
}

func (a *Adapter) setLatestQR(code string) {
	a.mu.Lock()
	a.latestQR = code
	a.mu.Unlock()
}

// LatestQR returns the pairing code currently on offer, if any.
func (a *Adapter) LatestQR() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latestQR
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Close disconnects. The device store stays open until process exit.
func (a *Adapter) Close() error {
	a.Disconnect()
	return nil
}

// JID converts normalized digits to a user JID. Full JIDs are parsed as is.
func JID(recipient string) (types.JID, error) {
	if strings.Contains(recipient, "@") {
		return types.ParseJID(recipient)
	}
	if recipient == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	return types.NewJID(recipient, types.DefaultUserServer), nil
}

// Send delivers a plain text message and returns the server message ID.
func (a *Adapter) Send(ctx context.Context, recipient, body string) (string, error) {
	if !a.client.IsConnected() {
		return "", ErrNotConnected
	}
	to, err := JID(recipient)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}
