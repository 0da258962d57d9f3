package wa

import (
	"strings"
	"testing"

	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

func TestHandleConnectedFromAuthRequired(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(m, zap.NewNop())
	if err := m.Transition(status.AuthRequired); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("gateway.", 10)
	defer unsub()

	h.Handle(&events.Connected{})

	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY", m.Current())
	}
	var last status.StatusChange
	for len(ch) > 0 {
		last = (<-ch).Payload.(status.StatusChange)
	}
	if last.To != status.Ready {
		t.Errorf("last published change = %+v, want to READY", last)
	}
}

func TestHandleDisconnectAndReconnect(t *testing.T) {
	m := status.NewMachine(nil)
	h := NewEventHandler(m, zap.NewNop())

	h.Handle(&events.Connected{})
	h.Handle(&events.Disconnected{})
	if m.Current() != status.Reconnecting {
		t.Fatalf("state = %s, want RECONNECTING", m.Current())
	}
	h.Handle(&events.Connected{})
	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY", m.Current())
	}
}

func TestHandleLoggedOut(t *testing.T) {
	m := status.NewMachine(nil)
	h := NewEventHandler(m, zap.NewNop())

	h.Handle(&events.Connected{})
	h.Handle(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})

	st, _, reason := m.Info()
	if st != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", st)
	}
	if !strings.HasPrefix(reason, "logged out") {
		t.Errorf("reason = %q", reason)
	}
}

func TestHandleStreamReplaced(t *testing.T) {
	m := status.NewMachine(nil)
	h := NewEventHandler(m, zap.NewNop())

	h.Handle(&events.Connected{})
	h.Handle(&events.StreamReplaced{})
	if m.Current() != status.Error {
		t.Errorf("state = %s, want ERROR", m.Current())
	}
}

func TestHandleIgnoresMessages(t *testing.T) {
	m := status.NewMachine(nil)
	h := NewEventHandler(m, zap.NewNop())
	h.Handle(&events.Message{})
	if m.Current() != status.Booting {
		t.Errorf("state = %s, want BOOTING", m.Current())
	}
}

func TestJID(t *testing.T) {
	jid, err := JID("972501234567")
	if err != nil {
		t.Fatal(err)
	}
	if jid.Server != types.DefaultUserServer || jid.User != "972501234567" {
		t.Errorf("JID = %v", jid)
	}
	if got := jid.String(); got != "972501234567@s.whatsapp.net" {
		t.Errorf("JID string = %q", got)
	}

	group, err := JID("120363025246125486@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if group.Server != types.GroupServer {
		t.Errorf("group server = %q", group.Server)
	}

	if _, err := JID(""); err == nil {
		t.Error("JID(\"\") expected error")
	}
}

func TestRenderQR(t *testing.T) {
	out := RenderQR("2@abc,def,ghi")
	if !strings.ContainsRune(out, '█') {
		t.Error("rendered QR has no full blocks")
	}
	if lines := strings.Count(out, "\n"); lines < 10 {
		t.Errorf("rendered QR has %d lines", lines)
	}
}
