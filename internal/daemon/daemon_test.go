package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/client"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/lock"
	"github.com/matheus3301/wppq/internal/session"
	"github.com/matheus3301/wppq/internal/status"
	"go.uber.org/fx"
)

// fakeGreenAPI accepts every send and reports the instance as authorized.
type fakeGreenAPI struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeGreenAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/waInstance42/getStateInstance/tok":
		_, _ = w.Write([]byte(`{"stateInstance":"authorized"}`))
	case "/waInstance42/sendMessage/tok":
		var req struct {
			ChatID  string `json:"chatId"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.sent = append(f.sent, req.ChatID)
		n := len(f.sent)
		f.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"idMessage":"id-%d"}`, n)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGreenAPI) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	// Short path to stay under the unix socket length limit.
	home, err := os.MkdirTemp("/tmp", "wppq-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(home) }()
	t.Setenv("WPPQ_HOME", home)

	gw := &fakeGreenAPI{}
	gwSrv := httptest.NewServer(gw)
	defer gwSrv.Close()

	cfgPath := filepath.Join(home, "config.toml")
	cfg := fmt.Sprintf(`
[gateway]
kind = "greenapi"

[greenapi]
base_url = %q
instance_id = "42"
token = "tok"

[window]
timezone = "UTC"
`, gwSrv.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	app := fx.New(
		Module(Params{SessionName: "test", ConfigPath: cfgPath, GatewayPollInterval: 20 * time.Millisecond}),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	}()

	// A second daemon must not get the session.
	if _, err := lock.Acquire(session.LockPath("test")); err == nil {
		t.Fatal("second lock acquisition should fail while daemon runs")
	} else {
		var held *lock.HeldError
		if !errors.As(err, &held) {
			t.Errorf("expected HeldError, got %v", err)
		}
	}

	c := client.New(session.SocketPath("test"))
	defer func() { _ = c.Close() }()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	info, err := os.Stat(session.SocketPath("test"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	waitFor(t, "gateway ready", func() bool {
		g, err := c.Gateway(ctx)
		return err == nil && g.State == status.Ready
	})

	resp, err := c.Enqueue(ctx, []api.EnqueueItem{
		{Recipient: "0501234567", Template: "Hi {{name}}", Values: map[string]string{"name": "Avi"}},
		{Recipient: "0527654321", Template: "Hi {{name}}", Values: map[string]string{"name": "Noa"}},
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if resp.Queued != 2 {
		t.Fatalf("queued = %d, want 2", resp.Queued)
	}

	if _, err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "drain", func() bool {
		st, err := c.Status(ctx)
		return err == nil && !st.Sending && st.DailyCount == 2
	})

	if got := gw.Sent(); len(got) != 2 || got[0] != "972501234567@c.us" || got[1] != "972527654321@c.us" {
		t.Errorf("gateway received %v", got)
	}

	waitFor(t, "journal", func() bool {
		h, err := c.History(ctx, 10, 0)
		return err == nil && len(h.Entries) == 2 && h.SentToday == 2
	})

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
	stopped = true

	if _, err := os.Stat(session.SocketPath("test")); !os.IsNotExist(err) {
		t.Errorf("socket should be removed after stop, stat err = %v", err)
	}
	l, err := lock.Acquire(session.LockPath("test"))
	if err != nil {
		t.Fatalf("lock should be free after stop: %v", err)
	}
	_ = l.Release()
}

func TestInvalidConfigFailsStart(t *testing.T) {
	home, err := os.MkdirTemp("/tmp", "wppq-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(home) }()
	t.Setenv("WPPQ_HOME", home)

	cfgPath := filepath.Join(home, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[gateway]\nkind = \"greenapi\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	app := fx.New(Module(Params{SessionName: "bad", ConfigPath: cfgPath}), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected construction error for greenapi without credentials")
	}
}

func TestStopTimeoutCoversSendTimeout(t *testing.T) {
	home := t.TempDir()
	t.Setenv("WPPQ_HOME", home)

	if got, want := StopTimeout(Params{SessionName: "main"}), dispatch.DefaultSendTimeout+15*time.Second; got != want {
		t.Errorf("default StopTimeout = %v, want %v", got, want)
	}

	cfgPath := filepath.Join(home, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[dispatch]\nsend_timeout = \"90s\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := StopTimeout(Params{SessionName: "main", ConfigPath: cfgPath}); got != 105*time.Second {
		t.Errorf("StopTimeout = %v, want 1m45s", got)
	}
}
