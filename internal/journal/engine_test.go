package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type recordingCache struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (c *recordingCache) StoreSent(_ context.Context, messageID, _, deliveryID string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		c.saved = map[string]string{}
	}
	c.saved[messageID] = deliveryID
	return c.err
}

func (c *recordingCache) get(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[id]
}

func waitForEntries(t *testing.T, db *store.DB, n int) []store.SendLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		list, err := db.ListSendLog(context.Background(), 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) >= n {
			return list
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d journal entries", n)
	return nil
}

func TestEngineRecordsOutcomes(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	rc := &recordingCache{}
	e := NewEngine(db, rc, b, zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	now := time.Now()
	b.Publish(bus.Event{Kind: bus.KindSent, Payload: dispatch.SentEvent{
		Message:    dispatch.Message{ID: "m1", Recipient: "972541234567", Body: "hi"},
		DeliveryID: "BAE1",
		SentAt:     now,
	}})
	b.Publish(bus.Event{Kind: bus.KindFailed, Payload: dispatch.FailedEvent{
		Message:  dispatch.Message{ID: "m2", Recipient: "972541234568", Body: "hi", FailureReason: "400 bad chatId"},
		FailedAt: now.Add(time.Millisecond),
	}})
	// Events without a journal-relevant payload are ignored.
	b.Publish(bus.Event{Kind: bus.KindDrained, Payload: dispatch.RunEvent{}})

	list := waitForEntries(t, db, 2)
	if len(list) != 2 {
		t.Fatalf("got %d entries, want 2", len(list))
	}
	failed, sent := list[0], list[1]
	if sent.Status != store.SendSent || sent.DeliveryID != "BAE1" {
		t.Errorf("sent entry = %+v", sent)
	}
	if failed.Status != store.SendFailed || failed.Error != "400 bad chatId" {
		t.Errorf("failed entry = %+v", failed)
	}
	if got := rc.get("m1"); got != "BAE1" {
		t.Errorf("cached delivery = %q, want BAE1", got)
	}
	if got := rc.get("m2"); got != "" {
		t.Errorf("failures must not be cached, got %q", got)
	}
}

func TestEngineSurvivesCacheErrors(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, &recordingCache{err: errors.New("redis down")}, b, zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{Kind: bus.KindSent, Payload: dispatch.SentEvent{
		Message: dispatch.Message{ID: "m1", Recipient: "r", Body: "b"},
		SentAt:  time.Now(),
	}})
	list := waitForEntries(t, db, 1)
	if list[0].MessageID != "m1" {
		t.Errorf("entry = %+v", list[0])
	}
}

func TestEngineWithController(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, nil, b, zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	c := dispatch.NewController(okSender{}, b, zap.NewNop(), dispatch.Options{})
	c.Start(context.Background())
	defer c.Stop()

	c.Enqueue([]dispatch.Message{{Recipient: "972541234567", Body: "one"}, {Recipient: "972541234568", Body: "two"}})
	c.StartSending()

	list := waitForEntries(t, db, 2)
	for _, entry := range list {
		if entry.Status != store.SendSent || entry.DeliveryID != "ok-"+entry.Recipient {
			t.Errorf("entry = %+v", entry)
		}
	}
}

type okSender struct{}

func (okSender) Send(_ context.Context, recipient, _ string) (string, error) {
	return "ok-" + recipient, nil
}
