// Package journal persists dispatch outcomes published on the bus.
package journal

import (
	"context"
	"time"

	"github.com/matheus3301/wppq/internal/bus"
	"github.com/matheus3301/wppq/internal/cache"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/store"
	"go.uber.org/zap"
)

// Log is the part of the store the journal writes to.
type Log interface {
	AppendSendLog(ctx context.Context, e *store.SendLogEntry) error
}

// Engine subscribes to "dispatch." events and records sends and failures.
// Persistence errors are logged and never reach the dispatch path.
type Engine struct {
	log    Log
	cache  cache.DeliveryCache
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a journal engine. A nil cache disables delivery caching.
func NewEngine(l Log, c cache.DeliveryCache, b *bus.Bus, logger *zap.Logger) *Engine {
	if c == nil {
		c = cache.Nop{}
	}
	return &Engine{log: l, cache: c, bus: b, logger: logger}
}

// Start subscribes to dispatch events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("dispatch.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				e.drain(ch)
				return
			}
		}
	}()
}

// drain records events still buffered when the engine is stopped.
func (e *Engine) drain(ch <-chan bus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case evt := <-ch:
			e.handleEvent(ctx, evt)
		default:
			return
		}
	}
}

// Stop stops the engine and waits for buffered events to be written.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch p := evt.Payload.(type) {
	case dispatch.SentEvent:
		e.recordSent(ctx, p)
	case dispatch.FailedEvent:
		e.recordFailed(ctx, p)
	}
}

func (e *Engine) recordSent(ctx context.Context, p dispatch.SentEvent) {
	entry := &store.SendLogEntry{
		MessageID:  p.Message.ID,
		Recipient:  p.Message.Recipient,
		Body:       p.Message.Body,
		Status:     store.SendSent,
		DeliveryID: p.DeliveryID,
		CreatedAt:  p.SentAt.UnixMilli(),
	}
	if err := e.log.AppendSendLog(ctx, entry); err != nil {
		e.logger.Error("failed to journal send", zap.Error(err), zap.String("message_id", p.Message.ID))
	}

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.cache.StoreSent(cctx, p.Message.ID, p.Message.Recipient, p.DeliveryID, p.SentAt); err != nil {
		e.logger.Warn("failed to cache delivery", zap.Error(err), zap.String("message_id", p.Message.ID))
	}
}

func (e *Engine) recordFailed(ctx context.Context, p dispatch.FailedEvent) {
	entry := &store.SendLogEntry{
		MessageID: p.Message.ID,
		Recipient: p.Message.Recipient,
		Body:      p.Message.Body,
		Status:    store.SendFailed,
		Error:     p.Message.FailureReason,
		CreatedAt: p.FailedAt.UnixMilli(),
	}
	if err := e.log.AppendSendLog(ctx, entry); err != nil {
		e.logger.Error("failed to journal failure", zap.Error(err), zap.String("message_id", p.Message.ID))
	}
}
