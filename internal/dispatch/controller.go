package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppq/internal/bus"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single gateway call when Options.SendTimeout is unset.
const DefaultSendTimeout = 30 * time.Second

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	SendTimeout time.Duration
	Clock       Clock
	Location    *time.Location
}

// Controller owns the bulk dispatch state and drains the queue one message
// at a time against a Sender.
//
// Lock order is step, then mu. step is held for a whole drain step,
// including the in-flight send, and by every operator call that mutates the
// queue, the failed list or the daily counter. mu guards the fields and is
// only held briefly, so Snapshot never waits on the gateway.
//
// An operator call waiting on step always runs before the worker starts
// the next step. The settled head has left the queue by then, so callers
// that pass a message id reach the entry they meant.
type Controller struct {
	sender  Sender
	bus     *bus.Bus
	logger  *zap.Logger
	clock   Clock
	timeout time.Duration
	daily   *dailyTimer

	step    sync.Mutex
	opMu    sync.Mutex
	opDone  *sync.Cond
	pending int

	mu         sync.RWMutex
	queue      []Message
	failed     []Message
	sending    bool
	total      int
	progress   float64
	dailyCount int
	inFlight   string
	lastReset  time.Time

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller with an empty queue.
func NewController(sender Sender, b *bus.Bus, logger *zap.Logger, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		sender:    sender,
		bus:       b,
		logger:    logger,
		clock:     opts.Clock,
		timeout:   opts.SendTimeout,
		lastReset: opts.Clock.Now(),
		wake:      make(chan struct{}, 1),
	}
	c.opDone = sync.NewCond(&c.opMu)
	c.daily = newDailyTimer(opts.Clock, opts.Location, func(time.Time) { c.ResetDailyCount() })
	return c
}

// Start launches the drain worker and arms the midnight reset.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.daily.start()
	go c.run(ctx)
	c.notify()
}

// Stop cancels the worker, waits for any in-flight send to settle and
// disarms the midnight timer.
func (c *Controller) Stop() {
	_ = c.Shutdown(context.Background())
}

// Shutdown is Stop bounded by ctx. When ctx ends first it returns ctx.Err()
// and the worker exits on its own once the in-flight send settles.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.daily.stop()
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
		c.cancel = nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lockOp takes step on behalf of an operator call.
func (c *Controller) lockOp() {
	c.opMu.Lock()
	c.pending++
	c.opMu.Unlock()

	c.step.Lock()

	c.opMu.Lock()
	c.pending--
	if c.pending == 0 {
		c.opDone.Broadcast()
	}
	c.opMu.Unlock()
}

// lockStep takes step for the worker once no operator call is waiting.
func (c *Controller) lockStep() {
	c.opMu.Lock()
	for c.pending > 0 {
		c.opDone.Wait()
	}
	c.opMu.Unlock()
	c.step.Lock()
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		for ctx.Err() == nil && c.drainStep(ctx) {
		}
	}
}

// Enqueue appends msgs to the tail in order and resets the progress
// baseline to the new queue length. Messages without an ID get one.
// The stored copies are returned.
func (c *Controller) Enqueue(msgs []Message) []Message {
	c.lockOp()
	defer c.step.Unlock()

	now := c.clock.Now()
	added := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.EnqueuedAt.IsZero() {
			m.EnqueuedAt = now
		}
		m.FailureReason = ""
		added = append(added, m)
	}

	c.mu.Lock()
	c.queue = append(c.queue, added...)
	c.total = len(c.queue)
	queued := len(c.queue)
	c.mu.Unlock()

	c.logger.Info("messages enqueued", zap.Int("added", len(added)), zap.Int("queued", queued))
	c.publish(bus.KindEnqueued, RunEvent{Remaining: queued})
	c.notify()
	return added
}

// StartSending marks the run active. Calling it while already sending has
// no effect. Window and quota checks are the caller's responsibility.
func (c *Controller) StartSending() {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return
	}
	c.sending = true
	evt := c.runEventLocked()
	c.mu.Unlock()

	c.logger.Info("dispatch started", zap.Int("queued", evt.Remaining))
	c.publish(bus.KindStarted, evt)
	c.notify()
}

// StopSending halts the run between messages and zeroes progress. The
// queue is kept, and an in-flight send is allowed to finish.
func (c *Controller) StopSending() {
	c.mu.Lock()
	was := c.sending
	c.sending = false
	c.progress = 0
	evt := c.runEventLocked()
	c.mu.Unlock()

	if was {
		c.logger.Info("dispatch stopped", zap.Int("queued", evt.Remaining))
		c.publish(bus.KindStopped, evt)
	}
}

// drainStep processes at most one message. It reports whether the worker
// should try another step.
func (c *Controller) drainStep(ctx context.Context) bool {
	c.lockStep()
	defer c.step.Unlock()

	c.mu.Lock()
	if !c.sending {
		c.mu.Unlock()
		return false
	}
	if len(c.queue) == 0 {
		c.sending = false
		evt := c.runEventLocked()
		c.mu.Unlock()
		c.publish(bus.KindDrained, evt)
		return false
	}
	head := c.queue[0]
	c.inFlight = head.ID
	c.mu.Unlock()

	deliveryID, err := c.send(ctx, head)
	now := c.clock.Now()

	c.mu.Lock()
	c.inFlight = ""
	c.queue = slices.Delete(c.queue, 0, 1)
	if err == nil {
		c.dailyCount++
	} else {
		head.FailureReason = err.Error()
		c.failed = append(c.failed, head)
	}
	if c.sending {
		c.progress = progressOf(c.total, len(c.queue))
	}
	drained := false
	if len(c.queue) == 0 && c.sending {
		c.sending = false
		drained = true
	}
	daily := c.dailyCount
	evt := c.runEventLocked()
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("message sent",
			zap.String("message_id", head.ID),
			zap.String("delivery_id", deliveryID),
			zap.Int("daily_count", daily))
		c.publish(bus.KindSent, SentEvent{Message: head, DeliveryID: deliveryID, SentAt: now, DailyCount: daily})
	} else {
		c.logger.Warn("message failed",
			zap.String("message_id", head.ID),
			zap.String("recipient", head.Recipient),
			zap.Error(err))
		c.publish(bus.KindFailed, FailedEvent{Message: head, FailedAt: now})
	}
	if drained {
		c.logger.Info("queue drained", zap.Int("failed", evt.Failed))
		c.publish(bus.KindDrained, evt)
	}
	return true
}

// send runs one gateway call. Shutdown does not cut the call short; the
// send timeout bounds it instead.
func (c *Controller) send(ctx context.Context, m Message) (id string, err error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sender panic recovered", zap.Any("panic", r), zap.String("message_id", m.ID))
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return c.sender.Send(sendCtx, m.Recipient, m.Body)
}

// Positional calls also take the id of the message the operator meant. A
// non-empty id wins over an index that went stale while a send settled.

// EditQueued replaces the body of queue[index].
func (c *Controller) EditQueued(index int, id, body string) error {
	return c.edit(&c.queue, "queue", index, id, body)
}

// EditFailed replaces the body of failed[index].
func (c *Controller) EditFailed(index int, id, body string) error {
	return c.edit(&c.failed, "failed", index, id, body)
}

func (c *Controller) edit(list *[]Message, name string, index int, id, body string) error {
	c.lockOp()
	defer c.step.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	i, err := locate(*list, name, index, id)
	if err != nil {
		return err
	}
	(*list)[i].Body = body
	return nil
}

// RemoveQueued deletes queue[index] and returns it.
func (c *Controller) RemoveQueued(index int, id string) (Message, error) {
	return c.remove(&c.queue, "queue", index, id)
}

// RemoveFailed discards failed[index] and returns it.
func (c *Controller) RemoveFailed(index int, id string) (Message, error) {
	return c.remove(&c.failed, "failed", index, id)
}

func (c *Controller) remove(list *[]Message, name string, index int, id string) (Message, error) {
	c.lockOp()
	defer c.step.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	i, err := locate(*list, name, index, id)
	if err != nil {
		return Message{}, err
	}
	m := (*list)[i]
	*list = slices.Delete(*list, i, i+1)
	return m, nil
}

// RetryFailed moves failed[index] to the tail of the queue with its
// failure reason cleared. Like Enqueue, it resets the progress baseline.
func (c *Controller) RetryFailed(index int, id string) (Message, error) {
	c.lockOp()
	defer c.step.Unlock()

	c.mu.Lock()
	i, err := locate(c.failed, "failed", index, id)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	m := c.failed[i]
	c.failed = slices.Delete(c.failed, i, i+1)
	m.FailureReason = ""
	c.queue = append(c.queue, m)
	c.total = len(c.queue)
	evt := c.runEventLocked()
	c.mu.Unlock()

	c.logger.Info("failed message requeued", zap.String("message_id", m.ID))
	c.publish(bus.KindRetried, evt)
	c.notify()
	return m, nil
}

// ResetDailyCount zeroes the daily counter. The queue and failed list are
// not touched.
func (c *Controller) ResetDailyCount() {
	c.lockOp()
	defer c.step.Unlock()

	now := c.clock.Now()
	c.mu.Lock()
	prev := c.dailyCount
	c.dailyCount = 0
	c.lastReset = now
	c.mu.Unlock()

	c.logger.Info("daily count reset", zap.Int("previous", prev))
	c.publish(bus.KindDailyReset, prev)
}

// DailyCount returns the number of successful sends since the last reset.
func (c *Controller) DailyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dailyCount
}

// QueueLen returns the number of pending messages.
func (c *Controller) QueueLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.queue)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Queue:         slices.Clone(c.queue),
		Failed:        slices.Clone(c.failed),
		Sending:       c.sending,
		TotalMessages: c.total,
		Progress:      c.progress,
		DailyCount:    c.dailyCount,
		InFlight:      c.inFlight,
		LastResetAt:   c.lastReset,
	}
}

func (c *Controller) runEventLocked() RunEvent {
	return RunEvent{Remaining: len(c.queue), Failed: len(c.failed), Progress: c.progress}
}

func (c *Controller) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: c.clock.Now(), Payload: payload})
}

// locate resolves the entry an operator call addresses.
func locate(list []Message, name string, index int, id string) (int, error) {
	if id == "" {
		if index < 0 || index >= len(list) {
			return 0, fmt.Errorf("%s[%d]: %w", name, index, ErrIndexOutOfRange)
		}
		return index, nil
	}
	if index >= 0 && index < len(list) && list[index].ID == id {
		return index, nil
	}
	if i := slices.IndexFunc(list, func(m Message) bool { return m.ID == id }); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("%s: message %s: %w", name, id, ErrMessageGone)
}

func progressOf(total, remaining int) float64 {
	if total < 1 {
		total = 1
	}
	p := float64(total-remaining) / float64(total) * 100
	return min(max(p, 0), 100)
}
