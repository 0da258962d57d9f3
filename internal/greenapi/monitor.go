package greenapi

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wppq/internal/status"
	"go.uber.org/zap"
)

// StateSource reports the GreenAPI instance state.
type StateSource interface {
	State(ctx context.Context) (string, error)
}

// MapState translates a stateInstance value to a gateway state.
func MapState(instanceState string) status.State {
	switch instanceState {
	case "authorized":
		return status.Ready
	case "notAuthorized":
		return status.AuthRequired
	case "starting":
		return status.Connecting
	case "sleepMode":
		return status.Reconnecting
	default:
		return status.Error
	}
}

// Monitor polls the instance state and drives the gateway state machine.
type Monitor struct {
	src      StateSource
	machine  *status.Machine
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewMonitor(src StateSource, machine *status.Machine, logger *zap.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{src: src, machine: machine, logger: logger, interval: interval}
}

// Start polls once immediately and then every interval until Stop. It has
// no effect once Stop has been called or while already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	m.done = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			m.Poll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends polling and waits for the loop to exit. A later Start is ignored.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Poll performs a single state check.
func (m *Monitor) Poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	raw, err := m.src.State(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("greenapi state check failed", zap.Error(err))
		target := status.Error
		if m.machine.Current() == status.Ready {
			target = status.Reconnecting
		}
		_ = m.machine.Drive(target, err.Error())
		return
	}

	target := MapState(raw)
	if err := m.machine.Drive(target, raw); err != nil {
		m.logger.Warn("gateway state not applied", zap.String("instance_state", raw), zap.Error(err))
	}
}
