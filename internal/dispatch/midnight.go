package dispatch

import (
	"sync"
	"time"
)

// NextMidnight returns the first local midnight in loc strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// dailyTimer fires fn at every local midnight until stopped. Each firing
// re-arms the timer from the firing time, not from the original start.
type dailyTimer struct {
	clock Clock
	loc   *time.Location
	fn    func(at time.Time)

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

func newDailyTimer(clock Clock, loc *time.Location, fn func(at time.Time)) *dailyTimer {
	return &dailyTimer{clock: clock, loc: loc, fn: fn}
}

func (t *dailyTimer) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.armLocked()
}

func (t *dailyTimer) armLocked() {
	now := t.clock.Now()
	wait := NextMidnight(now, t.loc).Sub(now)
	t.timer = t.clock.AfterFunc(wait, t.fire)
}

func (t *dailyTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.armLocked()
	t.mu.Unlock()

	t.fn(t.clock.Now())
}

func (t *dailyTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
