package engine

import (
	"sync"
	"time"
)

// Timer drives one attempt's countdown. It ticks once per interval with
// the remaining duration and fires the expiry callback exactly once when
// the wall clock reaches the deadline.
//
// Remaining time is always computed from the absolute deadline, never
// from a decrementing counter: if the process (or the clock) stalls and
// resumes past the deadline, the next tick fires expiry immediately
// instead of counting down a stale remainder.
type Timer struct {
	mu       sync.Mutex
	now      func() time.Time
	interval time.Duration
	deadline time.Time
	stopCh   chan struct{}
	running  bool

	onTick   func(remaining time.Duration)
	onExpire func()
}

// NewTimer creates a wall-clock timer ticking once per second.
func NewTimer(onTick func(time.Duration), onExpire func()) *Timer {
	return NewTimerWithClock(onTick, onExpire, time.Now, time.Second)
}

// NewTimerWithClock allows deterministic clocks and fast intervals in tests.
func NewTimerWithClock(onTick func(time.Duration), onExpire func(), now func() time.Time, interval time.Duration) *Timer {
	return &Timer{
		now:      now,
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start begins ticking toward the deadline. Starting an already-running
// timer against the same deadline is a no-op; a different deadline
// restarts the loop. A deadline already in the past fires expiry on the
// first scheduling opportunity instead of being silently skipped.
func (t *Timer) Start(deadline time.Time) {
	t.mu.Lock()
	if t.running && t.deadline.Equal(deadline) {
		t.mu.Unlock()
		return
	}
	if t.running {
		close(t.stopCh)
	}
	t.deadline = deadline
	t.stopCh = make(chan struct{})
	t.running = true
	stop := t.stopCh
	t.mu.Unlock()

	go t.loop(deadline, stop)
}

// Stop cancels all future ticks and the expiry. Idempotent; called on
// every transition out of TAKING.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		close(t.stopCh)
		t.running = false
	}
}

// loop runs without holding the mutex so callbacks can call Stop.
func (t *Timer) loop(deadline time.Time, stop <-chan struct{}) {
	// Restored sessions may start past their deadline already.
	if remaining := deadline.Sub(t.now()); remaining <= 0 {
		t.expire(stop)
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining := deadline.Sub(t.now())
			if remaining <= 0 {
				t.expire(stop)
				return
			}
			t.onTick(remaining)
		}
	}
}

// expire marks the timer stopped and fires the expiry callback once,
// unless Stop won the race.
func (t *Timer) expire(stop <-chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}

	t.mu.Lock()
	// A restart may have swapped in a fresh loop; only the current one
	// is allowed to expire.
	if !t.running || (<-chan struct{})(t.stopCh) != stop {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.onExpire()
}
