package service

import (
	"sync"
	"time"
)

// HeartbeatScheduler drives a single recurring tick. It is owned by a
// Broadcaster and lives exactly as long as it does.
type HeartbeatScheduler struct {
	interval time.Duration
	now      func() time.Time
	tick     func(now time.Time)

	mu      sync.Mutex
	stop    chan struct{}
	exited  chan struct{}
	stopped bool
}

// NewHeartbeatScheduler creates a scheduler calling tick every interval.
func NewHeartbeatScheduler(interval time.Duration, now func() time.Time, tick func(time.Time)) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		interval: interval,
		now:      now,
		tick:     tick,
	}
}

// Start launches the timer. Calls after the first, or after Stop, are no-ops.
func (h *HeartbeatScheduler) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stop != nil || h.stopped {
		return
	}
	h.stop = make(chan struct{})
	h.exited = make(chan struct{})
	go h.run(h.stop, h.exited)
}

// Stop halts the timer and waits for an in-flight tick to finish. It is
// idempotent and safe to call without Start.
func (h *HeartbeatScheduler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	stop, exited := h.stop, h.exited
	h.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-exited
}

// Interval returns the tick period.
func (h *HeartbeatScheduler) Interval() time.Duration {
	return h.interval
}

func (h *HeartbeatScheduler) run(stop <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.tick(h.now())
		}
	}
}
