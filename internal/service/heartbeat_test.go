package service

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHeartbeatScheduler_Ticks(t *testing.T) {
	var ticks atomic.Int32
	h := NewHeartbeatScheduler(5*time.Millisecond, time.Now, func(time.Time) { ticks.Add(1) })
	h.Start()
	defer h.Stop()

	waitFor(t, "three ticks", func() bool { return ticks.Load() >= 3 })
}

func TestHeartbeatScheduler_StopHaltsTicks(t *testing.T) {
	var ticks atomic.Int32
	h := NewHeartbeatScheduler(5*time.Millisecond, time.Now, func(time.Time) { ticks.Add(1) })
	h.Start()
	waitFor(t, "first tick", func() bool { return ticks.Load() >= 1 })

	h.Stop()
	h.Stop()
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got != after {
		t.Fatalf("ticks continued after Stop: %d -> %d", after, got)
	}
}

func TestHeartbeatScheduler_StopWithoutStart(t *testing.T) {
	h := NewHeartbeatScheduler(time.Millisecond, time.Now, func(time.Time) {
		t.Error("tick must not run")
	})
	h.Stop()
	h.Start()
	time.Sleep(10 * time.Millisecond)
}

func TestHeartbeatScheduler_PassesClockTime(t *testing.T) {
	got := make(chan time.Time, 1)
	h := NewHeartbeatScheduler(time.Millisecond, func() time.Time { return t0 }, func(now time.Time) {
		select {
		case got <- now:
		default:
		}
	})
	h.Start()
	defer h.Stop()

	select {
	case now := <-got:
		if !now.Equal(t0) {
			t.Fatalf("tick time = %v, want %v", now, t0)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	if h.Interval() != time.Millisecond {
		t.Fatalf("Interval = %v", h.Interval())
	}
}
