package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// queued pairs a record with the handler that must write it, so attributes
// added through WithAttrs survive the hop to the worker.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// asyncState is shared by an AsyncHandler and every handler derived from it.
type asyncState struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler wraps an slog.Handler with a buffered channel and worker pool.
// Records are dropped, never blocked on, when the buffer is full.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	st := &asyncState{ch: make(chan queued, chanSize)}
	for range workers {
		st.wg.Add(1)
		go st.drain()
	}
	return &AsyncHandler{inner: inner, state: st}
}

func (st *asyncState) drain() {
	defer st.wg.Done()
	for q := range st.ch {
		_ = q.h.Handle(context.Background(), q.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full or the handler is closed.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	st := h.state
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.closed {
		st.dropped.Add(1)
		return nil
	}
	select {
	case st.ch <- queued{h: h.inner, rec: rec}:
	default:
		st.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a new AsyncHandler sharing the same channel but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup returns a new AsyncHandler sharing the same channel but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.state.dropped.Load()
}

// Close stops accepting records and waits for all workers to drain.
// Close is idempotent.
func (h *AsyncHandler) Close() {
	st := h.state
	st.mu.Lock()
	if !st.closed {
		st.closed = true
		close(st.ch)
	}
	st.mu.Unlock()
	st.wg.Wait()
}
