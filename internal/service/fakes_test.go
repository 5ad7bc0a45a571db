package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/domain/marking"
	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
	"github.com/Strob0t/eventcast/internal/port/eventlog"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeTransport records every message and can be told to fail.
type fakeTransport struct {
	mu      sync.Mutex
	msgs    []broadcast.Message
	sendErr error
	closes  int
	done    chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (f *fakeTransport) Send(msg broadcast.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.hangUp()
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

// hangUp simulates the client going away.
func (f *fakeTransport) hangUp() {
	f.once.Do(func() { close(f.done) })
}

func (f *fakeTransport) failWith(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) messages() []broadcast.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast.Message(nil), f.msgs...)
}

func (f *fakeTransport) topics() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.Topic)
	}
	return out
}

// eventIDs returns the IDs of delivered log events, skipping control messages.
func (f *fakeTransport) eventIDs() []string {
	var out []string
	for _, m := range f.messages() {
		if m.ID != "" {
			out = append(out, m.ID)
		}
	}
	return out
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeSource is an in-test event log whose Emit calls the handler inline.
type fakeSource struct {
	mu           sync.Mutex
	handler      eventlog.Handler
	position     event.Position
	posErr       error
	subErr       error
	errCh        chan error
	unsubscribes int
}

func newFakeSource() *fakeSource {
	return &fakeSource{errCh: make(chan error, 1)}
}

func (s *fakeSource) Subscribe(_ context.Context, _ event.Position, h eventlog.Handler) (eventlog.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	s.handler = h
	return s, nil
}

func (s *fakeSource) CurrentPosition(context.Context) (event.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.posErr
}

func (s *fakeSource) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes++
	s.handler = nil
}

func (s *fakeSource) Err() <-chan error { return s.errCh }

func (s *fakeSource) emit(ev event.Event) {
	s.mu.Lock()
	h := s.handler
	s.position = ev.ID
	s.mu.Unlock()
	if h != nil {
		h(context.Background(), ev)
	}
}

func (s *fakeSource) unsubscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribes
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func principal(id string, expiresAt time.Time, markings ...marking.Marking) *user.Principal {
	return &user.Principal{ID: id, AllowedMarkings: markings, ExpiresAt: expiresAt}
}

func markedEvent(id string, markings ...marking.Marking) event.Event {
	return event.Event{
		ID:       event.Position(id),
		Topic:    "report.updated",
		Payload:  []byte(`{"id":"` + id + `"}`),
		Markings: markings,
	}
}

// newTestBroadcaster returns a started broadcaster over a fake source with a
// fake clock and an hour-long heartbeat so only explicit Tick calls run.
func newTestBroadcaster(t *testing.T) (*Broadcaster, *fakeSource, *fakeClock) {
	t.Helper()
	src := newFakeSource()
	clock := &fakeClock{now: t0}
	b := NewBroadcaster(src, BroadcasterOptions{
		HeartbeatInterval: time.Hour,
		Now:               clock.Now,
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b, src, clock
}

func connect(t *testing.T, b *Broadcaster, p *user.Principal) (string, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	id, err := b.Connect(context.Background(), p, tr)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return id, tr
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
