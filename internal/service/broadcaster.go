// Package service contains application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/eventcast/internal/domain"
	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
	"github.com/Strob0t/eventcast/internal/port/eventlog"
)

// DefaultHeartbeatInterval is the liveness ping period.
const DefaultHeartbeatInterval = 20 * time.Second

var (
	// ErrStopped is returned by operations on a broadcaster that has shut down.
	ErrStopped = errors.New("broadcaster stopped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("broadcaster already started")
)

// BroadcasterOptions configures a Broadcaster. Zero values select defaults.
type BroadcasterOptions struct {
	HeartbeatInterval time.Duration
	Recorder          Recorder
	Logger            *slog.Logger
	Now               func() time.Time
	NewID             func() string
}

// Broadcaster fans out events from one log subscription to every live session
// whose allowed markings cover the event's markings.
type Broadcaster struct {
	source    eventlog.Source
	registry  *Registry
	heartbeat *HeartbeatScheduler
	recorder  Recorder
	log       *slog.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex // guards lifecycle fields below
	sub     eventlog.Subscription
	started bool
	stopped bool

	done  chan struct{}
	errCh chan error
	wg    sync.WaitGroup
}

// NewBroadcaster creates a Broadcaster reading from source. Nothing runs until
// Start is called.
func NewBroadcaster(source eventlog.Source, opts BroadcasterOptions) *Broadcaster {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewSessionID
	}

	b := &Broadcaster{
		source:   source,
		registry: NewRegistry(),
		recorder: opts.Recorder,
		log:      opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		done:     make(chan struct{}),
		errCh:    make(chan error, 1),
	}
	b.heartbeat = NewHeartbeatScheduler(opts.HeartbeatInterval, b.now, b.Tick)
	return b
}

// Start subscribes to the log from its current end and starts the heartbeat.
// A failure of the subscription afterwards is reported on Err and stops the
// broadcaster.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrStopped
	}
	if b.started {
		return ErrAlreadyStarted
	}

	sub, err := b.source.Subscribe(ctx, "", b.dispatch)
	if err != nil {
		return fmt.Errorf("subscribe event log: %w", err)
	}
	b.sub = sub
	b.started = true
	b.heartbeat.Start()

	b.wg.Add(1)
	go b.watchSource(sub)

	b.log.Info("broadcaster started")
	return nil
}

// Connect opens a session for principal p on transport t and returns the new
// session ID. The client receives a connected message carrying the current
// log position followed by a heartbeat before the session is registered.
// On error the transport is left to the caller.
func (b *Broadcaster) Connect(ctx context.Context, p *user.Principal, t broadcast.Transport) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("connect: %w: %w", domain.ErrValidation, err)
	}

	pos, err := b.source.CurrentPosition(ctx)
	if err != nil {
		return "", fmt.Errorf("connect: current position: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return "", ErrStopped
	}

	s := NewSession(b.newID(), p, t)

	if err := t.Send(ConnectedMessage(pos)); err != nil {
		return "", fmt.Errorf("connect: send connected: %w", err)
	}
	if err := t.Send(HeartbeatMessage(b.now())); err != nil {
		return "", fmt.Errorf("connect: send heartbeat: %w", err)
	}
	if err := b.registry.Register(s); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}

	b.wg.Add(1)
	go b.watchTransport(s)

	b.recorder.SessionOpened()
	b.log.Info("session connected",
		"session_id", s.ID,
		"identity", s.Identity,
		"markings", s.Allowed.Len(),
		"position", string(pos),
		"expires_at", s.ExpiresAt(),
	)
	return s.ID, nil
}

// Disconnect closes the session with the given ID. Unknown IDs are a no-op.
func (b *Broadcaster) Disconnect(id string) {
	if s := b.registry.Get(id); s != nil {
		b.closeSession(s, ReasonDisconnect)
	}
}

// Extend moves the expiry of a live session forward, as after a
// re-authentication. Earlier instants leave the expiry unchanged.
func (b *Broadcaster) Extend(id string, expiresAt time.Time) error {
	s := b.registry.Get(id)
	if s == nil {
		return fmt.Errorf("extend session %s: %w", id, domain.ErrNotFound)
	}
	if s.Extend(expiresAt) {
		b.log.Debug("session extended", "session_id", id, "expires_at", expiresAt)
	}
	return nil
}

// Sessions returns a snapshot of the live sessions.
func (b *Broadcaster) Sessions() []*Session {
	return b.registry.All()
}

// SessionCount returns the number of live sessions.
func (b *Broadcaster) SessionCount() int {
	return b.registry.Len()
}

// CurrentPosition returns the log's most recent position.
func (b *Broadcaster) CurrentPosition(ctx context.Context) (event.Position, error) {
	return b.source.CurrentPosition(ctx)
}

// Err receives the fatal event log error, if one occurs.
func (b *Broadcaster) Err() <-chan error {
	return b.errCh
}

// Done is closed once the broadcaster has stopped.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// Shutdown stops the log subscription and the heartbeat, closes every session
// and waits for background goroutines until ctx is done. It is safe to call
// more than once.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.stop(ReasonShutdown)

	waited := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("broadcaster shutdown: %w", ctx.Err())
	}
}

func (b *Broadcaster) stop(reason string) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	sub := b.sub
	b.sub = nil
	close(b.done)
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	b.heartbeat.Stop()

	sessions := b.registry.Drain()
	for _, s := range sessions {
		b.release(s, reason)
	}
	b.log.Info("broadcaster stopped", "reason", reason, "sessions_closed", len(sessions))
}

// dispatch is the log handler. It runs sequentially, so every session sees
// the events it may observe in log order.
func (b *Broadcaster) dispatch(_ context.Context, ev event.Event) {
	now := b.now()
	for _, s := range b.registry.All() {
		// Closing is asynchronous to dispatch, so re-check liveness.
		if !s.Alive(now) {
			continue
		}
		if !s.CanObserve(ev) {
			b.recorder.EventFiltered(ev.Topic)
			continue
		}
		if err := deliver(s, ev); err != nil {
			b.sendFailed(s, err)
			continue
		}
		b.recorder.EventDelivered(ev.Topic)
	}
}

// Tick runs one heartbeat round at now: expired sessions are closed first,
// then every remaining session is pinged.
func (b *Broadcaster) Tick(now time.Time) {
	for _, s := range b.registry.All() {
		if s.Expired(now) {
			b.closeSession(s, ReasonExpired)
		}
	}

	msg := HeartbeatMessage(now)
	for _, s := range b.registry.All() {
		if !s.Alive(now) {
			continue
		}
		if err := s.Transport.Send(msg); err != nil {
			b.sendFailed(s, err)
			continue
		}
		b.recorder.HeartbeatSent()
	}
}

func (b *Broadcaster) sendFailed(s *Session, err error) {
	reason := ReasonSendFailed
	switch {
	case errors.Is(err, broadcast.ErrBufferFull):
		reason = ReasonSlowClient
	case errors.Is(err, broadcast.ErrTransportClosed):
		reason = ReasonDisconnect
	}
	b.log.Warn("session send failed", "session_id", s.ID, "identity", s.Identity, "error", err)
	b.closeSession(s, reason)
}

// closeSession removes the session by its own ID and releases its transport.
func (b *Broadcaster) closeSession(s *Session, reason string) {
	b.registry.Unregister(s.ID)
	b.release(s, reason)
}

func (b *Broadcaster) release(s *Session, reason string) {
	if !s.markClosed() {
		return
	}
	if err := s.Transport.Close(); err != nil {
		b.log.Warn("session transport close failed", "session_id", s.ID, "error", err)
	}
	b.recorder.SessionClosed(reason)
	b.log.Info("session closed", "session_id", s.ID, "identity", s.Identity, "reason", reason)
}

func (b *Broadcaster) watchTransport(s *Session) {
	defer b.wg.Done()
	select {
	case <-s.Transport.Done():
		b.closeSession(s, ReasonDisconnect)
	case <-b.done:
	}
}

func (b *Broadcaster) watchSource(sub eventlog.Subscription) {
	defer b.wg.Done()
	select {
	case err := <-sub.Err():
		err = fmt.Errorf("event log subscription: %w", err)
		b.log.Error("event log failed, stopping broadcaster", "error", err)
		select {
		case b.errCh <- err:
		default:
		}
		b.stop(ReasonLogFailure)
	case <-b.done:
	}
}
