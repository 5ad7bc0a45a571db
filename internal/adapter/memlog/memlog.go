// Package memlog is an in-process event log. It implements eventlog.Source
// for development and tests where no NATS server is available.
package memlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/domain/marking"
	"github.com/Strob0t/eventcast/internal/port/eventlog"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("memlog: closed")

// Log is an append-only, in-memory sequence of events. Positions are
// 1-based sequence numbers.
type Log struct {
	mu     sync.Mutex
	events []event.Event
	subs   map[*subscription]struct{}
	closed bool
}

// New returns an empty Log.
func New() *Log {
	return &Log{subs: make(map[*subscription]struct{})}
}

// Publish appends an event and returns its position.
func (l *Log) Publish(_ context.Context, topic string, markings []marking.Marking, payload any) (event.Position, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("memlog: encode payload: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	pos := event.SeqPosition(uint64(len(l.events)) + 1)
	l.events = append(l.events, event.Event{
		ID:       pos,
		Topic:    topic,
		Payload:  data,
		Markings: append([]marking.Marking(nil), markings...),
	})
	subs := make([]*subscription, 0, len(l.subs))
	for s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, s := range subs {
		s.notify()
	}
	return pos, nil
}

// CurrentPosition returns the position of the last event, or the zero
// position if the log is empty.
func (l *Log) CurrentPosition(context.Context) (event.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return "", nil
	}
	return l.events[len(l.events)-1].ID, nil
}

// Subscribe delivers every event after from to h, in order, on a dedicated
// goroutine. The zero position subscribes from the current end.
func (l *Log) Subscribe(ctx context.Context, from event.Position, h eventlog.Handler) (eventlog.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	cursor := len(l.events)
	if !from.IsZero() {
		seq, ok := from.Seq()
		if !ok {
			return nil, fmt.Errorf("memlog: invalid position %q", from)
		}
		if seq > uint64(len(l.events)) {
			seq = uint64(len(l.events))
		}
		cursor = int(seq)
	}

	s := &subscription{
		log:    l,
		cursor: cursor,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		errCh:  make(chan error, 1),
	}
	l.subs[s] = struct{}{}
	go s.run(context.WithoutCancel(ctx), h)
	s.notify()
	return s, nil
}

// Fail terminates every subscription with err, as a broken upstream would.
func (l *Log) Fail(err error) {
	l.mu.Lock()
	subs := l.subs
	l.subs = make(map[*subscription]struct{})
	l.mu.Unlock()

	for s := range subs {
		select {
		case s.errCh <- err:
		default:
		}
		s.Unsubscribe()
	}
}

// Close stops every subscription and rejects further use.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	subs := l.subs
	l.subs = make(map[*subscription]struct{})
	l.mu.Unlock()

	for s := range subs {
		s.Unsubscribe()
	}
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type subscription struct {
	log    *Log
	cursor int // index of the next event to deliver
	wake   chan struct{}
	quit   chan struct{}
	once   sync.Once
	errCh  chan error
}

func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context, h eventlog.Handler) {
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		for {
			s.log.mu.Lock()
			if s.cursor >= len(s.log.events) {
				s.log.mu.Unlock()
				break
			}
			ev := s.log.events[s.cursor]
			s.cursor++
			s.log.mu.Unlock()

			select {
			case <-s.quit:
				return
			default:
			}
			h(ctx, ev)
		}
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.log.mu.Lock()
		delete(s.log.subs, s)
		s.log.mu.Unlock()
	})
}

func (s *subscription) Err() <-chan error {
	return s.errCh
}
