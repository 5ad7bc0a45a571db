// Package nats implements the event log source on a NATS JetStream stream.
// Event positions are stream sequence numbers.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/eventcast/internal/config"
	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/domain/marking"
	"github.com/Strob0t/eventcast/internal/port/eventlog"
)

// ErrConnectionClosed is reported on a subscription's Err channel when the
// NATS connection is closed for good.
var ErrConnectionClosed = errors.New("nats connection closed")

// Log is a JetStream-backed event log.
type Log struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	subject string // publish prefix derived from the first stream subject

	closedOnce sync.Once
	closed     chan struct{}
}

// Connect dials NATS and ensures the event stream exists.
func Connect(ctx context.Context, cfg config.NATS) (*Log, error) {
	l := &Log{
		stream:  cfg.Stream,
		subject: publishPrefix(cfg.Subjects),
		closed:  make(chan struct{}),
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("eventcast"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			l.closedOnce.Do(func() { close(l.closed) })
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: cfg.Subjects,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	l.nc = nc
	l.js = js
	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return l, nil
}

// JetStream exposes the JetStream context for other adapters on the same
// connection.
func (l *Log) JetStream() jetstream.JetStream {
	return l.js
}

// IsConnected reports whether the underlying connection is up.
func (l *Log) IsConnected() bool {
	return l.nc.IsConnected()
}

// Publish appends an event to the stream and returns its position.
func (l *Log) Publish(ctx context.Context, topic string, markings []marking.Marking, payload any) (event.Position, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(event.Envelope{Topic: topic, Markings: markings, Payload: body})
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	subject := l.subject + topic
	ack, err := l.js.Publish(ctx, subject, data)
	if err != nil {
		return "", fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return event.SeqPosition(ack.Sequence), nil
}

// CurrentPosition returns the sequence of the last message in the stream, or
// the zero position when the stream is empty.
func (l *Log) CurrentPosition(ctx context.Context) (event.Position, error) {
	s, err := l.js.Stream(ctx, l.stream)
	if err != nil {
		return "", fmt.Errorf("nats stream %s: %w", l.stream, err)
	}
	info, err := s.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("nats stream info %s: %w", l.stream, err)
	}
	return event.SeqPosition(info.State.LastSeq), nil
}

// Subscribe starts an ordered consumer delivering every message after from.
// The zero position delivers only messages published from now on.
func (l *Log) Subscribe(ctx context.Context, from event.Position, h eventlog.Handler) (eventlog.Subscription, error) {
	cfg := jetstream.OrderedConsumerConfig{DeliverPolicy: jetstream.DeliverNewPolicy}
	if !from.IsZero() {
		seq, ok := from.Seq()
		if !ok {
			return nil, fmt.Errorf("nats subscribe: invalid position %q", from)
		}
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = seq + 1
	}

	consumer, err := l.js.OrderedConsumer(ctx, l.stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("nats ordered consumer: %w", err)
	}

	sub := &subscription{errCh: make(chan error, 1), quit: make(chan struct{})}
	handlerCtx := context.WithoutCancel(ctx)

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := decode(msg)
		if err != nil {
			slog.Error("dropping undecodable event", "subject", msg.Subject(), "error", err)
			return
		}
		h(handlerCtx, ev)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		if isFatal(err) {
			sub.fail(err)
			return
		}
		slog.Warn("nats consume error", "stream", l.stream, "error", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	sub.stop = cc.Stop

	go func() {
		select {
		case <-l.closed:
			sub.fail(ErrConnectionClosed)
		case <-sub.quit:
		}
	}()
	return sub, nil
}

// Close drains and closes the connection.
func (l *Log) Close() error {
	if err := l.nc.Drain(); err != nil {
		l.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func decode(msg jetstream.Msg) (event.Event, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return event.Event{}, fmt.Errorf("metadata: %w", err)
	}
	ev, err := event.Decode(event.SeqPosition(meta.Sequence.Stream), msg.Data())
	if err != nil {
		return event.Event{}, fmt.Errorf("envelope: %w", err)
	}
	return ev, nil
}

func isFatal(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrConnectionClosed)
}

func publishPrefix(subjects []string) string {
	if len(subjects) == 0 {
		return ""
	}
	s := subjects[0]
	if strings.HasSuffix(s, ".>") || strings.HasSuffix(s, ".*") {
		return s[:len(s)-1]
	}
	return s + "."
}

type subscription struct {
	stop  func()
	errCh chan error
	quit  chan struct{}
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.stop()
	})
}

func (s *subscription) Err() <-chan error {
	return s.errCh
}

func (s *subscription) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}
