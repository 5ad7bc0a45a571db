package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "eventcast"

// Metrics records broadcaster activity. It implements service.Recorder.
type Metrics struct {
	SessionsActive  metric.Int64UpDownCounter
	SessionsOpened  metric.Int64Counter
	SessionsClosed  metric.Int64Counter
	EventsDelivered metric.Int64Counter
	EventsFiltered  metric.Int64Counter
	HeartbeatsSent  metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsActive, err = meter.Int64UpDownCounter("eventcast.sessions.active",
		metric.WithDescription("Number of open stream sessions"))
	if err != nil {
		return nil, err
	}

	m.SessionsOpened, err = meter.Int64Counter("eventcast.sessions.opened",
		metric.WithDescription("Number of stream sessions opened"))
	if err != nil {
		return nil, err
	}

	m.SessionsClosed, err = meter.Int64Counter("eventcast.sessions.closed",
		metric.WithDescription("Number of stream sessions closed, by reason"))
	if err != nil {
		return nil, err
	}

	m.EventsDelivered, err = meter.Int64Counter("eventcast.events.delivered",
		metric.WithDescription("Events pushed to a session"))
	if err != nil {
		return nil, err
	}

	m.EventsFiltered, err = meter.Int64Counter("eventcast.events.filtered",
		metric.WithDescription("Events withheld from a session by its markings"))
	if err != nil {
		return nil, err
	}

	m.HeartbeatsSent, err = meter.Int64Counter("eventcast.heartbeats.sent",
		metric.WithDescription("Heartbeats pushed to sessions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) SessionOpened() {
	ctx := context.Background()
	m.SessionsOpened.Add(ctx, 1)
	m.SessionsActive.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(reason string) {
	ctx := context.Background()
	m.SessionsClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.SessionsActive.Add(ctx, -1)
}

func (m *Metrics) EventDelivered(topic string) {
	m.EventsDelivered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *Metrics) EventFiltered(topic string) {
	m.EventsFiltered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *Metrics) HeartbeatSent() {
	m.HeartbeatsSent.Add(context.Background(), 1)
}
