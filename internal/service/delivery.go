package service

import (
	"time"

	"github.com/Strob0t/eventcast/internal/domain/event"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// ConnectedMessage is the first control message of every session. It carries
// the log position the client is starting from.
func ConnectedMessage(pos event.Position) broadcast.Message {
	return broadcast.Message{Topic: event.TopicConnected, Data: pos}
}

// HeartbeatMessage is the liveness control message. It carries the sender's
// current time.
func HeartbeatMessage(now time.Time) broadcast.Message {
	return broadcast.Message{Topic: event.TopicHeartbeat, Data: now.UTC()}
}

// EventMessage frames a log event for delivery.
func EventMessage(ev event.Event) broadcast.Message {
	return broadcast.Message{ID: string(ev.ID), Topic: ev.Topic, Data: ev.Payload}
}

// deliver pushes ev to s and clears the catching-up flag on success.
func deliver(s *Session, ev event.Event) error {
	if err := s.Transport.Send(EventMessage(ev)); err != nil {
		return err
	}
	s.catchingUp.Store(false)
	return nil
}
