// Package event defines the Event entity observed on the ordered event log.
package event

import (
	"encoding/json"
	"strconv"

	"github.com/Strob0t/eventcast/internal/domain/marking"
)

// Control topics emitted by the broadcaster itself rather than the log.
const (
	TopicConnected = "connected"
	TopicHeartbeat = "heartbeat"
)

// Position identifies an event on the log. Positions are produced by the log
// source and are totally ordered; the zero value means "no event yet".
type Position string

// IsZero reports whether p refers to no event.
func (p Position) IsZero() bool { return p == "" }

// Seq returns the numeric sequence of p when the source uses decimal sequence
// positions. ok is false for the zero position or non-numeric positions.
func (p Position) Seq() (seq uint64, ok bool) {
	if p.IsZero() {
		return 0, false
	}
	n, err := strconv.ParseUint(string(p), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SeqPosition renders a numeric sequence as a Position.
func SeqPosition(seq uint64) Position {
	if seq == 0 {
		return ""
	}
	return Position(strconv.FormatUint(seq, 10))
}

// MarshalJSON encodes the zero position as null.
func (p Position) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// Event is a single immutable entry of the event log.
type Event struct {
	ID       Position          `json:"id"`
	Topic    string            `json:"topic"`
	Payload  json.RawMessage   `json:"payload"`
	Markings []marking.Marking `json:"markings"`
}

// Envelope is the on-log encoding of an event body. The position is assigned
// by the log itself and is therefore not part of the envelope.
type Envelope struct {
	Topic    string            `json:"topic"`
	Markings []marking.Marking `json:"markings"`
	Payload  json.RawMessage   `json:"payload"`
}

// Decode parses a log record body into an Event at the given position.
func Decode(pos Position, data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	return Event{
		ID:       pos,
		Topic:    env.Topic,
		Payload:  env.Payload,
		Markings: env.Markings,
	}, nil
}
