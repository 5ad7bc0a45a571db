// Package eventlog defines the port for the ordered, resumable event log the
// broadcaster consumes.
package eventlog

import (
	"context"

	"github.com/Strob0t/eventcast/internal/domain/event"
)

// Handler receives events in log order. It is never called concurrently for
// the same subscription.
type Handler func(ctx context.Context, ev event.Event)

// Subscription is a cancellable handle on a live log subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe()

	// Err receives at most one value when the subscription terminates for a
	// reason other than Unsubscribe. The channel is never closed.
	Err() <-chan error
}

// Source is an ordered event log.
type Source interface {
	// Subscribe delivers events produced after from. The zero position means
	// "from now": only events produced after the call are delivered.
	Subscribe(ctx context.Context, from event.Position, handler Handler) (Subscription, error)

	// CurrentPosition returns the position of the most recently produced event,
	// or the zero position when the log is empty.
	CurrentPosition(ctx context.Context) (event.Position, error)
}
