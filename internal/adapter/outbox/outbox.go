// Package outbox is the bounded per-client queue behind every push
// transport. Producers never block: a full outbox rejects the message.
package outbox

import (
	"context"
	"sync"

	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// MinSize is the smallest capacity an Outbox is created with. A session's
// connected and heartbeat messages are queued before its writer starts.
const MinSize = 2

// WriteFunc writes one message to the client.
type WriteFunc func(ctx context.Context, msg broadcast.Message) error

// Outbox implements broadcast.Transport on top of a WriteFunc.
type Outbox struct {
	queue chan broadcast.Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	err    error
}

// New returns an Outbox holding up to size pending messages.
func New(size int) *Outbox {
	if size < MinSize {
		size = MinSize
	}
	return &Outbox{
		queue: make(chan broadcast.Message, size),
		done:  make(chan struct{}),
	}
}

// Send enqueues msg. It fails with broadcast.ErrTransportClosed after Close
// and with broadcast.ErrBufferFull when the client is behind.
func (o *Outbox) Send(msg broadcast.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return broadcast.ErrTransportClosed
	}
	select {
	case o.queue <- msg:
		return nil
	default:
		return broadcast.ErrBufferFull
	}
}

// Close marks the outbox finished. Pending messages are discarded.
func (o *Outbox) Close() error {
	o.closeWith(nil)
	return nil
}

// Done is closed by Close or when Run ends.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Err returns the write error that ended Run, if any.
func (o *Outbox) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Len returns the number of pending messages.
func (o *Outbox) Len() int {
	return len(o.queue)
}

// Run writes queued messages in order until ctx is done, the outbox is
// closed or a write fails. It closes the outbox before returning.
func (o *Outbox) Run(ctx context.Context, write WriteFunc) error {
	for {
		select {
		case <-ctx.Done():
			o.closeWith(nil)
			return nil
		case <-o.done:
			return nil
		case msg := <-o.queue:
			if err := write(ctx, msg); err != nil {
				o.closeWith(err)
				return err
			}
		}
	}
}

func (o *Outbox) closeWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.err = err
	close(o.done)
}
