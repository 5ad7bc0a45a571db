// Package broadcast defines the port for pushing framed messages to one
// connected client.
package broadcast

import "errors"

// ErrTransportClosed is returned by Send after the transport was closed or
// the client went away.
var ErrTransportClosed = errors.New("transport closed")

// ErrBufferFull is returned by Send when the client is not draining its
// outbound buffer fast enough.
var ErrBufferFull = errors.New("transport buffer full")

// Message is one push message. ID and Topic are optional; Data is encoded as
// JSON by the transport.
type Message struct {
	ID    string
	Topic string
	Data  any
}

// Transport is a single client connection.
type Transport interface {
	// Send enqueues msg for delivery without blocking on the network.
	Send(msg Message) error

	// Close releases the connection. Calling Close more than once is a no-op.
	Close() error

	// Done is closed once the connection is finished, either because the
	// client went away or because Close was called.
	Done() <-chan struct{}
}
