package broker

import (
	"context"
	"errors"

	"github.com/casualjim/hubtrigger/messages"
)

// ErrUnsupportedAddress is returned when no transport handles a hub address.
var ErrUnsupportedAddress = errors.New("unsupported hub address")

// ErrClosed is returned by control calls on a terminated transport.
var ErrClosed = errors.New("transport closed")

// Dialer connects to a hub address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}

// Transport is a single subscription connection to a hub.
type Transport interface {
	// Subscribe starts delivery of frames for topic. Subscribing twice is a no-op.
	Subscribe(topic string) error
	// Unsubscribe stops delivery of frames for topic.
	Unsubscribe(topic string) error
	// Frames delivers received frames. It is never closed; watch Done instead.
	Frames() <-chan messages.Frame
	// Done is closed when the transport stops delivering, for any reason.
	Done() <-chan struct{}
	// Err reports why the transport terminated. It is nil while the transport is
	// running and after a requested Close.
	Err() error
	// Close terminates the transport and closes Done.
	Close() error
}
