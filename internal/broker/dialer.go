package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fogfish/opts"
	"github.com/nats-io/nats.go"
)

const (
	defaultFrameBuffer  = 256
	defaultFlushTimeout = 2 * time.Second
)

type dialer struct {
	memory       *Memory
	natsOptions  []nats.Option
	frameBuffer  int
	flushTimeout time.Duration
}

var (
	// WithMemory routes mem:// addresses to the given in-process hub.
	WithMemory = opts.ForName[dialer, *Memory]("memory")
	// WithFrameBuffer sets the capacity of each transport's frame channel.
	WithFrameBuffer = opts.ForName[dialer, int]("frameBuffer")
	// WithFlushTimeout bounds how long a NATS subscribe waits for the server.
	WithFlushTimeout = opts.ForName[dialer, time.Duration]("flushTimeout")
)

// WithNATSOptions appends options used for every NATS connection.
func WithNATSOptions(natsOptions ...nats.Option) opts.Option[dialer] {
	return opts.Type[dialer](func(d *dialer) error {
		d.natsOptions = append(d.natsOptions, natsOptions...)
		return nil
	})
}

// NewDialer creates a Dialer that picks a transport by address scheme.
func NewDialer(options ...opts.Option[dialer]) (Dialer, error) {
	d := &dialer{
		frameBuffer:  defaultFrameBuffer,
		flushTimeout: defaultFlushTimeout,
	}
	if err := opts.Apply(d, options); err != nil {
		return nil, err
	}
	if d.frameBuffer <= 0 {
		return nil, fmt.Errorf("frame buffer must be positive, got %d", d.frameBuffer)
	}
	return d, nil
}

func (d *dialer) Dial(ctx context.Context, address string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scheme, _, found := strings.Cut(address, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedAddress, address)
	}

	switch strings.ToLower(scheme) {
	case "nats", "tls", "ws", "wss":
		natsOptions := d.natsOptions
		if deadline, ok := ctx.Deadline(); ok {
			natsOptions = append(natsOptions[:len(natsOptions):len(natsOptions)], nats.Timeout(time.Until(deadline)))
		}
		return DialNATS(address, d.frameBuffer, d.flushTimeout, natsOptions...)
	case "mem":
		if d.memory == nil {
			return nil, fmt.Errorf("%w: %q needs an in-memory hub", ErrUnsupportedAddress, address)
		}
		return d.memory.Dial(ctx, address)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
	}
}
