package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/hubtrigger/internal/ledger"
	"github.com/casualjim/hubtrigger/internal/metrics"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/fogfish/opts"
)

// ErrConnectionClosed is returned when a connection is not running.
var ErrConnectionClosed = errors.New("hub connection is not running")

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
)

func (o opKind) String() string {
	if o == opSubscribe {
		return "subscribe"
	}
	return "unsubscribe"
}

// command is a transport change executed on the loop goroutine.
type command struct {
	op    opKind
	topic string
	reply chan error
}

// Connection owns one transport to one hub address, the topic ledger for it and
// the set of registrations attached to it.
type Connection struct {
	address   string
	transport Transport
	decoder   messages.Decoder
	logger    *slog.Logger

	state atomic.Int32

	// mu guards registrations, ledger and pending together.
	mu            sync.Mutex
	registrations map[*Registration]struct{}
	ledger        *ledger.Ledger
	pending       []command

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Dial connects a new Connection to address. The connection is returned in
// StateCreated; call Start to begin receiving.
func Dial(ctx context.Context, address string, options ...opts.Option[settings]) (*Connection, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}
	return dial(ctx, address, s)
}

func dial(ctx context.Context, address string, s settings) (*Connection, error) {
	transport, err := s.dialer.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Connection{
		address:       address,
		transport:     transport,
		decoder:       s.decoder,
		logger:        slogx.Named(s.logger, "hubtrigger.mux").With(slogx.Hub(address)),
		registrations: make(map[*Registration]struct{}),
		ledger:        ledger.New(),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

func (c *Connection) Address() string {
	return c.address
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection reached StateStopped.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Start launches the receive loop.
func (c *Connection) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("start %s: connection is %s", c.address, c.State())
	}
	metrics.ConnectionsActive.Inc()
	go c.run()
	c.logger.Debug("hub connection started")
	return nil
}

// Stop closes the transport and waits for the receive loop to exit. It is safe
// to call more than once and from any goroutine except the loop itself.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		started := true
		switch c.State() {
		case StateCreated:
			started = false
			c.state.Store(int32(StateStopping))
		case StateRunning:
			c.state.Store(int32(StateStopping))
		}
		c.mu.Unlock()

		if !started {
			c.closeTransport()
			c.state.Store(int32(StateStopped))
			close(c.done)
			return
		}
		close(c.stop)
	})
	<-c.done
}

// AddRegistration attaches reg and subscribes its topic if no other live
// registration holds it. It waits for the subscription to be in place.
func (c *Connection) AddRegistration(ctx context.Context, reg *Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.State() != StateRunning {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if _, ok := c.registrations[reg]; ok {
		c.mu.Unlock()
		return nil
	}
	c.registrations[reg] = struct{}{}
	var reply chan error
	if c.ledger.Acquire(reg.Topic) {
		reply = make(chan error, 1)
		c.enqueueLocked(command{op: opSubscribe, topic: reg.Topic, reply: reply})
	}
	c.mu.Unlock()

	if reply == nil {
		return nil
	}

	select {
	case err := <-reply:
		if err == nil {
			return nil
		}
		c.RemoveRegistration(reg)
		return fmt.Errorf("subscribe %q: %w", reg.Topic, err)
	case <-c.done:
		c.RemoveRegistration(reg)
		return ErrConnectionClosed
	case <-ctx.Done():
		c.RemoveRegistration(reg)
		return ctx.Err()
	}
}

// RemoveRegistration detaches reg and unsubscribes its topic when it was the
// last registration holding it. It reports whether reg was attached. The
// unsubscribe happens asynchronously on the loop.
func (c *Connection) RemoveRegistration(reg *Registration) bool {
	if reg == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.registrations[reg]; !ok {
		return false
	}
	delete(c.registrations, reg)
	if c.ledger.Release(reg.Topic) && c.State() == StateRunning {
		c.enqueueLocked(command{op: opUnsubscribe, topic: reg.Topic})
	}
	return true
}

// HasRegistrations reports whether any registration is attached.
func (c *Connection) HasRegistrations() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registrations) > 0
}

// Registrations returns a snapshot of the attached registrations.
func (c *Connection) Registrations() []*Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := make([]*Registration, 0, len(c.registrations))
	for reg := range c.registrations {
		regs = append(regs, reg)
	}
	return regs
}

// Topics lists the topics currently held, in subscription order.
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Topics()
}

func (c *Connection) enqueueLocked(cmd command) {
	c.pending = append(c.pending, cmd)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) closeTransport() {
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("failed to close hub transport", slogx.Error(err))
	}
}
