package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/fogfish/opts"
)

// ErrRegistryClosed is returned by Attach after Close.
var ErrRegistryClosed = errors.New("registry is closed")

// Registry routes registrations to the single Connection for their hub address,
// creating connections on first use and stopping them when the last
// registration leaves.
type Registry struct {
	settings settings
	logger   *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// slot serializes every operation for one hub address.
type slot struct {
	mu   sync.Mutex
	conn *Connection
	// refs counts operations holding or waiting for mu; guarded by Registry.mu.
	refs int
}

func NewRegistry(options ...opts.Option[settings]) (*Registry, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}
	return &Registry{
		settings: s,
		logger:   slogx.Named(s.logger, "hubtrigger.registry"),
		slots:    make(map[string]*slot),
	}, nil
}

// acquire pins the slot for address, creating it when create is set.
func (r *Registry) acquire(address string, create bool) (*slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed && create {
		return nil, ErrRegistryClosed
	}
	s, ok := r.slots[address]
	if !ok {
		if !create {
			return nil, nil
		}
		s = &slot{}
		r.slots[address] = s
	}
	s.refs++
	return s, nil
}

// release unpins s. The caller must hold s.mu so that the emptiness it reports
// cannot be invalidated by another operation before the slot is dropped.
func (r *Registry) release(address string, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.refs--
	if s.refs == 0 && s.conn == nil && r.slots[address] == s {
		delete(r.slots, address)
	}
}

// Subscribe builds a registration and attaches it.
func (r *Registry) Subscribe(ctx context.Context, hubAddress, topic string, onMatch func(messages.Message), predicates ...Predicate) (*Registration, error) {
	reg := NewRegistration(hubAddress, topic, onMatch, predicates...)
	if err := r.Attach(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Attach adds reg to the connection for its hub address, dialing one if needed.
// Dial and subscribe failures are returned.
func (r *Registry) Attach(ctx context.Context, reg *Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	address := reg.HubAddress

	s, err := r.acquire(address, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer func() {
		r.release(address, s)
		s.mu.Unlock()
	}()

	conn, err := r.liveConnection(ctx, s, address)
	if err != nil {
		return fmt.Errorf("attach to %s: %w", address, err)
	}

	if err := conn.AddRegistration(ctx, reg); err != nil {
		if !conn.HasRegistrations() {
			s.conn = nil
			conn.Stop()
		}
		return fmt.Errorf("attach %q to %s: %w", reg.Topic, address, err)
	}
	r.logger.Debug("registration attached", slogx.Hub(address), slogx.Topic(reg.Topic), slogx.Registration(reg.ID))
	return nil
}

// liveConnection returns the running connection held by s, replacing a missing
// or stopped one. Registrations stranded on a stopped connection are moved to
// the replacement. Callers hold s.mu.
func (r *Registry) liveConnection(ctx context.Context, s *slot, address string) (*Connection, error) {
	old := s.conn
	if old != nil && old.State() == StateRunning {
		return old, nil
	}

	conn, err := dial(ctx, address, r.settings)
	if err != nil {
		return nil, err
	}
	if err := conn.Start(); err != nil {
		conn.Stop()
		return nil, err
	}
	s.conn = conn

	if old == nil {
		return conn, nil
	}
	old.Stop()
	stranded := old.Registrations()
	r.logger.Info("replacing stopped hub connection", slogx.Hub(address), slog.Int("registrations", len(stranded)))
	for _, reg := range stranded {
		if err := conn.AddRegistration(ctx, reg); err != nil {
			r.logger.Warn("failed to move registration to new connection",
				slogx.Hub(address), slogx.Registration(reg.ID), slogx.Error(err))
		}
	}
	return conn, nil
}

// Detach removes reg from its connection and stops the connection when it was
// the last registration. Detaching something unknown logs a warning.
func (r *Registry) Detach(reg *Registration) {
	if reg == nil {
		return
	}
	address := reg.HubAddress

	s, _ := r.acquire(address, false)
	if s == nil {
		r.logger.Warn("detach of unknown connection", slogx.Hub(address), slogx.Topic(reg.Topic))
		return
	}
	s.mu.Lock()
	defer func() {
		r.release(address, s)
		s.mu.Unlock()
	}()

	conn := s.conn
	if conn == nil {
		r.logger.Warn("detach of unknown connection", slogx.Hub(address), slogx.Topic(reg.Topic))
		return
	}
	if !conn.RemoveRegistration(reg) {
		r.logger.Warn("detach of unknown registration", slogx.Hub(address), slogx.Registration(reg.ID))
	}
	if !conn.HasRegistrations() {
		s.conn = nil
		conn.Stop()
		r.logger.Debug("hub connection torn down", slogx.Hub(address))
	}
}

// Connection returns the connection currently serving address.
func (r *Registry) Connection(address string) (*Connection, bool) {
	s, _ := r.acquire(address, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer func() {
		r.release(address, s)
		s.mu.Unlock()
	}()
	return s.conn, s.conn != nil
}

// Len reports how many hub addresses have a connection.
func (r *Registry) Len() int {
	n := 0
	for _, address := range r.addresses() {
		if _, ok := r.Connection(address); ok {
			n++
		}
	}
	return n
}

// Close stops every connection. Attach fails afterwards; Detach keeps working.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, address := range r.addresses() {
		s, _ := r.acquire(address, false)
		if s == nil {
			continue
		}
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Stop()
			s.conn = nil
		}
		r.release(address, s)
		s.mu.Unlock()
	}
}

func (r *Registry) addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	addresses := make([]string, 0, len(r.slots))
	for address := range r.slots {
		addresses = append(addresses, address)
	}
	return addresses
}
