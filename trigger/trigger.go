// Package trigger binds a hub topic subscription, optionally narrowed by body
// checks, to a build scheduler.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/casualjim/hubtrigger/check"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/mux"
	"github.com/casualjim/hubtrigger/pkg/slogx"
)

var (
	// ErrEmptyTopic is returned for triggers without a topic.
	ErrEmptyTopic = errors.New("topic cannot be empty")
	// ErrInvalidHub is returned for triggers without a usable hub address.
	ErrInvalidHub = errors.New("not a valid hub address")
	// ErrAlreadyStarted is returned when Start is called on a running trigger.
	ErrAlreadyStarted = errors.New("trigger already started")
)

// Scheduler queues a build. Implementations are called from a hub receive loop
// and must return quickly.
type Scheduler interface {
	Schedule(ctx context.Context, cause Cause) error
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(ctx context.Context, cause Cause) error

func (f SchedulerFunc) Schedule(ctx context.Context, cause Cause) error {
	return f(ctx, cause)
}

// Attacher is the part of mux.Registry a trigger needs.
type Attacher interface {
	Attach(ctx context.Context, reg *mux.Registration) error
	Detach(reg *mux.Registration)
}

// Trigger fires builds for messages on Topic at HubAddress that pass Checks.
type Trigger struct {
	Name       string       `yaml:"name" json:"name"`
	HubAddress string       `yaml:"hub" json:"hub"`
	Topic      string       `yaml:"topic" json:"topic"`
	Checks     []check.Spec `yaml:"checks,omitempty" json:"checks,omitempty"`

	mu           sync.Mutex
	attacher     Attacher
	registration *mux.Registration
}

// Validate reports configuration problems.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Topic) == "" {
		return ErrEmptyTopic
	}
	hub := strings.TrimSpace(t.HubAddress)
	if hub == "" {
		return ErrInvalidHub
	}
	if u, err := url.Parse(hub); err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrInvalidHub, hub)
	}
	for i, c := range t.Checks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("check %d: %w", i, err)
		}
	}
	return nil
}

// Start attaches the trigger. Every match is turned into a Cause and handed to
// scheduler.
func (t *Trigger) Start(ctx context.Context, attacher Attacher, scheduler Scheduler) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("trigger %s: %w", t.Name, err)
	}
	predicates, err := check.Compile(t.Checks)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", t.Name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registration != nil {
		return ErrAlreadyStarted
	}

	hub := strings.TrimSpace(t.HubAddress)
	logger := slog.Default().With(slogx.LoggerName("hubtrigger.trigger"), slog.String("trigger", t.Name))
	name := t.Name
	reg := mux.NewRegistration(hub, strings.TrimSpace(t.Topic), func(msg messages.Message) {
		cause := NewCause(name, hub, msg)
		if err := scheduler.Schedule(context.Background(), cause); err != nil {
			logger.Warn("failed to schedule build", slogx.Topic(msg.Topic), slogx.Error(err))
			return
		}
		logger.Info(cause.ShortDescription())
	}, predicates...)

	if err := attacher.Attach(ctx, reg); err != nil {
		return fmt.Errorf("trigger %s: %w", t.Name, err)
	}
	t.attacher = attacher
	t.registration = reg
	return nil
}

// Stop detaches the trigger. Stopping a trigger that is not running does
// nothing.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registration == nil {
		return
	}
	t.attacher.Detach(t.registration)
	t.registration = nil
	t.attacher = nil
}

// Running reports whether the trigger is attached.
func (t *Trigger) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registration != nil
}
