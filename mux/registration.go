package mux

import (
	"errors"
	"fmt"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/google/uuid"
)

var (
	// ErrNilRegistration is returned when a nil registration is attached.
	ErrNilRegistration = errors.New("registration is required")
	// ErrInvalidRegistration is returned for registrations missing required fields.
	ErrInvalidRegistration = errors.New("invalid registration")
)

// Predicate is a content test applied to messages whose topic already matched.
// An error means the predicate could not be evaluated and counts as a non-match.
type Predicate interface {
	Evaluate(messages.Message) (bool, error)
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(messages.Message) bool

func (f PredicateFunc) Evaluate(msg messages.Message) (bool, error) {
	return f(msg), nil
}

// Registration is one consumer's standing interest in a topic on a hub.
// Registrations are compared by pointer; the fields must not change while the
// registration is attached.
type Registration struct {
	// ID identifies the registration in logs.
	ID         string
	HubAddress string
	Topic      string
	// Predicates are evaluated in order; the first false stops evaluation.
	Predicates []Predicate
	OnMatch    func(messages.Message)
}

// NewRegistration builds a registration with a fresh id.
func NewRegistration(hubAddress, topic string, onMatch func(messages.Message), predicates ...Predicate) *Registration {
	return &Registration{
		ID:         uuid.Must(uuid.NewV7()).String(),
		HubAddress: hubAddress,
		Topic:      topic,
		Predicates: predicates,
		OnMatch:    onMatch,
	}
}

// Validate checks that the registration can be attached.
func (r *Registration) Validate() error {
	switch {
	case r == nil:
		return ErrNilRegistration
	case r.HubAddress == "":
		return fmt.Errorf("%w: hub address is required", ErrInvalidRegistration)
	case r.Topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidRegistration)
	case r.OnMatch == nil:
		return fmt.Errorf("%w: match callback is required", ErrInvalidRegistration)
	}
	for i, p := range r.Predicates {
		if p == nil {
			return fmt.Errorf("%w: predicate %d is nil", ErrInvalidRegistration, i)
		}
	}
	return nil
}

// evaluate runs one predicate, turning panics into errors.
func evaluate(p Predicate, msg messages.Message) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return p.Evaluate(msg)
}
