package mux

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/hubtrigger/internal/metrics"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/pkg/slogx"
)

func (c *Connection) run() {
	defer close(c.done)

	for {
		// a pending stop wins over anything else that is ready
		select {
		case <-c.stop:
			c.shutdown(true)
			return
		default:
		}

		select {
		case <-c.stop:
			c.shutdown(true)
			return
		case <-c.transport.Done():
			select {
			case <-c.stop:
				c.shutdown(true)
				return
			default:
			}
			attrs := []any{}
			if err := c.transport.Err(); err != nil {
				attrs = append(attrs, slogx.Error(err))
			}
			c.logger.Warn("hub transport terminated unexpectedly", attrs...)
			c.shutdown(false)
			return
		case <-c.wake:
			c.runCommands()
		case frame := <-c.transport.Frames():
			c.handleFrame(frame)
		}
	}
}

// shutdown releases the transport. On a requested stop the unsubscribes queued
// by the final detaches still run first; subscribes are failed.
func (c *Connection) shutdown(requested bool) {
	c.mu.Lock()
	c.state.Store(int32(StateStopped))
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, cmd := range pending {
		switch {
		case cmd.reply != nil:
			cmd.reply <- ErrConnectionClosed
		case requested && cmd.op == opUnsubscribe:
			if err := c.transport.Unsubscribe(cmd.topic); err != nil {
				c.logger.Debug("unsubscribe during shutdown failed", slogx.Topic(cmd.topic), slogx.Error(err))
			}
		}
	}
	c.closeTransport()
	metrics.ConnectionsActive.Dec()
	metrics.ForgetHub(c.address)
	c.logger.Debug("hub connection stopped")
}

func (c *Connection) runCommands() {
	c.mu.Lock()
	cmds := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, cmd := range cmds {
		var err error
		switch cmd.op {
		case opSubscribe:
			err = c.transport.Subscribe(cmd.topic)
			if err == nil {
				metrics.SubscriptionsActive.WithLabelValues(c.address).Inc()
			}
		case opUnsubscribe:
			err = c.transport.Unsubscribe(cmd.topic)
			if err == nil {
				metrics.SubscriptionsActive.WithLabelValues(c.address).Dec()
			}
		}

		if cmd.reply != nil {
			cmd.reply <- err
			continue
		}
		if err != nil {
			c.logger.Error("hub subscription change failed", slog.String("op", cmd.op.String()), slogx.Topic(cmd.topic), slogx.Error(err))
		}
	}
}

func (c *Connection) handleFrame(frame messages.Frame) {
	if frame.Empty() {
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(c.address).Inc()

	msg, err := c.decoder.Decode(frame)
	if err != nil {
		var schemaErr *messages.SchemaError
		switch {
		case errors.Is(err, messages.ErrMalformed):
			// shared hubs carry plenty of traffic that is not for us
			metrics.IncDecodeFailure(c.address, metrics.DecodeMalformed)
			c.logger.Debug("skipping malformed frame", slogx.Topic(frame.Subject))
		case errors.As(err, &schemaErr):
			metrics.IncDecodeFailure(c.address, metrics.DecodeSchema)
			c.logger.Error("failed to decode message", slogx.Topic(frame.Subject), slogx.Error(err))
		default:
			metrics.IncDecodeFailure(c.address, "")
			c.logger.Error("failed to decode message", slogx.Topic(frame.Subject), slogx.Error(err))
		}
		return
	}

	c.dispatch(msg)
}

// dispatch delivers msg to every live registration on its exact topic whose
// predicates all pass. Locks are not held while predicates or callbacks run.
func (c *Connection) dispatch(msg messages.Message) {
	c.mu.Lock()
	var matched []*Registration
	for reg := range c.registrations {
		if reg.Topic == msg.Topic {
			matched = append(matched, reg)
		}
	}
	c.mu.Unlock()

	for _, reg := range matched {
		if !c.accepts(reg, msg) {
			continue
		}
		if !c.attached(reg) {
			continue
		}
		c.invoke(reg, msg)
	}
}

func (c *Connection) accepts(reg *Registration, msg messages.Message) bool {
	for i, p := range reg.Predicates {
		ok, err := evaluate(p, msg)
		if err != nil {
			metrics.PredicateErrorsTotal.WithLabelValues(c.address).Inc()
			c.logger.Debug("predicate failed, treating as no match",
				slogx.Registration(reg.ID), slog.Int("predicate", i), slogx.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *Connection) attached(reg *Registration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.registrations[reg]
	return ok
}

func (c *Connection) invoke(reg *Registration, msg messages.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("match callback panicked",
				slogx.Registration(reg.ID), slogx.Topic(msg.Topic), slogx.Error(fmt.Errorf("%v", r)))
		}
	}()
	metrics.DispatchesTotal.WithLabelValues(c.address).Inc()
	reg.OnMatch(msg)
}
