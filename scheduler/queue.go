// Package scheduler turns build causes into scheduled builds.
//
// Causes arrive on hub receive loops, so a Queue sits in front of any slow
// scheduler: Schedule never blocks, pending causes for the same trigger are
// folded together and a single worker hands them downstream.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/casualjim/hubtrigger/internal/metrics"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/casualjim/hubtrigger/trigger"
	"github.com/fogfish/opts"
)

var (
	// ErrQueueFull is returned when a cause arrives while the queue is at capacity.
	ErrQueueFull = errors.New("build queue is full")
	// ErrQueueClosed is returned by Schedule after Close.
	ErrQueueClosed = errors.New("build queue is closed")
)

const (
	// DefaultCapacity is the queue capacity used without WithCapacity.
	DefaultCapacity = 64
	defaultTimeout  = 30 * time.Second
)

type queueSettings struct {
	capacity int
	timeout  time.Duration
	logger   *slog.Logger
}

var (
	// WithCapacity bounds the number of causes waiting for the worker.
	WithCapacity = opts.ForName[queueSettings, int]("capacity")
	// WithTimeout bounds each downstream Schedule call.
	WithTimeout = opts.ForName[queueSettings, time.Duration]("timeout")
	// WithLogger sets the queue logger.
	WithLogger = opts.ForName[queueSettings, *slog.Logger]("logger")
)

// Queue is an asynchronous trigger.Scheduler.
type Queue struct {
	downstream trigger.Scheduler
	timeout    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	pending []trigger.Cause
	closed  bool
	ready   chan trigger.Cause
	done    chan struct{}
}

var _ trigger.Scheduler = (*Queue)(nil)

// NewQueue starts a queue that forwards causes to downstream.
func NewQueue(downstream trigger.Scheduler, options ...opts.Option[queueSettings]) (*Queue, error) {
	if downstream == nil {
		return nil, errors.New("downstream scheduler cannot be nil")
	}
	s := queueSettings{
		capacity: DefaultCapacity,
		timeout:  defaultTimeout,
	}
	if err := opts.Apply(&s, options); err != nil {
		return nil, err
	}
	if s.capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", s.capacity)
	}

	q := &Queue{
		downstream: downstream,
		timeout:    s.timeout,
		logger:     slogx.Named(s.logger, "hubtrigger.scheduler.queue"),
		ready:      make(chan trigger.Cause, s.capacity),
		done:       make(chan struct{}),
	}
	go q.run()
	return q, nil
}

// Schedule enqueues cause without waiting for downstream. A cause whose trigger
// already has a build waiting is absorbed by that build.
func (q *Queue) Schedule(_ context.Context, cause trigger.Cause) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if slices.ContainsFunc(q.pending, cause.Coalesces) {
		metrics.IncCause(metrics.CauseCoalesced)
		q.logger.Debug("build already queued", slog.String("trigger", cause.Trigger), slogx.Topic(cause.Topic))
		return nil
	}

	select {
	case q.ready <- cause:
		q.pending = append(q.pending, cause)
		metrics.IncCause(metrics.CauseQueued)
		return nil
	default:
		metrics.IncCause(metrics.CauseDropped)
		return fmt.Errorf("%w: dropping cause for %s", ErrQueueFull, cause.Trigger)
	}
}

// Pending returns the number of causes waiting for the worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting causes and waits until the ones already queued have
// been handed downstream, or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for cause := range q.ready {
		q.mu.Lock()
		if i := slices.IndexFunc(q.pending, cause.Coalesces); i >= 0 {
			q.pending = slices.Delete(q.pending, i, i+1)
		}
		q.mu.Unlock()

		q.forward(cause)
	}
}

func (q *Queue) forward(cause trigger.Cause) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.downstream.Schedule(ctx, cause); err != nil {
		metrics.IncCause(metrics.CauseFailed)
		q.logger.Error("failed to schedule build", slog.String("trigger", cause.Trigger), slogx.Topic(cause.Topic), slogx.Error(err))
		return
	}
	metrics.IncCause(metrics.CauseScheduled)
}
