package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/hubtrigger/internal/metrics"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/pkg/slogx"
)

const defaultSlowSubscriberTimeout = 100 * time.Millisecond

// ErrSevered is reported by memory transports whose hub was severed.
var ErrSevered = errors.New("memory hub severed")

// Memory is an in-process set of hubs keyed by mem:// address.
type Memory struct {
	hubs                  *haxmap.Map[string, *memoryHub]
	slowSubscriberTimeout time.Duration
	frameBuffer           int
}

func NewMemory() *Memory {
	return &Memory{
		hubs:                  haxmap.New[string, *memoryHub](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
		frameBuffer:           defaultFrameBuffer,
	}
}

// WithSlowSubscriberTimeout configures how long Publish waits on a full
// transport before dropping the frame for it.
func (m *Memory) WithSlowSubscriberTimeout(timeout time.Duration) *Memory {
	m.slowSubscriberTimeout = timeout
	return m
}

// WithFrameBuffer configures the frame channel capacity of future transports.
func (m *Memory) WithFrameBuffer(n int) *Memory {
	m.frameBuffer = n
	return m
}

func (m *Memory) hub(address string) *memoryHub {
	h, _ := m.hubs.GetOrCompute(address, func() *memoryHub {
		return &memoryHub{transports: make(map[*memoryTransport]struct{})}
	})
	return h
}

func (m *Memory) Dial(ctx context.Context, address string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := m.hub(address)
	t := &memoryTransport{
		hub:    h,
		topics: make(map[string]struct{}),
		frames: make(chan messages.Frame, m.frameBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.transports[t] = struct{}{}
	h.mu.Unlock()
	return t, nil
}

// Publish delivers data to every transport on address subscribed to subject and
// returns how many received it.
func (m *Memory) Publish(ctx context.Context, address, subject string, data []byte) int {
	h, ok := m.hubs.Get(address)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]*memoryTransport, 0, len(h.transports))
	for t := range h.transports {
		if t.subscribed(subject) {
			targets = append(targets, t)
		}
	}
	h.mu.RUnlock()

	frame := messages.Frame{Subject: subject, Data: data}
	delivered := 0
	for _, t := range targets {
		select {
		case <-ctx.Done():
			return delivered
		case <-t.done:
		case t.frames <- frame:
			delivered++
		case <-time.After(m.slowSubscriberTimeout):
			metrics.IncFrameDrop("slow_subscriber")
			slog.Warn("dropping frame for slow transport", slogx.Hub(address), slogx.Topic(subject))
		}
	}
	return delivered
}

// Subscribers reports how many live transports on address hold subject.
func (m *Memory) Subscribers(address, subject string) int {
	h, ok := m.hubs.Get(address)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for t := range h.transports {
		if t.subscribed(subject) {
			n++
		}
	}
	return n
}

// Transports reports how many live transports are dialed to address.
func (m *Memory) Transports(address string) int {
	h, ok := m.hubs.Get(address)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.transports)
}

// Sever terminates every transport on address as if the hub went away.
func (m *Memory) Sever(address string) {
	h, ok := m.hubs.Get(address)
	if !ok {
		return
	}
	h.mu.Lock()
	transports := h.transports
	h.transports = make(map[*memoryTransport]struct{})
	h.mu.Unlock()

	for t := range transports {
		t.terminate(ErrSevered)
	}
}

type memoryHub struct {
	mu         sync.RWMutex
	transports map[*memoryTransport]struct{}
}

type memoryTransport struct {
	hub    *memoryHub
	mu     sync.Mutex
	topics map[string]struct{}
	frames chan messages.Frame
	done   chan struct{}
	once   sync.Once
	err    error
}

func (t *memoryTransport) subscribed(subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.topics[subject]
	return ok
}

func (t *memoryTransport) Subscribe(topic string) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.mu.Lock()
	t.topics[topic] = struct{}{}
	t.mu.Unlock()
	return nil
}

func (t *memoryTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	delete(t.topics, topic)
	t.mu.Unlock()
	return nil
}

func (t *memoryTransport) Frames() <-chan messages.Frame {
	return t.frames
}

func (t *memoryTransport) Done() <-chan struct{} {
	return t.done
}

func (t *memoryTransport) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *memoryTransport) Close() error {
	t.hub.mu.Lock()
	delete(t.hub.transports, t)
	t.hub.mu.Unlock()
	t.terminate(nil)
	return nil
}

func (t *memoryTransport) terminate(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
