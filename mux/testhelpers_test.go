package mux

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/hubtrigger/internal/broker"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/stretchr/testify/require"
)

// recordingTransport counts subscription changes on top of a memory transport.
type recordingTransport struct {
	broker.Transport
	dialer *recordingDialer

	mu           sync.Mutex
	subscribes   map[string]int
	unsubscribes map[string]int
}

func (t *recordingTransport) Subscribe(topic string) error {
	if err := t.dialer.subscribeError(); err != nil {
		return err
	}
	if err := t.Transport.Subscribe(topic); err != nil {
		return err
	}
	t.mu.Lock()
	t.subscribes[topic]++
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) Unsubscribe(topic string) error {
	if err := t.Transport.Unsubscribe(topic); err != nil {
		return err
	}
	t.mu.Lock()
	t.unsubscribes[topic]++
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) counts(topic string) (subs, unsubs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribes[topic], t.unsubscribes[topic]
}

type recordingDialer struct {
	mem *broker.Memory

	mu         sync.Mutex
	transports []*recordingTransport
	dialErr    error
	subErr     error
}

func (d *recordingDialer) Dial(ctx context.Context, address string) (broker.Transport, error) {
	d.mu.Lock()
	err := d.dialErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tr, err := d.mem.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	rt := &recordingTransport{
		Transport:    tr,
		dialer:       d,
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
	d.mu.Lock()
	d.transports = append(d.transports, rt)
	d.mu.Unlock()
	return rt, nil
}

func (d *recordingDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *recordingDialer) last() *recordingTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

func (d *recordingDialer) failDial(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *recordingDialer) failSubscribe(err error) {
	d.mu.Lock()
	d.subErr = err
	d.mu.Unlock()
}

func (d *recordingDialer) subscribeError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subErr
}

type harness struct {
	mem      *broker.Memory
	dialer   *recordingDialer
	registry *Registry
	logs     *syncBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := broker.NewMemory()
	dialer := &recordingDialer{mem: mem}
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	registry, err := NewRegistry(WithDialer(dialer), WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	return &harness{mem: mem, dialer: dialer, registry: registry, logs: logs}
}

func (h *harness) publish(t *testing.T, address, topic string, timestamp float64, body string) int {
	t.Helper()
	data, err := messages.Encode(topic, timestamp, []byte(body))
	require.NoError(t, err)
	return h.mem.Publish(context.Background(), address, topic, data)
}

func (h *harness) publishRaw(address, topic string, data []byte) int {
	return h.mem.Publish(context.Background(), address, topic, data)
}

// barrier returns once every frame published to address before the call has
// been dispatched. A connection must already exist for address.
func (h *harness) barrier(t *testing.T, address string) {
	t.Helper()
	done := make(chan struct{})
	var once sync.Once
	reg := NewRegistration(address, "_barrier", func(messages.Message) {
		once.Do(func() { close(done) })
	})
	require.NoError(t, h.registry.Attach(context.Background(), reg))
	defer h.registry.Detach(reg)

	h.publish(t, address, "_barrier", 0, "")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for barrier")
	}
}

// recorder collects match callbacks.
type recorder struct {
	mu       sync.Mutex
	messages []messages.Message
	notify   chan messages.Message
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan messages.Message, 64)}
}

func (r *recorder) onMatch(msg messages.Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.notify <- msg
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) wait(t *testing.T) messages.Message {
	t.Helper()
	select {
	case msg := <-r.notify:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for match")
		return messages.Message{}
	}
}

// recordingPredicate remembers whether it ran.
type recordingPredicate struct {
	mu     sync.Mutex
	result bool
	calls  int
}

func (p *recordingPredicate) Evaluate(messages.Message) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result, nil
}

func (p *recordingPredicate) called() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
