package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/pkg/natsx"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// minMsgBuffer is the smallest capacity of the channel shared by all
// subscriptions. NATS drops messages for a full channel and reports them as a
// slow consumer.
const minMsgBuffer = 1024

type natsTransport struct {
	client       *nats.Conn
	subs         map[string]*nats.Subscription
	msgs         chan *nats.Msg
	frames       chan messages.Frame
	done         chan struct{}
	once         sync.Once
	mu           sync.Mutex
	err          error
	closing      bool
	flushTimeout time.Duration
	logger       *slog.Logger
}

// DialNATS connects to the NATS server at address. Topics map one to one onto
// subjects. Every subscription feeds one channel filled by the connection's
// read loop, so frames keep wire order across topics.
func DialNATS(address string, frameBuffer int, flushTimeout time.Duration, natsOptions ...nats.Option) (Transport, error) {
	t := &natsTransport{
		subs:         make(map[string]*nats.Subscription),
		msgs:         make(chan *nats.Msg, max(frameBuffer, minMsgBuffer)),
		frames:       make(chan messages.Frame, frameBuffer),
		done:         make(chan struct{}),
		flushTimeout: flushTimeout,
		logger:       slogx.Named(nil, "hubtrigger.broker.nats").With(slogx.Hub(address)),
	}

	all := append(natsOptions[:len(natsOptions):len(natsOptions)],
		nats.ClosedHandler(func(nc *nats.Conn) {
			t.terminate(nc.LastError())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("disconnected from hub", slogx.Error(err))
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{slogx.Error(err)}
			if sub != nil {
				attrs = append(attrs, slogx.Topic(sub.Subject))
			}
			t.logger.Warn("hub transport error", attrs...)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info("reconnected to hub", slog.String("server", nc.ConnectedUrlRedacted()))
		}),
	)

	client, err := natsx.NewClient(address, all...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	t.client = client
	go t.pump()
	return t, nil
}

func (t *natsTransport) pump() {
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.msgs:
			select {
			case t.frames <- messages.Frame{Subject: msg.Subject, Data: msg.Data}:
			case <-t.done:
				return
			}
		}
	}
}

func (t *natsTransport) Subscribe(topic string) error {
	if _, ok := t.subs[topic]; ok {
		return nil
	}
	if t.client.IsClosed() {
		return ErrClosed
	}

	sub, err := t.client.ChanSubscribe(topic, t.msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := t.client.FlushTimeout(t.flushTimeout); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	t.subs[topic] = sub
	return nil
}

func (t *natsTransport) Unsubscribe(topic string) error {
	sub, ok := t.subs[topic]
	if !ok {
		return nil
	}
	delete(t.subs, topic)
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	if err := t.client.FlushTimeout(t.flushTimeout); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (t *natsTransport) Frames() <-chan messages.Frame {
	return t.frames
}

func (t *natsTransport) Done() <-chan struct{} {
	return t.done
}

func (t *natsTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *natsTransport) Close() error {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	t.client.Close()
	t.terminate(nil)
	return nil
}

func (t *natsTransport) terminate(err error) {
	t.mu.Lock()
	if !t.closing && t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}
