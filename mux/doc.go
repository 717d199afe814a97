// Package mux multiplexes many consumer registrations over one subscription
// connection per hub address.
//
// Design decisions:
//   - One connection per hub: every Registration for a hub address shares a
//     single Connection, created on first Attach and stopped on last Detach
//   - Refcounted topics: a topic is subscribed on the transport while at least
//     one live registration on the connection needs that exact topic string
//   - Single transport owner: subscribe, unsubscribe, read and close all happen
//     on the connection's loop goroutine; callers enqueue commands
//   - Fail-closed predicates: a predicate that errors or panics is a non-match
//     for its registration only
//   - Contained failures: nothing that goes wrong in the receive loop reaches
//     Attach or Detach callers
//
// Lifecycle of a Connection:
//
//	Created ──Start──▶ Running ──Stop──▶ Stopping ──▶ Stopped
//	                      │                              ▲
//	                      └──── transport lost ──────────┘
//
// A stopped connection is never reused; the Registry dials a fresh one and moves
// any registrations left on the dead one over to it.
//
// Callbacks:
//
// OnMatch runs on the connection's loop goroutine. A slow callback delays
// delivery to every other registration on the same hub, so consumers are
// expected to hand work off (see scheduler.Queue). OnMatch must not call
// Registry.Detach synchronously: Detach may need to stop the very loop that is
// running the callback.
//
// Example usage:
//
//	reg, err := mux.NewRegistry(mux.WithDialer(dialer))
//	if err != nil {
//	    return err
//	}
//	defer reg.Close()
//
//	r, err := reg.Subscribe(ctx, "nats://hub:4222", "pkg.build", func(m messages.Message) {
//	    cause := trigger.NewCause("kernel", "nats://hub:4222", m)
//	    if err := queue.Schedule(context.Background(), cause); err != nil {
//	        slog.Warn("build not scheduled", slogx.Error(err))
//	    }
//	}, check.Field("name", "kernel"))
//	if err != nil {
//	    return err
//	}
//	defer reg.Detach(r)
package mux
