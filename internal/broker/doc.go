// Package broker provides the transports a hub connection reads frames from.
//
// Design decisions:
//   - Single owner: a Transport is driven by exactly one goroutine, the hub
//     connection loop. Subscribe, Unsubscribe and Close are only ever called from
//     that goroutine, so implementations need not be safe for concurrent control
//     calls. Frames and Done may be read concurrently with delivery.
//   - Channel delivery: frames arrive on a channel so the owner can select over
//     frames, its own command queue and a stop signal without polling.
//   - Explicit termination: Done is closed once the transport can no longer
//     deliver; the owner distinguishes its own Close from an unexpected loss by
//     whether it asked for the close.
//
// Interface hierarchy:
//   - Dialer: resolves a hub address into a connected Transport
//     └── Transport: topic subscription control plus a frame stream
//
// Supported addresses:
//   - nats://, tls://, ws://, wss:// are served by a NATS connection, topics map
//     to subjects
//   - mem:// is served by an in-process Memory hub, used by tests and by
//     embedders that publish frames themselves
package broker
