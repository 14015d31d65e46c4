// Package connection manages the lifecycle of the control connection to a
// mixing device.
//
// This package handles:
//   - Dialing the device and sending the auth frame
//   - Liveness heartbeats while the connection is open
//   - Reconnection after any loss, forever, with a swappable retry policy
//   - Dropping events from sockets that were already replaced
//
// # States
//
//	DISCONNECTED -> CONNECTING -> AUTHENTICATING -> OPEN
//	      ^              |               |            |
//	      +--------------+---------------+------------+
//	          (dial failure, socket error or close)
//
// Frames are only written in OPEN, except the auth frame, which is written
// first thing in AUTHENTICATING. Without AwaitAuthAck the state moves to
// OPEN as soon as the auth frame is on the wire.
//
// # Reconnection
//
// Every loss schedules exactly one reconnect with the same address and
// token. The default policy waits a fixed 1 second between attempts:
//
//	lost -> wait 1s -> dial -> (fail) -> wait 1s -> dial -> ...
//
// An exponential Backoff with jitter is available as an alternative:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// The policy is reset whenever the connection reaches OPEN.
//
// # Ownership
//
// The Manager holds no lock of its own when an executor is configured.
// The owner (normally the client) serializes every call, and socket reads,
// dial results and timer callbacks are posted to the same executor.
package connection
