// Package client implements the control-channel client: the single owner of
// the device connection that multiplexes many UI subscribers onto a shared
// set of device paths.
//
// # Architecture
//
//	  UI actions                          device
//	      |                                  ^
//	Register/Unregister/RequestSet           | ws://<address>/api/ws
//	      v                                  |
//	+---------------------------------------------------+
//	| Client (one mutex)                                |
//	|   subscription.Registry  -> subscribe/get         |
//	|   connection.Manager     -> auth, heartbeat,      |
//	|                             reconnect, replay     |
//	|   wire.Decode -> router.Route -> deliveries       |
//	+---------------------------------------------------+
//	      |
//	      v  (after the lock is released)
//	handle.Deliver(value)
//
// # Concurrency
//
// Every entry point (API calls, socket reads, dial results and timer
// callbacks) runs under the client's mutex. Deliveries are collected while
// the lock is held and run once it is released, so a handle may call back
// into the client from Deliver.
//
// # Requests While Disconnected
//
// Nothing waits for the connection. Registrations are recorded and replayed
// on every (re)connection. A set issued while the connection is not open
// is dropped with a log line and ErrNotOpen; the next get or push restores
// the UI from device state.
//
// # Failures
//
// Replies with success=false are logged and never delivered, for get and
// set alike. Undecodable frames are logged and discarded. Set has no reply
// timeout and is not retried.
package client
