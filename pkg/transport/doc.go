// Package transport provides the websocket transport to the control device.
//
// The transport layer handles:
//   - Dialing ws://<device>/api/ws with a bounded handshake
//   - Text-frame send/receive with serialized writes
//   - The liveness heartbeat schedule
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON control frames       │
//	├────────────────────────────────┤
//	│     WebSocket text frames      │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Heartbeat
//
// While a connection is open, a lightweight get on the liveness path is sent
// every 5 seconds. Replies are consumed by the client and acknowledged here.
// Missed-reply detection is optional and disabled by default; the device is
// expected to close the socket itself when it goes away.
package transport
