package transport

import (
	"context"
	"net"
)

// Dialer opens connections to a device.
// Implemented by WSDialer.
type Dialer interface {
	// Dial connects to the websocket endpoint at url.
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one open message-oriented connection.
// Implemented by WSConn.
type Conn interface {
	// Send writes one frame. Safe for concurrent use.
	Send(data []byte) error

	// Receive blocks until the next frame arrives or the connection fails.
	Receive() ([]byte, error)

	// Close closes the connection. Pending Receive calls return an error.
	Close() error

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer = (*WSDialer)(nil)
	_ Conn   = (*WSConn)(nil)
)
