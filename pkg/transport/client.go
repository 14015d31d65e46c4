package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// APIPath is the websocket endpoint of the control API.
const APIPath = "/api/ws"

// Transport defaults.
const (
	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultMaxMessageSize is the largest accepted incoming frame.
	// Full-tree update pushes from large consoles can be sizeable.
	DefaultMaxMessageSize = 4 << 20
)

// Transport errors.
var (
	ErrEmptyAddress     = errors.New("device address is empty")
	ErrConnectionClosed = errors.New("connection closed")
)

// DeviceURL builds the control API URL for a device address.
// address may be a host, host:port, or a full ws:// or wss:// URL.
func DeviceURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrEmptyAddress
	}

	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("invalid device url: %w", err)
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = APIPath
		}
		return u.String(), nil
	}

	u := url.URL{Scheme: "ws", Host: strings.TrimSuffix(address, "/"), Path: APIPath}
	return u.String(), nil
}

// ClientConfig configures a WSDialer.
type ClientConfig struct {
	// HandshakeTimeout is the opening handshake timeout (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write (default: 5s).
	WriteTimeout time.Duration

	// MaxMessageSize is the read limit per frame (default: 4MB).
	MaxMessageSize int64
}

// WSDialer dials control API websockets.
type WSDialer struct {
	config ClientConfig
	dialer *websocket.Dialer
}

// NewWSDialer creates a websocket dialer.
func NewWSDialer(config ClientConfig) *WSDialer {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	return &WSDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial connects to url.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(d.config.MaxMessageSize)

	return &WSConn{
		ws:           ws,
		writeTimeout: d.config.WriteTimeout,
		closeCh:      make(chan struct{}),
	}, nil
}

// WSConn is an open websocket to the device.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeCh      chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
}

// NewWSConn wraps an established websocket. Used on the accepting side.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSConn{ws: ws, writeTimeout: writeTimeout, closeCh: make(chan struct{})}
}

// Send writes data as one text frame.
func (c *WSConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Receive reads the next text or binary frame.
func (c *WSConn) Receive() ([]byte, error) {
	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close sends a close frame (best effort) and closes the socket.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the remote network address.
func (c *WSConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// IsCloseError reports whether err is a normal websocket closure.
func IsCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, ErrConnectionClosed) || errors.Is(err, net.ErrClosed)
}
