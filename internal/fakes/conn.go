package fakes

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/dhd-bridge/dhd-go/pkg/transport"
)

// ErrClosed is returned by a Conn after it has been closed.
var ErrClosed = errors.New("fake connection closed")

var _ transport.Conn = (*Conn)(nil)

// Conn is an in-memory transport.Conn.
type Conn struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sent     [][]byte
	closed   bool
	receives int
	sendErr  error
	peerErr  error

	in     chan []byte
	done   chan struct{}
	remote net.Addr
}

// NewConn creates an open connection.
func NewConn() *Conn {
	c := &Conn{
		in:     make(chan []byte),
		done:   make(chan struct{}),
		remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80},
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send records data.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Receive blocks until Deliver, Fail or Close.
func (c *Conn) Receive() ([]byte, error) {
	c.mu.Lock()
	c.receives++
	c.cond.Broadcast()
	c.mu.Unlock()

	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		c.mu.Lock()
		err := c.peerErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeWith(nil)
	return nil
}

// RemoteAddr returns a fixed loopback address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// Deliver feeds one inbound frame and waits until the reader has processed
// it. It returns false if the connection closed first.
func (c *Conn) Deliver(data []byte) bool {
	c.mu.Lock()
	n := c.receives
	c.mu.Unlock()

	select {
	case c.in <- data:
	case <-c.done:
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.receives == n && !c.closed {
		c.cond.Wait()
	}
	return true
}

// DeliverJSON marshals v and delivers it.
func (c *Conn) DeliverJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return c.Deliver(data)
}

// Fail simulates the peer dropping the connection. Pending and future
// Receive calls return err.
func (c *Conn) Fail(err error) {
	if err == nil {
		err = ErrClosed
	}
	c.closeWith(err)
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Closed reports whether the connection was closed by either side.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of all frames sent so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentRequests decodes every sent frame into a Request.
func (c *Conn) SentRequests() []Request {
	var out []Request
	for _, data := range c.Sent() {
		var r Request
		if err := json.Unmarshal(data, &r); err != nil {
			r.Method = "<invalid>"
		}
		out = append(out, r)
	}
	return out
}

// Count returns how many frames with method (and path, if non-empty) were sent.
func (c *Conn) Count(method, path string) int {
	n := 0
	for _, r := range c.SentRequests() {
		if r.Method == method && (path == "" || r.Path == path) {
			n++
		}
	}
	return n
}

// ClearSent forgets the recorded frames.
func (c *Conn) ClearSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func (c *Conn) closeWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.peerErr = err
	close(c.done)
	c.cond.Broadcast()
}

// Request is a sent frame as seen by the device.
type Request struct {
	Method  string          `json:"method"`
	Path    string          `json:"path,omitempty"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
