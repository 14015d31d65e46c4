package fakes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dhd-bridge/dhd-go/pkg/transport"
)

// ErrRefused is the default dial failure.
var ErrRefused = errors.New("fake dial refused")

// WaitTimeout bounds the Wait helpers.
const WaitTimeout = 2 * time.Second

var _ transport.Dialer = (*Dialer)(nil)

// Dialer is an in-memory transport.Dialer.
type Dialer struct {
	mu       sync.Mutex
	urls     []string
	failNext int
	failErr  error
	failAll  bool

	attempts chan string
	conns    chan *Conn
}

// NewDialer creates a dialer that succeeds by default.
func NewDialer() *Dialer {
	return &Dialer{
		attempts: make(chan string, 64),
		conns:    make(chan *Conn, 64),
	}
}

// Dial records url and returns a new Conn unless a failure is scripted.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	var err error
	switch {
	case d.failAll:
		err = d.failErr
	case d.failNext > 0:
		d.failNext--
		err = d.failErr
	}
	d.mu.Unlock()

	select {
	case d.attempts <- url:
	default:
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c := NewConn()
	d.conns <- c
	return c, nil
}

// FailNext makes the next n dials fail with err (ErrRefused if nil).
func (d *Dialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrRefused
	}
	d.failNext = n
	d.failErr = err
}

// FailAll makes every dial fail until called with false.
func (d *Dialer) FailAll(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = fail
	if d.failErr == nil {
		d.failErr = ErrRefused
	}
}

// URLs returns every dialed URL in order.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// WaitAttempt waits for the next dial attempt and returns its URL.
func (d *Dialer) WaitAttempt(t testing.TB) string {
	t.Helper()
	select {
	case url := <-d.attempts:
		return url
	case <-time.After(WaitTimeout):
		t.Fatal("timed out waiting for dial attempt")
		return ""
	}
}

// WaitConn waits for the next successful dial and returns its Conn.
func (d *Dialer) WaitConn(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(WaitTimeout):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}
