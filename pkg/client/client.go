package client

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dhd-bridge/dhd-go/pkg/clock"
	"github.com/dhd-bridge/dhd-go/pkg/connection"
	"github.com/dhd-bridge/dhd-go/pkg/log"
	"github.com/dhd-bridge/dhd-go/pkg/metrics"
	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/router"
	"github.com/dhd-bridge/dhd-go/pkg/subscription"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Client errors.
var (
	ErrClosed       = errors.New("client closed")
	ErrNotOpen      = connection.ErrNotOpen
	ErrNilHandle    = errors.New("nil handle")
	ErrUnknownEvent = errors.New("unknown event")
)

// Config configures a Client. Zero values take the defaults of the
// underlying packages.
type Config struct {
	// Dialer opens sockets (default: websocket dialer).
	Dialer transport.Dialer

	// Clock drives heartbeat, reconnect and replay timers.
	Clock clock.Clock

	// Retry shapes reconnect delays (default: fixed 1s).
	Retry connection.RetryPolicy

	// Heartbeat configures the liveness probe (default: every 5s).
	Heartbeat transport.HeartbeatConfig

	// ReplayRetryInterval is the wait between replay attempts while the
	// connection is not open (default: 1s).
	ReplayRetryInterval time.Duration

	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration

	// AwaitAuthAck waits for the device to acknowledge auth before
	// treating the connection as open.
	AwaitAuthAck bool

	// Logger for operational messages (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger

	// Metrics records client metrics (optional).
	Metrics *metrics.Metrics
}

// Status is a snapshot of the client.
type Status struct {
	State            connection.State
	Address          string
	ConnectionID     string
	ReconnectPending bool
	ReplayPending    bool
	Paths            int
	Handles          int
	Heartbeat        transport.HeartbeatStats
	Router           router.Stats
	Registry         subscription.Stats
	DecodeErrors     uint64
}

// Client is the control-channel client.
type Client struct {
	mu     sync.Mutex
	outbox []func()

	conn     *connection.Manager
	registry *subscription.Registry
	router   *router.Router
	clock    clock.Clock

	handles map[string]router.Handle
	order   []string

	logger       *slog.Logger
	capture      log.Logger
	metrics      *metrics.Metrics
	decodeErrors uint64
	closed       bool
}

// New creates a disconnected client.
func New(config Config) *Client {
	if config.Dialer == nil {
		config.Dialer = transport.NewWSDialer(transport.ClientConfig{})
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat.Interval = transport.DefaultHeartbeatInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ProtocolLogger == nil {
		config.ProtocolLogger = log.NoopLogger{}
	}

	c := &Client{
		clock:   config.Clock,
		handles: make(map[string]router.Handle),
		logger:  config.Logger,
		capture: config.ProtocolLogger,
		metrics: config.Metrics,
		router:  router.New(config.Logger),
	}

	c.conn = connection.NewManager(connection.Config{
		Dialer:       config.Dialer,
		Clock:        config.Clock,
		Retry:        config.Retry,
		Heartbeat:    config.Heartbeat,
		DialTimeout:  config.DialTimeout,
		AwaitAuthAck: config.AwaitAuthAck,
		Exec:         c.exec,
		Logger:       config.Logger,
	})
	c.registry = subscription.New(c.conn, subscription.Config{
		Clock:               config.Clock,
		ReplayRetryInterval: config.ReplayRetryInterval,
		Exec:                c.exec,
		Logger:              config.Logger,
	})

	c.conn.OnStateChange(c.stateChanged)
	c.conn.OnOpen(c.registry.ReplayAll)
	c.conn.OnFrame(c.received)
	c.conn.OnSent(c.sent)
	c.conn.OnDisconnect(c.disconnected)

	c.metrics.SetConnectionState(int(connection.StateDisconnected))
	return c
}

// exec runs f under the client lock, then runs the deliveries f queued.
func (c *Client) exec(f func()) {
	var out []func()
	func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		f()
		out, c.outbox = c.outbox, nil
	}()

	for _, deliver := range out {
		deliver()
	}
}

// Connect dials address and authenticates with token (skipped if empty).
// It returns immediately; the connection is retried until Close.
func (c *Client) Connect(address, token string) error {
	var err error
	c.exec(func() {
		if c.closed {
			err = ErrClosed
			return
		}
		err = c.conn.Connect(address, token)
	})
	return err
}

// UpdateCredentials reconnects when address or token changed.
func (c *Client) UpdateCredentials(address, token string) error {
	var err error
	c.exec(func() {
		if c.closed {
			err = ErrClosed
			return
		}
		err = c.conn.UpdateCredentials(address, token)
	})
	return err
}

// Register adds interest of h in p. The device is subscribed to p on the
// first registration and asked for its current value on every one.
func (c *Client) Register(p string, h router.Handle) error {
	if h == nil {
		return ErrNilHandle
	}

	var err error
	c.exec(func() {
		if c.closed {
			err = ErrClosed
			return
		}

		created, addErr := c.registry.AddInterest(p, h.ID())
		if addErr != nil {
			err = fmt.Errorf("register %q: %w", p, addErr)
			return
		}
		if _, known := c.handles[h.ID()]; !known {
			c.order = append(c.order, h.ID())
		}
		c.handles[h.ID()] = h

		if created {
			c.captureEntry(path.Normalize(p), "TRACKED")
		}
		c.updateGauges()
	})
	return err
}

// Unregister removes interest of h in p. A handle with no remaining paths
// is forgotten. Nothing is sent to the device.
func (c *Client) Unregister(p string, h router.Handle) bool {
	if h == nil {
		return false
	}

	var removed bool
	c.exec(func() {
		p = path.Normalize(p)
		removed = c.registry.RemoveInterest(p, h.ID())
		if !removed {
			return
		}
		if !c.registry.Has(p) {
			c.captureEntry(p, "UNTRACKED")
		}
		if len(c.registry.Interested(h.ID())) == 0 {
			c.forget(h.ID())
		}
		c.updateGauges()
	})
	return removed
}

// UnregisterAll removes every interest of h.
func (c *Client) UnregisterAll(h router.Handle) {
	if h == nil {
		return
	}
	c.exec(func() {
		for _, p := range c.registry.RemoveAll(h.ID()) {
			if !c.registry.Has(p) {
				c.captureEntry(p, "UNTRACKED")
			}
		}
		c.forget(h.ID())
		c.updateGauges()
	})
}

// RequestSet writes value to p. When the connection is not open the
// request is dropped and ErrNotOpen returned.
func (c *Client) RequestSet(p string, value any) error {
	data, err := wire.EncodeSet(p, value)
	if err != nil {
		return err
	}
	return c.request(wire.MethodSet, p, data)
}

// RequestGet asks for the current value of p. Replies are routed to
// every handle interested in p.
func (c *Client) RequestGet(p string) error {
	data, err := wire.EncodeGet(p)
	if err != nil {
		return err
	}
	return c.request(wire.MethodGet, p, data)
}

func (c *Client) request(method wire.Method, p string, data []byte) error {
	var err error
	c.exec(func() {
		if c.closed {
			err = ErrClosed
			return
		}
		err = c.conn.Send(data)
		if errors.Is(err, connection.ErrNotOpen) {
			c.logger.Warn("request dropped, connection not open",
				"method", method, "path", path.Normalize(p), "state", c.conn.State())
		}
	})
	return err
}

// State returns the connection state.
func (c *Client) State() connection.State {
	var s connection.State
	c.exec(func() { s = c.conn.State() })
	return s
}

// Paths returns the tracked paths in registration order.
func (c *Client) Paths() []string {
	var out []string
	c.exec(func() { out = c.registry.Paths() })
	return out
}

// Handles returns the handle IDs registered for p.
func (c *Client) Handles(p string) []string {
	var out []string
	c.exec(func() { out = c.registry.Handles(p) })
	return out
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	var s Status
	c.exec(func() {
		s = Status{
			State:            c.conn.State(),
			Address:          c.conn.Address(),
			ConnectionID:     c.conn.ConnectionID(),
			ReconnectPending: c.conn.ReconnectPending(),
			ReplayPending:    c.registry.ReplayPending(),
			Paths:            c.registry.Count(),
			Handles:          len(c.handles),
			Heartbeat:        c.conn.HeartbeatStats(),
			Router:           c.router.Stats(),
			Registry:         c.registry.Stats(),
			DecodeErrors:     c.decodeErrors,
		}
	})
	return s
}

// Close drops the connection and stops all timers. Registrations are kept
// in memory but nothing is sent any more.
func (c *Client) Close() error {
	var err error
	c.exec(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.registry.CancelReplay()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) forget(id string) {
	delete(c.handles, id)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == id })
}

func (c *Client) handleList() []router.Handle {
	out := make([]router.Handle, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.handles[id])
	}
	return out
}

func (c *Client) updateGauges() {
	c.metrics.SetSubscriptions(c.registry.Count(), len(c.handles))
}

func (c *Client) stateChanged(old, s connection.State) {
	c.metrics.SetConnectionState(int(s))
	c.captureState(old, s)
}

func (c *Client) disconnected(err error) {
	c.registry.CancelReplay()
	if err != nil {
		c.metrics.Reconnect()
		c.captureError(log.LayerTransport, err, "connection")
	}
}

func (c *Client) sent(data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		return
	}
	c.metrics.FrameSent(req.Method.String())
	c.captureRequest(req)
}

func (c *Client) received(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		c.decodeErrors++
		c.metrics.DecodeError()
		c.logger.Warn("discarding undecodable frame", "error", err)
		c.captureUndecodable(data, err)
		return
	}
	c.metrics.FrameReceived(frame.Kind().String())

	switch f := frame.(type) {
	case *wire.HeartbeatResponse:
		if f.Success {
			c.conn.HeartbeatAcknowledged()
		} else {
			c.logger.Warn("liveness query rejected", "path", wire.LivenessPath)
		}
	case *wire.AuthAck:
		c.conn.AuthResult(f.Success, f.Error)
	case *wire.Failure:
		c.metrics.Failure(f.Method.String())
	}

	deliveries := c.router.Route(frame, c.handleList())
	c.metrics.Delivered(len(deliveries))
	c.captureFrame(frame, len(deliveries))

	for _, d := range deliveries {
		c.outbox = append(c.outbox, func() { c.deliver(d) })
	}
}

// deliver runs d unless its handle was unregistered after routing, either
// by an earlier delivery of the same frame or by another goroutine.
func (c *Client) deliver(d router.Delivery) {
	c.mu.Lock()
	live := c.registered(d.Handle)
	c.mu.Unlock()

	if live {
		d.Run()
	}
}

func (c *Client) registered(h router.Handle) bool {
	if c.handles[h.ID()] != h {
		return false
	}
	if p, ok := h.(interface{ Path() string }); ok {
		return slices.Contains(c.registry.Handles(p.Path()), h.ID())
	}
	return len(c.registry.Interested(h.ID())) > 0
}
