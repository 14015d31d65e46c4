package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhd-bridge/dhd-go/pkg/clock"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Connection errors.
var (
	ErrNotOpen          = errors.New("connection not open")
	ErrClosed           = errors.New("connection manager closed")
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// DefaultDialTimeout bounds one dial attempt.
const DefaultDialTimeout = 10 * time.Second

// Config configures a Manager.
type Config struct {
	// Dialer opens sockets. Required.
	Dialer transport.Dialer

	// Clock drives the heartbeat and reconnect timers (default: real clock).
	Clock clock.Clock

	// Retry shapes reconnect delays (default: FixedDelay of 1s).
	Retry RetryPolicy

	// Heartbeat configures the liveness probe.
	Heartbeat transport.HeartbeatConfig

	// DialTimeout bounds each dial attempt (default: 10s).
	DialTimeout time.Duration

	// AwaitAuthAck keeps the connection in StateAuthenticating until the
	// device acknowledges the auth frame. When false the connection opens
	// right after the auth frame is written.
	AwaitAuthAck bool

	// Exec runs f on the owner's serialized executor. Socket events and
	// timer callbacks are posted through it. When nil, the manager uses
	// its own mutex and callers must go through Do.
	Exec func(f func())

	// Logger for operational messages (default: slog.Default()).
	Logger *slog.Logger
}

// Manager owns the single socket to the device: it dials, authenticates,
// keeps the connection alive and reconnects after any loss.
//
// A Manager is not safe for concurrent use. Every method must run on the
// owner's executor (Config.Exec, or Do). Hooks run on that executor too.
type Manager struct {
	config Config
	exec   func(func())
	mu     sync.Mutex
	logger *slog.Logger

	state   State
	address string
	token   string
	closed  bool

	// gen identifies the current socket. Events carrying an older
	// generation come from a superseded socket and are dropped.
	gen        uint64
	conn       transport.Conn
	connID     string
	cancelDial context.CancelFunc
	heartbeat  *transport.Heartbeat

	reconnectSeq   uint64
	reconnectTimer clock.Timer
	reconnects     uint64

	onStateChange func(old, new State)
	onOpen        func()
	onFrame       func(data []byte)
	onSent        func(data []byte)
	onDisconnect  func(err error)
}

// NewManager creates a disconnected manager.
func NewManager(config Config) *Manager {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Retry == nil {
		config.Retry = FixedDelay(DefaultReconnectDelay)
	}
	if config.Heartbeat.Interval <= 0 {
		config.Heartbeat.Interval = transport.DefaultHeartbeatInterval
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	m := &Manager{
		config: config,
		logger: config.Logger,
	}
	m.exec = config.Exec
	if m.exec == nil {
		m.exec = m.serialize
	}
	return m
}

func (m *Manager) serialize(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
}

// Do runs f on the manager's executor.
func (m *Manager) Do(f func()) {
	m.exec(f)
}

// OnStateChange sets the state transition hook.
func (m *Manager) OnStateChange(fn func(old, new State)) { m.onStateChange = fn }

// OnOpen sets the hook called once per socket after authentication was sent.
// The state may still be StateAuthenticating when AwaitAuthAck is set.
func (m *Manager) OnOpen(fn func()) { m.onOpen = fn }

// OnFrame sets the hook receiving every inbound frame of the current socket.
func (m *Manager) OnFrame(fn func(data []byte)) { m.onFrame = fn }

// OnSent sets the hook called after a frame was written.
func (m *Manager) OnSent(fn func(data []byte)) { m.onSent = fn }

// OnDisconnect sets the hook called when an active connection goes away.
// err is nil for explicit teardown.
func (m *Manager) OnDisconnect(fn func(err error)) { m.onDisconnect = fn }

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Address returns the configured device address.
func (m *Manager) Address() string { return m.address }

// ConnectionID identifies the current socket. Empty while disconnected.
func (m *Manager) ConnectionID() string { return m.connID }

// RemoteAddr returns the peer address of the current socket, or nil.
func (m *Manager) RemoteAddr() net.Addr {
	if m.conn == nil {
		return nil
	}
	return m.conn.RemoteAddr()
}

// ReconnectPending reports whether a reconnect is scheduled.
func (m *Manager) ReconnectPending() bool { return m.reconnectTimer != nil }

// Reconnects returns the number of reconnects scheduled so far.
func (m *Manager) Reconnects() uint64 { return m.reconnects }

// HeartbeatStats returns statistics of the current socket's heartbeat.
func (m *Manager) HeartbeatStats() transport.HeartbeatStats {
	if m.heartbeat == nil {
		return transport.HeartbeatStats{}
	}
	return m.heartbeat.Stats()
}

// Connect drops any current socket and dials address. token may be empty,
// in which case authentication is skipped.
func (m *Manager) Connect(address, token string) error {
	if m.closed {
		return ErrClosed
	}

	m.address = address
	m.token = token
	m.teardown(nil)
	m.cancelReconnect()
	m.config.Retry.Reset()
	m.dial()
	return nil
}

// UpdateCredentials reconnects with new credentials. Unchanged credentials
// on a live or connecting socket are ignored.
func (m *Manager) UpdateCredentials(address, token string) error {
	if m.closed {
		return ErrClosed
	}
	if address == m.address && token == m.token && m.state != StateDisconnected {
		return nil
	}
	return m.Connect(address, token)
}

// Send writes data if the connection is open. Otherwise it returns
// ErrNotOpen and nothing is sent.
func (m *Manager) Send(data []byte) error {
	if m.state != StateOpen {
		return ErrNotOpen
	}
	return m.write(data)
}

// AuthResult records the device's reply to the auth frame. A rejection
// drops the socket when AwaitAuthAck is set; otherwise it is only logged.
func (m *Manager) AuthResult(success bool, reason string) {
	if m.state != StateAuthenticating && m.state != StateOpen {
		return
	}

	if !success {
		m.logger.Error("authentication rejected", "address", m.address, "error", reason)
		if m.config.AwaitAuthAck {
			m.lost(m.gen, fmt.Errorf("%w: %s", ErrAuthRejected, reason))
		}
		return
	}

	if m.state == StateAuthenticating {
		m.becomeOpen()
	}
}

// HeartbeatAcknowledged records a heartbeat reply.
func (m *Manager) HeartbeatAcknowledged() {
	if m.heartbeat != nil {
		m.heartbeat.Acknowledge()
	}
}

// Close drops the socket and stops reconnecting. Later calls to Connect
// return ErrClosed.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.cancelReconnect()
	m.teardown(nil)
	return nil
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	old := m.state
	m.state = s
	m.logger.Debug("connection state", "from", old, "to", s, "address", m.address)
	if m.onStateChange != nil {
		m.onStateChange(old, s)
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	m.setState(StateConnecting)

	url, err := transport.DeviceURL(m.address)
	if err != nil {
		m.lost(gen, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	m.cancelDial = cancel
	dialer := m.config.Dialer

	go func() {
		conn, err := dialer.Dial(ctx, url)
		m.exec(func() {
			m.dialed(gen, conn, err)
		})
	}()
}

func (m *Manager) dialed(gen uint64, conn transport.Conn, err error) {
	if gen != m.gen || m.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if err != nil {
		m.lost(gen, fmt.Errorf("dial: %w", err))
		return
	}

	m.conn = conn
	m.connID = uuid.NewString()
	m.logger.Info("connected", "address", m.address, "connection", m.connID)

	go m.readLoop(gen, conn)
	m.opened(gen)
}

func (m *Manager) opened(gen uint64) {
	m.setState(StateAuthenticating)

	if m.token != "" {
		data, err := wire.EncodeAuth(m.token)
		if err != nil {
			m.lost(gen, err)
			return
		}
		if err := m.write(data); err != nil {
			return
		}
		if m.config.AwaitAuthAck {
			if m.onOpen != nil {
				m.onOpen()
			}
			return
		}
	}

	m.setState(StateOpen)
	m.config.Retry.Reset()
	if m.onOpen != nil {
		m.onOpen()
	}
	if gen == m.gen && m.state == StateOpen {
		m.startHeartbeat()
	}
}

func (m *Manager) becomeOpen() {
	m.setState(StateOpen)
	m.config.Retry.Reset()
	m.startHeartbeat()
}

func (m *Manager) startHeartbeat() {
	m.stopHeartbeat()

	gen := m.gen
	m.heartbeat = transport.NewHeartbeat(m.config.Clock, m.config.Heartbeat,
		func() {
			m.exec(func() { m.sendHeartbeat(gen) })
		},
		func() {
			m.exec(func() { m.lost(gen, ErrHeartbeatTimeout) })
		},
	)
	m.heartbeat.Start()
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) sendHeartbeat(gen uint64) {
	if gen != m.gen || m.state != StateOpen {
		return
	}
	data, err := wire.EncodeGet(wire.LivenessPath)
	if err != nil {
		return
	}
	_ = m.write(data)
}

func (m *Manager) readLoop(gen uint64, conn transport.Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			m.exec(func() { m.lost(gen, err) })
			return
		}
		m.exec(func() { m.received(gen, data) })
	}
}

func (m *Manager) received(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}
	if m.onFrame != nil {
		m.onFrame(data)
	}
}

func (m *Manager) write(data []byte) error {
	if m.conn == nil {
		return ErrNotOpen
	}
	if err := m.conn.Send(data); err != nil {
		m.lost(m.gen, fmt.Errorf("send: %w", err))
		return err
	}
	if m.onSent != nil {
		m.onSent(data)
	}
	return nil
}

// lost handles an error or close on socket gen and schedules one reconnect.
func (m *Manager) lost(gen uint64, err error) {
	if gen != m.gen || m.closed {
		return
	}

	if transport.IsCloseError(err) {
		m.logger.Info("connection closed", "address", m.address, "reason", err)
	} else {
		m.logger.Warn("connection lost", "address", m.address, "error", err)
	}

	m.teardown(err)
	m.scheduleReconnect()
}

// teardown drops the current socket, if any, without scheduling a reconnect.
func (m *Manager) teardown(err error) {
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.stopHeartbeat()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connID = ""

	wasActive := m.state != StateDisconnected
	m.setState(StateDisconnected)
	if wasActive && m.onDisconnect != nil {
		m.onDisconnect(err)
	}
}

func (m *Manager) scheduleReconnect() {
	if m.closed || m.reconnectTimer != nil {
		return
	}

	delay := m.config.Retry.Next()
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnects++

	m.reconnectTimer = m.config.Clock.AfterFunc(delay, func() {
		m.exec(func() { m.reconnect(seq) })
	})
	m.logger.Info("reconnect scheduled", "address", m.address, "delay", delay)
}

func (m *Manager) reconnect(seq uint64) {
	if seq != m.reconnectSeq || m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer = nil
	if m.closed || m.state != StateDisconnected {
		return
	}
	m.dial()
}

func (m *Manager) cancelReconnect() {
	m.reconnectSeq++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// IsOpen reports whether the connection carries requests.
func (m *Manager) IsOpen() bool { return m.state == StateOpen }
