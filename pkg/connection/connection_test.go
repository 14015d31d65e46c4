package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhd-bridge/dhd-go/internal/fakes"
	"github.com/dhd-bridge/dhd-go/pkg/clock"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()
			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()
		d := b.Next()
		if d < time.Second || d > 1250*time.Millisecond {
			t.Errorf("Next() = %v, out of range [1s, 1.25s]", d)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		if b.Attempts() != 5 {
			t.Errorf("Attempts() = %d, want 5", b.Attempts())
		}

		b.Reset()
		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: 100 * time.Millisecond,
			Max:     500 * time.Millisecond,
			Jitter:  -1,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})
}

func TestFixedDelay(t *testing.T) {
	d := FixedDelay(time.Second)
	for i := 0; i < 3; i++ {
		if got := d.Next(); got != time.Second {
			t.Errorf("Next() = %v, want 1s", got)
		}
	}
	d.Reset()

	if got := FixedDelay(0).Next(); got != DefaultReconnectDelay {
		t.Errorf("zero FixedDelay Next() = %v, want %v", got, DefaultReconnectDelay)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateAuthenticating, "AUTHENTICATING"},
		{StateOpen, "OPEN"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// harness wires a Manager to a fake dialer and clock and records hooks.
type harness struct {
	m      *Manager
	dialer *fakes.Dialer
	clk    *clock.Fake

	transitions []State
	frames      []string
	opens       int
	disconnects []error
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		dialer: fakes.NewDialer(),
		clk:    clock.NewFake(time.Unix(1000, 0)),
	}
	cfg := Config{
		Dialer:    h.dialer,
		Clock:     h.clk,
		Heartbeat: transport.DefaultHeartbeatConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.m = NewManager(cfg)
	h.m.OnStateChange(func(_, s State) { h.transitions = append(h.transitions, s) })
	h.m.OnOpen(func() { h.opens++ })
	h.m.OnFrame(func(data []byte) { h.frames = append(h.frames, string(data)) })
	h.m.OnDisconnect(func(err error) { h.disconnects = append(h.disconnects, err) })

	t.Cleanup(func() { h.m.Do(func() { _ = h.m.Close() }) })
	return h
}

func (h *harness) connect(t *testing.T, address, token string) {
	t.Helper()
	var err error
	h.m.Do(func() { err = h.m.Connect(address, token) })
	require.NoError(t, err)
}

func (h *harness) state() State {
	var s State
	h.m.Do(func() { s = h.m.State() })
	return s
}

func (h *harness) reconnectPending() bool {
	var p bool
	h.m.Do(func() { p = h.m.ReconnectPending() })
	return p
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.state() == want },
		fakes.WaitTimeout, time.Millisecond, "state never reached %s", want)
}

func (h *harness) waitReconnectPending(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.reconnectPending, fakes.WaitTimeout, time.Millisecond)
}

// open connects and waits for the first socket to open.
func (h *harness) open(t *testing.T, token string) *fakes.Conn {
	t.Helper()
	h.connect(t, "mixer.local", token)
	conn := h.dialer.WaitConn(t)
	h.waitState(t, StateOpen)
	return conn
}

func TestManagerConnect(t *testing.T) {
	t.Run("sends auth first then opens", func(t *testing.T) {
		h := newHarness(t, nil)
		conn := h.open(t, "secret")

		assert.Equal(t, []string{"ws://mixer.local/api/ws"}, h.dialer.URLs())

		reqs := conn.SentRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "auth", reqs[0].Method)
		assert.Equal(t, "secret", reqs[0].Token)

		assert.Equal(t, []State{StateConnecting, StateAuthenticating, StateOpen}, h.transitions)
		assert.Equal(t, 1, h.opens)

		h.m.Do(func() {
			assert.NotEmpty(t, h.m.ConnectionID())
			assert.NotNil(t, h.m.RemoteAddr())
		})
	})

	t.Run("empty token skips auth", func(t *testing.T) {
		h := newHarness(t, nil)
		conn := h.open(t, "")

		assert.Empty(t, conn.Sent())
		assert.Equal(t, 1, h.opens)
	})

	t.Run("empty address is a transport error", func(t *testing.T) {
		h := newHarness(t, nil)
		h.connect(t, "", "")

		assert.Equal(t, StateDisconnected, h.state())
		assert.True(t, h.reconnectPending())
		assert.Equal(t, 0, h.dialer.Dials())
		require.Len(t, h.disconnects, 1)
		assert.ErrorIs(t, h.disconnects[0], transport.ErrEmptyAddress)
	})
}

func TestManagerSend(t *testing.T) {
	h := newHarness(t, nil)

	h.m.Do(func() {
		assert.ErrorIs(t, h.m.Send([]byte(`{}`)), ErrNotOpen)
	})

	conn := h.open(t, "")
	h.m.Do(func() {
		require.NoError(t, h.m.Send([]byte(`{"method":"get","path":"a"}`)))
	})
	assert.Equal(t, 1, conn.Count("get", "a"))

	t.Run("write failure drops the connection", func(t *testing.T) {
		conn.FailSends(errors.New("broken pipe"))
		h.m.Do(func() {
			assert.Error(t, h.m.Send([]byte(`{}`)))
		})
		assert.Equal(t, StateDisconnected, h.state())
		assert.True(t, h.reconnectPending())
		assert.True(t, conn.Closed())
	})
}

func TestManagerFrames(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.open(t, "")

	require.True(t, conn.Deliver([]byte(`{"method":"update","payload":{}}`)))
	require.True(t, conn.Deliver([]byte(`{"method":"get","path":"x","payload":1}`)))

	var frames []string
	h.m.Do(func() { frames = append(frames, h.frames...) })
	assert.Equal(t, []string{
		`{"method":"update","payload":{}}`,
		`{"method":"get","path":"x","payload":1}`,
	}, frames)
}

func TestManagerHeartbeat(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.open(t, "")

	h.clk.Advance(4 * time.Second)
	assert.Equal(t, 0, conn.Count("get", wire.LivenessPath))

	h.clk.Advance(time.Second)
	assert.Equal(t, 1, conn.Count("get", wire.LivenessPath))

	h.clk.Advance(10 * time.Second)
	assert.Equal(t, 3, conn.Count("get", wire.LivenessPath))

	h.m.Do(func() {
		h.m.HeartbeatAcknowledged()
		assert.Equal(t, uint64(3), h.m.HeartbeatStats().Sent)
		assert.Equal(t, uint64(1), h.m.HeartbeatStats().Acked)
	})

	t.Run("stops when the connection is lost", func(t *testing.T) {
		conn.Fail(errors.New("reset by peer"))
		h.waitState(t, StateDisconnected)

		before := conn.Count("get", wire.LivenessPath)
		// Fail every redial so no new heartbeat starts.
		h.dialer.FailAll(true)
		h.clk.Advance(20 * time.Second)
		assert.Equal(t, before, conn.Count("get", wire.LivenessPath))
	})
}

func TestManagerHeartbeatTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Heartbeat.MaxMissed = 2
	})
	conn := h.open(t, "")

	h.clk.Advance(15 * time.Second)
	h.waitState(t, StateDisconnected)
	assert.True(t, conn.Closed())
	require.NotEmpty(t, h.disconnects)
	assert.ErrorIs(t, h.disconnects[len(h.disconnects)-1], ErrHeartbeatTimeout)
}

func TestManagerReconnect(t *testing.T) {
	h := newHarness(t, nil)
	first := h.open(t, "secret")

	first.Fail(errors.New("device rebooted"))
	h.waitState(t, StateDisconnected)
	h.waitReconnectPending(t)

	h.clk.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.Dials(), "reconnected before the delay elapsed")

	h.clk.Advance(time.Millisecond)
	second := h.dialer.WaitConn(t)
	h.waitState(t, StateOpen)

	assert.Equal(t, 2, h.opens)
	assert.Equal(t, 1, second.Count("auth", ""))
	assert.Equal(t, []string{"ws://mixer.local/api/ws", "ws://mixer.local/api/ws"}, h.dialer.URLs())
	assert.False(t, h.reconnectPending())

	h.m.Do(func() {
		assert.Equal(t, uint64(1), h.m.Reconnects())
	})

	t.Run("stale socket events are ignored", func(t *testing.T) {
		assert.False(t, first.Deliver([]byte(`{"method":"update","payload":{}}`)))

		var frames int
		h.m.Do(func() { frames = len(h.frames) })
		assert.Equal(t, 0, frames)
	})
}

func TestManagerSingleReconnect(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.open(t, "")

	var gen uint64
	h.m.Do(func() { gen = h.m.gen })

	// An error followed by a close on the same socket.
	h.m.Do(func() {
		h.m.lost(gen, errors.New("error"))
		h.m.lost(gen, errors.New("close"))
	})

	assert.True(t, conn.Closed())
	assert.Equal(t, 1, h.clk.Pending(), "exactly one timer (the reconnect) should be pending")
	assert.Len(t, h.disconnects, 1)

	h.clk.Advance(time.Second)
	h.dialer.WaitConn(t)
	h.waitState(t, StateOpen)
	assert.Equal(t, 2, h.dialer.Dials())
}

func TestManagerDialFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.FailNext(2, nil)

	h.connect(t, "mixer.local", "")

	for i := 0; i < 2; i++ {
		h.dialer.WaitAttempt(t)
		h.waitReconnectPending(t)
		assert.Equal(t, StateDisconnected, h.state())
		h.clk.Advance(time.Second)
	}

	h.dialer.WaitConn(t)
	h.waitState(t, StateOpen)
	assert.Equal(t, 3, h.dialer.Dials())
}

func TestManagerStaleDialResult(t *testing.T) {
	h := newHarness(t, nil)
	h.open(t, "")

	late := fakes.NewConn()
	h.m.Do(func() {
		h.m.dialed(h.m.gen-1, late, nil)
	})

	assert.True(t, late.Closed())
	assert.Equal(t, StateOpen, h.state())
}

func TestManagerAwaitAuthAck(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AwaitAuthAck = true })
	h.connect(t, "mixer.local", "secret")
	conn := h.dialer.WaitConn(t)
	h.waitState(t, StateAuthenticating)

	assert.Equal(t, 1, conn.Count("auth", ""))
	assert.Equal(t, 1, h.opens)

	h.m.Do(func() {
		assert.ErrorIs(t, h.m.Send([]byte(`{}`)), ErrNotOpen)
	})

	t.Run("acknowledgement opens", func(t *testing.T) {
		h.m.Do(func() { h.m.AuthResult(true, "") })
		assert.Equal(t, StateOpen, h.state())

		h.clk.Advance(5 * time.Second)
		assert.Equal(t, 1, conn.Count("get", wire.LivenessPath))
	})

	t.Run("rejection reconnects", func(t *testing.T) {
		h.m.Do(func() { require.NoError(t, h.m.Connect("mixer.local", "wrong")) })
		second := h.dialer.WaitConn(t)
		h.waitState(t, StateAuthenticating)

		h.m.Do(func() { h.m.AuthResult(false, "invalid token") })
		assert.Equal(t, StateDisconnected, h.state())
		assert.True(t, second.Closed())
		assert.True(t, h.reconnectPending())
		assert.ErrorIs(t, h.disconnects[len(h.disconnects)-1], ErrAuthRejected)
	})
}

func TestManagerAuthRejectedWithoutAwait(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.open(t, "secret")

	h.m.Do(func() { h.m.AuthResult(false, "invalid token") })
	assert.Equal(t, StateOpen, h.state())
	assert.False(t, conn.Closed())
}

func TestManagerUpdateCredentials(t *testing.T) {
	h := newHarness(t, nil)
	first := h.open(t, "a")

	h.m.Do(func() { require.NoError(t, h.m.UpdateCredentials("mixer.local", "a")) })
	assert.Equal(t, 1, h.dialer.Dials())
	assert.False(t, first.Closed())

	h.m.Do(func() { require.NoError(t, h.m.UpdateCredentials("mixer.local", "b")) })
	second := h.dialer.WaitConn(t)
	h.waitState(t, StateOpen)

	assert.True(t, first.Closed())
	reqs := second.SentRequests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "b", reqs[0].Token)
	assert.Len(t, h.disconnects, 1)
	assert.Nil(t, h.disconnects[0])
}

func TestManagerClose(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.open(t, "")

	conn.Fail(errors.New("gone"))
	h.waitReconnectPending(t)

	h.m.Do(func() { require.NoError(t, h.m.Close()) })

	assert.Equal(t, StateDisconnected, h.state())
	assert.False(t, h.reconnectPending())
	assert.Equal(t, 0, h.clk.Pending())

	h.m.Do(func() {
		assert.ErrorIs(t, h.m.Connect("mixer.local", ""), ErrClosed)
		assert.ErrorIs(t, h.m.UpdateCredentials("other", ""), ErrClosed)
		assert.NoError(t, h.m.Close())
	})

	h.clk.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
}
