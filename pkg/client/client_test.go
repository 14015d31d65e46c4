package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhd-bridge/dhd-go/internal/fakes"
	"github.com/dhd-bridge/dhd-go/pkg/clock"
	"github.com/dhd-bridge/dhd-go/pkg/connection"
	"github.com/dhd-bridge/dhd-go/pkg/log"
	"github.com/dhd-bridge/dhd-go/pkg/metrics"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// recorder collects delivered values.
type recorder struct {
	mu     sync.Mutex
	values []any
}

func (r *recorder) add(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) got() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values...)
}

func (r *recorder) subscriber(p string) *Subscriber {
	return NewSubscriber(p, r.add)
}

type testEnv struct {
	c      *Client
	dialer *fakes.Dialer
	clk    *clock.Fake
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		dialer: fakes.NewDialer(),
		clk:    clock.NewFake(time.Unix(1000, 0)),
	}
	cfg := Config{
		Dialer:    env.dialer,
		Clock:     env.clk,
		Heartbeat: transport.DefaultHeartbeatConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.c = New(cfg)
	t.Cleanup(func() { _ = env.c.Close() })
	return env
}

func (env *testEnv) waitState(t *testing.T, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return env.c.State() == want },
		fakes.WaitTimeout, time.Millisecond, "state never reached %s", want)
}

// open connects and waits until the first socket is open.
func (env *testEnv) open(t *testing.T) *fakes.Conn {
	t.Helper()
	require.NoError(t, env.c.Connect("mixer.local", "secret"))
	conn := env.dialer.WaitConn(t)
	env.waitState(t, connection.StateOpen)
	return conn
}

func TestClientConnect(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	reqs := conn.SentRequests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "auth", reqs[0].Method)
	assert.Equal(t, "secret", reqs[0].Token)
	assert.Equal(t, []string{"ws://mixer.local/api/ws"}, env.dialer.URLs())

	s := env.c.Status()
	assert.Equal(t, connection.StateOpen, s.State)
	assert.Equal(t, "mixer.local", s.Address)
	assert.NotEmpty(t, s.ConnectionID)
}

func TestClientPathNormalization(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var rec recorder
	require.NoError(t, env.c.Register("/mixer/faders/0/", rec.subscriber("mixer/faders/0")))
	require.NoError(t, env.c.Register("mixer//faders/0", rec.subscriber("/mixer/faders/0")))

	assert.Equal(t, []string{"mixer/faders/0"}, env.c.Paths())
	assert.Equal(t, 1, conn.Count("subscribe", "mixer/faders/0"))
	assert.Equal(t, 2, conn.Count("get", "mixer/faders/0"))
}

func TestClientReferenceCounting(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var a, b recorder
	ha := a.subscriber("audio/levels/3")
	hb := b.subscriber("audio/levels/3")

	require.NoError(t, env.c.Register("audio/levels/3", ha))
	require.NoError(t, env.c.Register("audio/levels/3", hb))

	assert.Equal(t, 1, conn.Count("subscribe", "audio/levels/3"))
	assert.Equal(t, 2, conn.Count("get", "audio/levels/3"))
	assert.Len(t, env.c.Handles("audio/levels/3"), 2)

	assert.True(t, env.c.Unregister("audio/levels/3", ha))
	assert.Equal(t, []string{"audio/levels/3"}, env.c.Paths())

	conn.DeliverJSON(map[string]any{"method": "get", "path": "audio/levels/3", "payload": -12.5})
	assert.Empty(t, a.got())
	assert.Equal(t, []any{-12.5}, b.got())

	assert.True(t, env.c.Unregister("audio/levels/3", hb))
	assert.Empty(t, env.c.Paths())
	assert.False(t, env.c.Unregister("audio/levels/3", hb), "second unregister")
	assert.Zero(t, env.c.Status().Handles)
}

func TestClientTeardown(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var rec recorder
	h := rec.subscriber("control/logics/1")
	require.NoError(t, env.c.Register("control/logics/1", h))
	require.NoError(t, env.c.Register("control/logics/2", h))

	env.c.UnregisterAll(h)
	assert.Empty(t, env.c.Paths())

	conn.DeliverJSON(map[string]any{
		"method":  "update",
		"payload": map[string]any{"control": map[string]any{"logics": map[string]any{"1": true}}},
	})
	assert.Empty(t, rec.got())

	for _, r := range conn.SentRequests() {
		assert.Contains(t, []string{"auth", "subscribe", "get"}, r.Method, "no unsubscribe is ever sent")
	}
}

func TestClientExactMatchRouting(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var parent, exact, child recorder
	require.NoError(t, env.c.Register("a", parent.subscriber("a")))
	require.NoError(t, env.c.Register("a/b", exact.subscriber("a/b")))
	require.NoError(t, env.c.Register("a/b/c", child.subscriber("a/b/c")))

	conn.DeliverJSON(map[string]any{"method": "get", "path": "/a/b/", "payload": 5})

	assert.Empty(t, parent.got())
	assert.Equal(t, []any{float64(5)}, exact.got())
	assert.Empty(t, child.got())

	t.Run("set response", func(t *testing.T) {
		conn.DeliverJSON(map[string]any{"method": "set", "path": "a/b", "payload": 6})
		assert.Equal(t, []any{float64(5), float64(6)}, exact.got())
	})

	t.Run("response without payload", func(t *testing.T) {
		conn.DeliverJSON(map[string]any{"method": "set", "path": "a/b"})
		assert.Len(t, exact.got(), 2)
	})
}

func TestClientPushFanOut(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var fader, mute, root, missing recorder
	require.NoError(t, env.c.Register("mixer/faders/0/level", fader.subscriber("mixer/faders/0/level")))
	require.NoError(t, env.c.Register("mixer/faders/0/mute", mute.subscriber("mixer/faders/0/mute")))
	require.NoError(t, env.c.Register("mixer", root.subscriber("mixer")))
	require.NoError(t, env.c.Register("mixer/faders/7", missing.subscriber("mixer/faders/7")))

	tree := map[string]any{
		"mixer": map[string]any{
			"faders": map[string]any{
				"0": map[string]any{"level": -6, "mute": false},
			},
		},
	}
	conn.DeliverJSON(map[string]any{"method": "update", "path": "mixer/faders/0", "payload": tree})

	assert.Equal(t, []any{float64(-6)}, fader.got())
	assert.Equal(t, []any{false}, mute.got())
	require.Len(t, root.got(), 1)
	assert.IsType(t, map[string]any{}, root.got()[0])
	assert.Empty(t, missing.got())
}

func TestClientReconnectReplay(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.open(t)

	var rec recorder
	require.NoError(t, env.c.Register("mixer/faders/0", rec.subscriber("mixer/faders/0")))
	require.NoError(t, env.c.Register("mixer/faders/1", rec.subscriber("mixer/faders/1")))

	first.Fail(errors.New("peer reset"))
	env.waitState(t, connection.StateDisconnected)
	require.Eventually(t, func() bool { return env.c.Status().ReconnectPending },
		fakes.WaitTimeout, time.Millisecond)

	env.clk.Advance(time.Second)
	second := env.dialer.WaitConn(t)
	env.waitState(t, connection.StateOpen)

	assert.Equal(t, 1, second.Count("auth", ""))
	assert.Equal(t, 2, second.Count("subscribe", ""))
	for _, p := range []string{"mixer/faders/0", "mixer/faders/1"} {
		assert.Equal(t, 1, second.Count("subscribe", p), p)
		assert.Equal(t, 1, second.Count("get", p), p)
	}

	// Stale socket frames are ignored.
	assert.False(t, first.DeliverJSON(map[string]any{"method": "get", "path": "mixer/faders/0", "payload": 1}))

	second.DeliverJSON(map[string]any{"method": "get", "path": "mixer/faders/0", "payload": 2})
	assert.Equal(t, []any{float64(2)}, rec.got())
}

func TestClientRegisterBeforeConnect(t *testing.T) {
	env := newTestEnv(t, nil)

	var rec recorder
	require.NoError(t, env.c.Register("mixer/faders/0", rec.subscriber("mixer/faders/0")))
	assert.Equal(t, uint64(2), env.c.Status().Registry.Dropped)

	conn := env.open(t)
	assert.Equal(t, 1, conn.Count("subscribe", "mixer/faders/0"))
	assert.Equal(t, 1, conn.Count("get", "mixer/faders/0"))
}

func TestClientHeartbeatExclusion(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var exact, greedy recorder
	require.NoError(t, env.c.Register(wire.LivenessPath, exact.subscriber(wire.LivenessPath)))
	anything := greedy.subscriber("general").WithExtract(func(frame wire.Frame) (any, bool) {
		return frame.Kind().String(), true
	})
	require.NoError(t, env.c.Register("general", anything))

	env.clk.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return conn.Count("get", wire.LivenessPath) >= 2 },
		fakes.WaitTimeout, time.Millisecond)

	conn.DeliverJSON(map[string]any{"method": "get", "path": wire.LivenessPath, "payload": 123456})

	assert.Empty(t, exact.got())
	assert.Empty(t, greedy.got())

	s := env.c.Status()
	assert.Equal(t, uint64(1), s.Router.Heartbeats)
	assert.Equal(t, uint64(1), s.Heartbeat.Acked)
	assert.Zero(t, s.Heartbeat.Outstanding)
}

func TestClientRejectedHeartbeat(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Heartbeat = transport.HeartbeatConfig{Interval: 5 * time.Second, MaxMissed: 2}
	})
	conn := env.open(t)

	env.clk.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return conn.Count("get", wire.LivenessPath) >= 1 },
		fakes.WaitTimeout, time.Millisecond)

	conn.DeliverJSON(map[string]any{"method": "get", "path": wire.LivenessPath, "success": false, "error": "busy"})

	s := env.c.Status()
	assert.Equal(t, uint64(1), s.Router.Heartbeats)
	assert.Zero(t, s.Heartbeat.Acked)
	assert.Equal(t, 1, s.Heartbeat.Outstanding)

	// Rejections never count as replies, so the socket is eventually dropped.
	env.clk.Advance(5 * time.Second)
	env.clk.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return env.c.Status().ReconnectPending },
		fakes.WaitTimeout, time.Millisecond)
	assert.True(t, conn.Closed())
}

func TestClientErrorSuppression(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var rec recorder
	require.NoError(t, env.c.Register("mixer/faders/0", rec.subscriber("mixer/faders/0")))

	conn.DeliverJSON(map[string]any{
		"method": "get", "path": "mixer/faders/0", "success": false, "error": "no such node",
	})
	conn.DeliverJSON(map[string]any{
		"method": "set", "path": "mixer/faders/0", "success": false, "error": "read only",
		"payload": 3,
	})

	assert.Empty(t, rec.got())
	assert.Equal(t, uint64(2), env.c.Status().Router.Failures)
	assert.Equal(t, connection.StateOpen, env.c.State())
}

func TestClientUndecodableFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var rec recorder
	require.NoError(t, env.c.Register("a", rec.subscriber("a")))

	conn.Deliver([]byte("not json"))
	conn.Deliver([]byte(`[1,2,3]`))
	conn.DeliverJSON(map[string]any{"method": "get", "path": "a", "payload": 1})

	assert.Equal(t, []any{float64(1)}, rec.got())
	assert.Equal(t, uint64(2), env.c.Status().DecodeErrors)
	assert.Equal(t, connection.StateOpen, env.c.State())
}

func TestClientRequestSet(t *testing.T) {
	t.Run("while disconnected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		err := env.c.RequestSet("control/logics/1", true)
		assert.ErrorIs(t, err, ErrNotOpen)
	})

	t.Run("while open", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := env.open(t)

		require.NoError(t, env.c.RequestSet("/control/logics/1", true))
		require.NoError(t, env.c.RequestGet("control/logics/1"))

		reqs := conn.SentRequests()
		last := reqs[len(reqs)-2]
		assert.Equal(t, "set", last.Method)
		assert.Equal(t, "control/logics/1", last.Path)
		assert.JSONEq(t, "true", string(last.Payload))
		assert.Equal(t, 1, conn.Count("get", "control/logics/1"))
	})

	t.Run("empty path", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.open(t)
		assert.ErrorIs(t, env.c.RequestSet("/", 1), wire.ErrEmptyPath)
	})

	t.Run("after close", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.open(t)
		require.NoError(t, env.c.Close())
		assert.ErrorIs(t, env.c.RequestSet("a", 1), ErrClosed)
		assert.ErrorIs(t, env.c.Connect("mixer.local", ""), ErrClosed)
	})
}

func TestClientDeliverMayCallBack(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	errs := make(chan error, 1)
	h := NewSubscriber("control/logics/1", func(v any) {
		on, _ := v.(bool)
		errs <- env.c.RequestSet("control/logics/1", !on)
	})
	require.NoError(t, env.c.Register("control/logics/1", h))

	done := make(chan struct{})
	go func() {
		conn.DeliverJSON(map[string]any{"method": "get", "path": "control/logics/1", "payload": true})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(fakes.WaitTimeout):
		t.Fatal("delivery deadlocked")
	}
	require.NoError(t, <-errs)
	assert.Equal(t, 1, conn.Count("set", "control/logics/1"))
}

func TestClientNoDeliveryAfterUnregister(t *testing.T) {
	update := map[string]any{
		"method":  "update",
		"payload": map[string]any{"a": map[string]any{"b": 1, "c": 2}},
	}

	t.Run("UnregisteredByEarlierDelivery", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := env.open(t)

		var rec recorder
		b := rec.subscriber("a/c")
		a := NewSubscriber("a/b", func(any) {
			assert.True(t, env.c.Unregister("a/c", b))
		})
		require.NoError(t, env.c.Register("a/b", a))
		require.NoError(t, env.c.Register("a/c", b))

		conn.DeliverJSON(update)
		assert.Equal(t, []string{"a/b"}, env.c.Paths())
		assert.Empty(t, rec.got())
	})

	t.Run("ReplacedUnderSameID", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := env.open(t)

		var stale, fresh recorder
		old := stale.subscriber("a/c")
		replacement := &idHandle{Subscriber: fresh.subscriber("a/c"), id: old.ID()}
		a := NewSubscriber("a/b", func(any) {
			env.c.UnregisterAll(old)
			assert.NoError(t, env.c.Register("a/c", replacement))
		})
		require.NoError(t, env.c.Register("a/b", a))
		require.NoError(t, env.c.Register("a/c", old))

		conn.DeliverJSON(update)
		assert.Empty(t, stale.got())

		conn.DeliverJSON(update)
		assert.Equal(t, []any{2.0}, fresh.got())
		assert.Empty(t, stale.got())
	})

	t.Run("StillRegisteredElsewhere", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := env.open(t)

		var rec recorder
		b := rec.subscriber("a/c")
		a := NewSubscriber("a/b", func(any) {
			env.c.Unregister("a/x", b)
		})
		require.NoError(t, env.c.Register("a/b", a))
		require.NoError(t, env.c.Register("a/c", b))
		require.NoError(t, env.c.Register("a/x", b))

		conn.DeliverJSON(update)
		assert.Equal(t, []any{2.0}, rec.got())
	})
}

// idHandle reuses another handle's ID, as a reconfigured widget does.
type idHandle struct {
	*Subscriber
	id string
}

func (h *idHandle) ID() string { return h.id }

type bogusEvent struct{}

func (bogusEvent) isEvent() {}

func TestClientHandleEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.open(t)

	var rec recorder
	h := rec.subscriber("control/logics/4")

	require.NoError(t, env.c.Handle(RegisterEvent{Path: "control/logics/4", Handle: h}))
	require.NoError(t, env.c.Handle(GetEvent{Path: "control/logics/4"}))
	require.NoError(t, env.c.Handle(SetEvent{Path: "control/logics/4", Value: false}))
	require.NoError(t, env.c.Handle(UnregisterEvent{Path: "control/logics/4", Handle: h}))

	assert.Equal(t, 1, conn.Count("subscribe", "control/logics/4"))
	assert.Equal(t, 2, conn.Count("get", "control/logics/4"))
	assert.Equal(t, 1, conn.Count("set", "control/logics/4"))
	assert.Empty(t, env.c.Paths())

	assert.ErrorIs(t, env.c.Handle(bogusEvent{}), ErrUnknownEvent)
	assert.ErrorIs(t, env.c.Handle(RegisterEvent{Path: "x"}), ErrNilHandle)

	t.Run("credentials", func(t *testing.T) {
		require.NoError(t, env.c.Handle(CredentialsEvent{Address: "desk.local:8080", Token: "other"}))
		next := env.dialer.WaitConn(t)
		env.waitState(t, connection.StateOpen)
		assert.Equal(t, "other", next.SentRequests()[0].Token)
		assert.True(t, conn.Closed())
		assert.Equal(t, "ws://desk.local:8080/api/ws", env.dialer.URLs()[1])
	})
}

func TestClientCaptureAndMetrics(t *testing.T) {
	var mu sync.Mutex
	var events []log.Event
	m := metrics.New()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics = m
		cfg.ProtocolLogger = log.Func(func(e log.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		})
	})
	conn := env.open(t)

	var rec recorder
	require.NoError(t, env.c.Register("a", rec.subscriber("a")))
	conn.DeliverJSON(map[string]any{"method": "get", "path": "a", "payload": 1})
	conn.DeliverJSON(map[string]any{"method": "get", "path": "a", "success": false})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesSent.WithLabelValues("auth")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesSent.WithLabelValues("subscribe")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesReceived.WithLabelValues("GET_RESPONSE")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failures.WithLabelValues("get")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Deliveries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TrackedPaths))
	assert.Equal(t, float64(connection.StateOpen), testutil.ToFloat64(m.ConnectionState))

	mu.Lock()
	defer mu.Unlock()

	var states []string
	var inbound []*log.MessageEvent
	for _, e := range events {
		if e.StateChange != nil && e.StateChange.Entity == log.StateEntityConnection {
			states = append(states, e.StateChange.NewState)
		}
		if e.Message != nil && e.Direction == log.DirectionIn {
			inbound = append(inbound, e.Message)
		}
	}
	assert.Equal(t, []string{"CONNECTING", "AUTHENTICATING", "OPEN"}, states)
	require.Len(t, inbound, 2)
	assert.Equal(t, 1, inbound[0].Deliveries)
	require.NotNil(t, inbound[1].Success)
	assert.False(t, *inbound[1].Success)
}
