package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.FrameSent("get")
	m.FrameReceived("UPDATE")
	m.DecodeError()
	m.Failure("set")
	m.Delivered(3)
	m.Reconnect()
	m.SetConnectionState(3)
	m.SetSubscriptions(1, 2)
}

func TestRecording(t *testing.T) {
	m := New()

	m.FrameSent("get")
	m.FrameSent("get")
	m.FrameSent("subscribe")
	m.FrameReceived("UPDATE")
	m.DecodeError()
	m.Failure("set")
	m.Delivered(4)
	m.Delivered(0)
	m.Reconnect()
	m.SetConnectionState(3)
	m.SetSubscriptions(2, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("subscribe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("UPDATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("set")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionState))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TrackedPaths))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Handles))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()

	require.NoError(t, m.Register(reg))
	// Registering twice is tolerated.
	require.NoError(t, m.Register(reg))

	m.Reconnect()
	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "dhd_connection_reconnects_total" {
			found = true
		}
	}
	assert.True(t, found, "reconnect counter should be gathered")

	t.Run("conflicting registration fails", func(t *testing.T) {
		other := prometheus.NewRegistry()
		clash := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dhd_router_deliveries_total",
			Help: "clash",
		})
		other.MustRegister(clash)
		assert.Error(t, New().Register(other))
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	m.FrameSent("auth")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `dhd_frames_sent_total{method="auth"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
