package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "dhd"

// Metrics contains the client metrics.
type Metrics struct {
	FramesSent      *prometheus.CounterVec
	FramesReceived  *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	Failures        *prometheus.CounterVec
	Deliveries      prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
	TrackedPaths    prometheus.Gauge
	Handles         prometheus.Gauge
}

// New creates unregistered metrics.
func New() *Metrics {
	return &Metrics{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "frames",
				Name:      "sent_total",
				Help:      "Frames written to the device by method",
			},
			[]string{"method"},
		),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Frames received from the device by decoded kind",
			},
			[]string{"kind"},
		),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frames",
			Name:      "decode_errors_total",
			Help:      "Inbound frames discarded because they could not be decoded",
		}),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "requests",
				Name:      "failures_total",
				Help:      "Replies with success=false by method",
			},
			[]string{"method"},
		),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Values delivered to subscribers",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after a connection loss",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=authenticating, 3=open)",
		}),
		TrackedPaths: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "subscriptions",
			Name:      "paths",
			Help:      "Distinct device paths with at least one subscriber",
		}),
		Handles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "subscriptions",
			Name:      "handles",
			Help:      "Registered subscriber handles",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FramesSent, m.FramesReceived, m.DecodeErrors, m.Failures,
		m.Deliveries, m.Reconnects, m.ConnectionState, m.TrackedPaths, m.Handles,
	}
}

// Register registers every metric with reg. Collectors that are already
// registered are skipped.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("register metric: %w", err)
		}
	}
	return nil
}

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// FrameSent counts an outbound frame.
func (m *Metrics) FrameSent(method string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(method).Inc()
}

// FrameReceived counts an inbound frame by kind.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(kind).Inc()
}

// DecodeError counts a discarded inbound frame.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// Failure counts a success=false reply.
func (m *Metrics) Failure(method string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(method).Inc()
}

// Delivered counts n deliveries.
func (m *Metrics) Delivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Deliveries.Add(float64(n))
}

// Reconnect counts a scheduled reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// SetConnectionState records the numeric connection state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

// SetSubscriptions records the tracked path and handle counts.
func (m *Metrics) SetSubscriptions(paths, handles int) {
	if m == nil {
		return
	}
	m.TrackedPaths.Set(float64(paths))
	m.Handles.Set(float64(handles))
}
