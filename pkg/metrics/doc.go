// Package metrics exposes Prometheus metrics for the control-channel client.
//
// All recording methods are safe on a nil *Metrics, so components record
// unconditionally and metrics stay optional:
//
//	var m *metrics.Metrics // disabled
//	m.FrameSent("get")     // no-op
//
// Metrics are created unregistered. Register attaches them to a
// prometheus.Registerer; NewRegistry builds a registry that also carries
// the Go runtime and process collectors, and Handler serves it.
package metrics
