package main

import (
	"io"
	"log/slog"

	"github.com/dhd-bridge/dhd-go/pkg/client"
	"github.com/dhd-bridge/dhd-go/pkg/config"
	"github.com/dhd-bridge/dhd-go/pkg/connection"
	"github.com/dhd-bridge/dhd-go/pkg/log"
	"github.com/dhd-bridge/dhd-go/pkg/metrics"
	"github.com/dhd-bridge/dhd-go/pkg/surface"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
)

// Options holds the command-line flags.
type Options struct {
	ConfigFile    string
	Address       string
	Token         string
	LogLevel      string
	Interactive   bool
	MetricsListen string
	ProtocolLog   string
	Discover      bool

	// explicit records the flags given on the command line.
	explicit map[string]bool
}

func (o *Options) set(name string) {
	if o.explicit == nil {
		o.explicit = make(map[string]bool)
	}
	o.explicit[name] = true
}

func (o *Options) isSet(name string) bool {
	return o.explicit[name]
}

// loadConfig reads the configuration file, if any, and applies the flags
// given on the command line on top of it.
func loadConfig(o Options) (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigFile != "" {
		loaded, err := config.Load(o.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.isSet("address") {
		cfg.Device.Address = o.Address
	}
	if o.isSet("token") {
		cfg.Device.Token = o.Token
	}
	if o.isSet("log-level") {
		cfg.Logging.Level = o.LogLevel
	}
	if o.isSet("metrics-listen") {
		cfg.Metrics.Listen = o.MetricsListen
	}
	if o.isSet("protocol-log") {
		cfg.Logging.ProtocolLog = o.ProtocolLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clientConfig translates the configuration into client settings.
func clientConfig(cfg *config.Config, logger *slog.Logger, capture log.Logger, m *metrics.Metrics) client.Config {
	var retry connection.RetryPolicy = connection.FixedDelay(cfg.Client.ReconnectDelay)
	if cfg.Client.ReconnectBackoff {
		retry = connection.NewBackoffWithConfig(connection.BackoffConfig{
			Initial: cfg.Client.ReconnectDelay,
			Jitter:  connection.JitterFactor,
		})
	}

	return client.Config{
		Retry: retry,
		Heartbeat: transport.HeartbeatConfig{
			Interval:  cfg.Client.HeartbeatInterval,
			MaxMissed: cfg.Client.MaxMissedHeartbeats,
		},
		ReplayRetryInterval: cfg.Client.ReplayRetryInterval,
		DialTimeout:         cfg.Client.DialTimeout,
		AwaitAuthAck:        cfg.Client.AwaitAuthAck,
		Logger:              logger,
		ProtocolLogger:      capture,
		Metrics:             m,
	}
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func surfaceBindings(sc config.SurfaceConfig) []surface.Binding {
	out := make([]surface.Binding, 0, len(sc.Bindings))
	for _, b := range sc.Bindings {
		out = append(out, surface.Binding{Row: b.Row, Col: b.Col, Context: b.Context})
	}
	return out
}
