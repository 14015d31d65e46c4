package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dhd-bridge/dhd-go/pkg/action"
	"github.com/dhd-bridge/dhd-go/pkg/discovery"
	"github.com/dhd-bridge/dhd-go/pkg/subscription"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
)

// Defaults.
const (
	DefaultReconnectDelay = time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultDiscoveryWait  = 5 * time.Second

	// GridSize is the number of pad rows and columns of the surface.
	GridSize = 8
)

// Config is the bridge configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Client    ClientConfig    `yaml:"client"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Surface   SurfaceConfig   `yaml:"surface"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DeviceConfig addresses the mixing device.
type DeviceConfig struct {
	// Address is host, host:port or a ws:// URL. Empty means discover.
	Address string `yaml:"address"`

	// Token authenticates the connection. Empty skips authentication.
	Token string `yaml:"token"`
}

// ClientConfig tunes the control-channel client.
type ClientConfig struct {
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	MaxMissedHeartbeats int           `yaml:"max_missed_heartbeats"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	ReconnectBackoff    bool          `yaml:"reconnect_backoff"`
	ReplayRetryInterval time.Duration `yaml:"replay_retry_interval"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	AwaitAuthAck        bool          `yaml:"await_auth_ack"`
}

// LoggingConfig configures operational and protocol logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// ProtocolLog is a capture file path. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address of the /metrics server. Empty disables it.
	Listen string `yaml:"listen"`
}

// SurfaceConfig configures the MIDI pad surface.
type SurfaceConfig struct {
	MIDIIn   string    `yaml:"midi_in"`
	MIDIOut  string    `yaml:"midi_out"`
	Bindings []Binding `yaml:"bindings"`
}

// Enabled reports whether a MIDI input is configured.
func (s SurfaceConfig) Enabled() bool {
	return s.MIDIIn != ""
}

// Binding binds a pad to an action.
type Binding struct {
	Row     int    `yaml:"row"`
	Col     int    `yaml:"col"`
	Context string `yaml:"context"`

	action.Settings `yaml:",inline"`
}

// DiscoveryConfig configures device discovery.
type DiscoveryConfig struct {
	Service string        `yaml:"service"`
	Domain  string        `yaml:"domain"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			HeartbeatInterval:   transport.DefaultHeartbeatInterval,
			MaxMissedHeartbeats: transport.DefaultMaxMissedHeartbeats,
			ReconnectDelay:      DefaultReconnectDelay,
			ReplayRetryInterval: subscription.DefaultReplayRetryInterval,
			DialTimeout:         DefaultDialTimeout,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Discovery: DiscoveryConfig{
			Service: discovery.DefaultService,
			Domain:  discovery.DefaultDomain,
			Timeout: DefaultDiscoveryWait,
		},
	}
}

// Validate checks the configuration for values the bridge cannot use.
func (c *Config) Validate() error {
	if c.Client.HeartbeatInterval <= 0 {
		return fmt.Errorf("client.heartbeat_interval must be positive, got %v", c.Client.HeartbeatInterval)
	}
	if c.Client.MaxMissedHeartbeats < 0 {
		return fmt.Errorf("client.max_missed_heartbeats must not be negative")
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be positive, got %v", c.Client.ReconnectDelay)
	}
	if c.Client.ReplayRetryInterval <= 0 {
		return fmt.Errorf("client.replay_retry_interval must be positive, got %v", c.Client.ReplayRetryInterval)
	}
	if c.Client.DialTimeout <= 0 {
		return fmt.Errorf("client.dial_timeout must be positive, got %v", c.Client.DialTimeout)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive, got %v", c.Discovery.Timeout)
	}

	return c.Surface.validate()
}

func (s SurfaceConfig) validate() error {
	pads := make(map[[2]int]int)
	contexts := make(map[string]int)

	for i, b := range s.Bindings {
		if b.Row < 0 || b.Row >= GridSize || b.Col < 0 || b.Col >= GridSize {
			return fmt.Errorf("surface.bindings[%d]: pad (%d,%d) outside %dx%d grid", i, b.Row, b.Col, GridSize, GridSize)
		}
		if b.Context == "" {
			return fmt.Errorf("surface.bindings[%d]: context is required", i)
		}
		if err := b.Settings.Validate(); err != nil {
			return fmt.Errorf("surface.bindings[%d]: %w", i, err)
		}
		if j, dup := pads[[2]int{b.Row, b.Col}]; dup {
			return fmt.Errorf("surface.bindings[%d]: pad (%d,%d) already bound by bindings[%d]", i, b.Row, b.Col, j)
		}
		if j, dup := contexts[b.Context]; dup {
			return fmt.Errorf("surface.bindings[%d]: context %q already used by bindings[%d]", i, b.Context, j)
		}
		pads[[2]int{b.Row, b.Col}] = i
		contexts[b.Context] = i
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
