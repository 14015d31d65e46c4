package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhd-bridge/dhd-go/pkg/action"
)

const fullConfig = `
device:
  address: 192.168.1.20:80
  token: abc123
client:
  heartbeat_interval: 2s
  max_missed_heartbeats: 3
  reconnect_delay: 500ms
  reconnect_backoff: true
  await_auth_ack: true
logging:
  level: debug
  format: json
  protocol_log: /tmp/bridge.dlog
metrics:
  listen: ":9100"
surface:
  midi_in: Launchpad Mini
  midi_out: Launchpad Mini
  bindings:
    - row: 0
      col: 0
      context: logic-1
      path: /control/logics/1
    - row: 0
      col: 1
      context: pot-0
      path: audio/pots/0/value
      type: dial
      min: -60
      max: 10
      step: 0.5
discovery:
  timeout: 2s
`

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Client.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, time.Second, cfg.Client.ReplayRetryInterval)
	assert.Zero(t, cfg.Client.MaxMissedHeartbeats)
	assert.False(t, cfg.Client.AwaitAuthAck)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Surface.Enabled())
}

func TestParse(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		cfg, err := Parse([]byte(fullConfig))
		require.NoError(t, err)

		assert.Equal(t, "192.168.1.20:80", cfg.Device.Address)
		assert.Equal(t, "abc123", cfg.Device.Token)
		assert.Equal(t, 2*time.Second, cfg.Client.HeartbeatInterval)
		assert.Equal(t, 3, cfg.Client.MaxMissedHeartbeats)
		assert.Equal(t, 500*time.Millisecond, cfg.Client.ReconnectDelay)
		assert.True(t, cfg.Client.ReconnectBackoff)
		assert.True(t, cfg.Client.AwaitAuthAck)
		assert.Equal(t, time.Second, cfg.Client.ReplayRetryInterval, "default kept")
		assert.Equal(t, ":9100", cfg.Metrics.Listen)
		assert.Equal(t, 2*time.Second, cfg.Discovery.Timeout)
		assert.NotEmpty(t, cfg.Discovery.Service, "default kept")

		level, err := cfg.Logging.SlogLevel()
		require.NoError(t, err)
		assert.Equal(t, slog.LevelDebug, level)

		require.True(t, cfg.Surface.Enabled())
		require.Len(t, cfg.Surface.Bindings, 2)
		assert.Equal(t, "logic-1", cfg.Surface.Bindings[0].Context)
		assert.Equal(t, "/control/logics/1", cfg.Surface.Bindings[0].Path)
		assert.Equal(t, action.TypeDial, cfg.Surface.Bindings[1].Type)
		assert.Equal(t, 0.5, cfg.Surface.Bindings[1].Step)
		assert.Equal(t, float64(-60), cfg.Surface.Bindings[1].Min)
	})

	t.Run("empty", func(t *testing.T) {
		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := Parse([]byte("device:\n  address: [\n"))
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "failed to parse YAML", le.Message)
		assert.Greater(t, le.Line, 0)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Parse([]byte("client:\n  heartbeat_interval: soon\n"))
		var le *LoadError
		require.ErrorAs(t, err, &le)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero heartbeat", func(c *Config) { c.Client.HeartbeatInterval = 0 }},
		{"negative missed", func(c *Config) { c.Client.MaxMissedHeartbeats = -1 }},
		{"zero reconnect", func(c *Config) { c.Client.ReconnectDelay = 0 }},
		{"zero replay retry", func(c *Config) { c.Client.ReplayRetryInterval = 0 }},
		{"zero dial timeout", func(c *Config) { c.Client.DialTimeout = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero discovery timeout", func(c *Config) { c.Discovery.Timeout = 0 }},
		{"pad outside grid", func(c *Config) {
			c.Surface.Bindings = []Binding{{Row: 8, Col: 0, Context: "a", Settings: action.Settings{Path: "a"}}}
		}},
		{"missing context", func(c *Config) {
			c.Surface.Bindings = []Binding{{Settings: action.Settings{Path: "a"}}}
		}},
		{"missing path", func(c *Config) {
			c.Surface.Bindings = []Binding{{Context: "a"}}
		}},
		{"duplicate pad", func(c *Config) {
			c.Surface.Bindings = []Binding{
				{Context: "a", Settings: action.Settings{Path: "a"}},
				{Context: "b", Settings: action.Settings{Path: "b"}},
			}
		}},
		{"duplicate context", func(c *Config) {
			c.Surface.Bindings = []Binding{
				{Context: "a", Settings: action.Settings{Path: "a"}},
				{Col: 1, Context: "a", Settings: action.Settings{Path: "b"}},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		name := filepath.Join(dir, "bridge.yaml")
		require.NoError(t, os.WriteFile(name, []byte(fullConfig), 0o600))

		cfg, err := Load(name)
		require.NoError(t, err)
		assert.Equal(t, "abc123", cfg.Device.Token)
	})

	t.Run("missing file", func(t *testing.T) {
		name := filepath.Join(dir, "missing.yaml")
		_, err := Load(name)

		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, name, le.File)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("invalid values carry file name", func(t *testing.T) {
		name := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(name, []byte("logging:\n  format: xml\n"), 0o600))

		_, err := Load(name)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, name, le.File)
		assert.Contains(t, err.Error(), "logging.format")
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
