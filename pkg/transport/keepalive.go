package transport

import (
	"sync"
	"time"

	"github.com/dhd-bridge/dhd-go/pkg/clock"
)

// Heartbeat constants.
const (
	// DefaultHeartbeatInterval is the interval between liveness gets.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultMaxMissedHeartbeats disables missed-reply detection.
	DefaultMaxMissedHeartbeats = 0
)

// HeartbeatConfig configures the liveness heartbeat.
type HeartbeatConfig struct {
	// Interval between heartbeats.
	Interval time.Duration

	// MaxMissed is the number of unanswered heartbeats after which the
	// connection is considered dead. Zero disables detection.
	MaxMissed int
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:  DefaultHeartbeatInterval,
		MaxMissed: DefaultMaxMissedHeartbeats,
	}
}

// DetectionDelay is the longest time a dead connection goes unnoticed by the
// heartbeat alone. Zero when detection is disabled.
func (c HeartbeatConfig) DetectionDelay() time.Duration {
	if c.MaxMissed <= 0 {
		return 0
	}
	return c.Interval * time.Duration(c.MaxMissed+1)
}

// Heartbeat schedules periodic liveness probes on a clock.
//
// beat is invoked every Interval while running. If MaxMissed > 0 and that
// many beats go unacknowledged, onTimeout is invoked once and the heartbeat
// stops itself.
type Heartbeat struct {
	config HeartbeatConfig
	clock  clock.Clock

	beat      func()
	onTimeout func()

	mu          sync.Mutex
	running     bool
	epoch       uint64
	timer       clock.Timer
	outstanding int
	stats       HeartbeatStats
}

// HeartbeatStats contains heartbeat statistics.
type HeartbeatStats struct {
	Sent        uint64
	Acked       uint64
	LastSent    time.Time
	LastAck     time.Time
	Outstanding int
}

// NewHeartbeat creates a stopped heartbeat.
func NewHeartbeat(clk clock.Clock, config HeartbeatConfig, beat func(), onTimeout func()) *Heartbeat {
	if config.Interval <= 0 {
		config.Interval = DefaultHeartbeatInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Heartbeat{
		config:    config,
		clock:     clk,
		beat:      beat,
		onTimeout: onTimeout,
	}
}

// Start begins the schedule. The first beat fires one interval from now.
// Starting a running heartbeat has no effect.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	h.running = true
	h.epoch++
	h.outstanding = 0
	h.scheduleLocked()
}

// Stop cancels the schedule. Safe to call when stopped.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	h.epoch++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// IsRunning returns true while the schedule is active.
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Acknowledge records a heartbeat reply.
func (h *Heartbeat) Acknowledge() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outstanding = 0
	h.stats.Acked++
	h.stats.LastAck = h.clock.Now()
}

// Stats returns current heartbeat statistics.
func (h *Heartbeat) Stats() HeartbeatStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats
	s.Outstanding = h.outstanding
	return s
}

func (h *Heartbeat) scheduleLocked() {
	epoch := h.epoch
	h.timer = h.clock.AfterFunc(h.config.Interval, func() {
		h.tick(epoch)
	})
}

func (h *Heartbeat) tick(epoch uint64) {
	h.mu.Lock()
	if !h.running || epoch != h.epoch {
		h.mu.Unlock()
		return
	}

	if h.config.MaxMissed > 0 && h.outstanding >= h.config.MaxMissed {
		h.running = false
		h.epoch++
		h.timer = nil
		onTimeout := h.onTimeout
		h.mu.Unlock()

		if onTimeout != nil {
			onTimeout()
		}
		return
	}

	h.outstanding++
	h.stats.Sent++
	h.stats.LastSent = h.clock.Now()
	h.scheduleLocked()
	beat := h.beat
	h.mu.Unlock()

	if beat != nil {
		beat()
	}
}
