package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Retry defaults.
const (
	// DefaultReconnectDelay is the fixed delay between reconnect attempts.
	DefaultReconnectDelay = 1 * time.Second

	// InitialBackoff is the first delay of an exponential Backoff.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps an exponential Backoff.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the growth factor of an exponential Backoff.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// RetryPolicy decides how long to wait before the next reconnect attempt.
// Retries never give up; the policy only shapes the delay.
type RetryPolicy interface {
	// Next returns the delay before the next attempt and advances the policy.
	Next() time.Duration

	// Reset is called once a connection reaches the open state.
	Reset()
}

// FixedDelay waits the same duration before every attempt.
type FixedDelay time.Duration

// Next returns the fixed delay.
func (d FixedDelay) Next() time.Duration {
	if d <= 0 {
		return DefaultReconnectDelay
	}
	return time.Duration(d)
}

// Reset is a no-op.
func (FixedDelay) Reset() {}

// Backoff is an exponential RetryPolicy with jitter.
type Backoff struct {
	mu sync.Mutex

	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int

	rng *rand.Rand
}

// BackoffConfig customizes a Backoff. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the maximum extra delay as a fraction of the base.
	// Negative disables jitter.
	Jitter float64
}

// NewBackoff creates a backoff with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Jitter: JitterFactor})
}

// NewBackoffWithConfig creates a backoff with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the current delay plus jitter, then grows the base delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(b.current) * b.jitter * b.rng.Float64())
	}

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the next base delay without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
