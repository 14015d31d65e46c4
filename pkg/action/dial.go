package action

import (
	"log/slog"
	"sync"

	"github.com/dhd-bridge/dhd-go/pkg/router"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Dial drives a numeric device node such as a pot level.
type Dial struct {
	context  string
	client   Client
	renderer Renderer
	logger   *slog.Logger

	mu       sync.Mutex
	path     string
	value    float64
	min, max float64
	step     float64
	def      float64
}

var _ Instance = (*Dial)(nil)

// NewDial creates a dial for context.
func NewDial(context string, s Settings, client Client, renderer Renderer, logger *slog.Logger) *Dial {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dial{
		context:  context,
		client:   client,
		renderer: renderer,
		logger:   logger,
	}
	d.configure(s)
	d.value = d.def
	return d
}

// ID returns the context.
func (d *Dial) ID() string { return d.context }

// Context returns the widget context.
func (d *Dial) Context() string { return d.context }

// Type returns TypeDial.
func (d *Dial) Type() Type { return TypeDial }

// Path returns the addressed node.
func (d *Dial) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Value returns the current value.
func (d *Dial) Value() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Extract resolves the dial's value from frame.
func (d *Dial) Extract(frame wire.Frame) (any, bool) {
	return router.Extract(frame, d.Path())
}

// Deliver records the device value and redraws. Device values are not
// clamped.
func (d *Dial) Deliver(value any) {
	v, ok := toFloat(value)
	if !ok {
		d.logger.Warn("dial value is not a number",
			"context", d.context, "path", d.Path(), "value", value)
		return
	}

	d.mu.Lock()
	d.value = v
	d.mu.Unlock()

	d.renderer.RenderDial(d.context, v)
}

// Rotate moves the value by ticks steps within [min, max] and writes it.
// The new value is shown immediately so quick turns accumulate.
func (d *Dial) Rotate(ticks int) error {
	d.mu.Lock()
	v := clamp(d.value+float64(ticks)*d.step, d.min, d.max)
	return d.setLocked(v)
}

// Reset writes the default value.
func (d *Dial) Reset() error {
	d.mu.Lock()
	return d.setLocked(d.def)
}

// setLocked stores v and releases the lock before talking to the client.
func (d *Dial) setLocked(v float64) error {
	p := d.path
	d.value = v
	d.mu.Unlock()

	if p == "" {
		return ErrNoPath
	}
	d.renderer.RenderDial(d.context, v)
	return d.client.RequestSet(p, v)
}

func (d *Dial) configure(s Settings) {
	s.Type = TypeDial
	s = s.Normalized()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = s.Path
	d.min, d.max = s.Min, s.Max
	d.step = s.Step
	d.def = s.Default
	d.value = clamp(d.value, d.min, d.max)
}

func (d *Dial) handle(ev Event) error {
	switch e := ev.(type) {
	case DialRotate:
		return d.Rotate(e.Ticks)
	case DialPress, KeyUp:
		return d.Reset()
	default:
		d.logger.Debug("dial ignores event", "context", d.context, "event", ev)
		return nil
	}
}
