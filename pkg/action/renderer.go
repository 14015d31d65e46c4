package action

import "log/slog"

// Renderer redraws widgets. Calls happen on the goroutine delivering device
// values and must not block for long.
type Renderer interface {
	RenderButton(context string, kind Kind, active bool)
	RenderDial(context string, value float64)
}

// NopRenderer draws nothing.
type NopRenderer struct{}

func (NopRenderer) RenderButton(string, Kind, bool) {}
func (NopRenderer) RenderDial(string, float64)      {}

// LogRenderer logs every redraw. Used by headless bridges and the console.
type LogRenderer struct {
	Logger *slog.Logger
}

func (r LogRenderer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// RenderButton logs the button state.
func (r LogRenderer) RenderButton(context string, kind Kind, active bool) {
	r.logger().Info("button", "context", context, "kind", kind, "active", active)
}

// RenderDial logs the dial value.
func (r LogRenderer) RenderDial(context string, value float64) {
	r.logger().Info("dial", "context", context, "value", value)
}

var (
	_ Renderer = NopRenderer{}
	_ Renderer = LogRenderer{}
)
