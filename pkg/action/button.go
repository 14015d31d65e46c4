package action

import (
	"log/slog"
	"sync"

	"github.com/dhd-bridge/dhd-go/pkg/router"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Button toggles a boolean device node.
//
// The state starts out active until the device reports a value, so a
// press before the first value arrives switches the node off.
type Button struct {
	context  string
	client   Client
	renderer Renderer
	logger   *slog.Logger

	mu    sync.Mutex
	path  string
	kind  Kind
	state bool
}

var _ Instance = (*Button)(nil)

// NewButton creates a button for context.
func NewButton(context string, s Settings, client Client, renderer Renderer, logger *slog.Logger) *Button {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Button{
		context:  context,
		client:   client,
		renderer: renderer,
		logger:   logger,
		state:    true,
	}
	b.configure(s)
	return b
}

// ID returns the context.
func (b *Button) ID() string { return b.context }

// Context returns the widget context.
func (b *Button) Context() string { return b.context }

// Type returns TypeButton.
func (b *Button) Type() Type { return TypeButton }

// Path returns the addressed node.
func (b *Button) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Kind returns the button kind.
func (b *Button) Kind() Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind
}

// State returns the last known switch state.
func (b *Button) State() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Extract resolves the button's value from frame.
func (b *Button) Extract(frame wire.Frame) (any, bool) {
	return router.Extract(frame, b.Path())
}

// Deliver records the device state and redraws.
func (b *Button) Deliver(value any) {
	on, ok := toBool(value)
	if !ok {
		b.logger.Warn("button value is not a switch state",
			"context", b.context, "path", b.Path(), "value", value)
		return
	}

	b.mu.Lock()
	b.state = on
	kind := b.kind
	b.mu.Unlock()

	b.renderer.RenderButton(b.context, kind, on)
}

// Toggle asks the device to invert the current state. The local state
// changes only when the device reports back.
func (b *Button) Toggle() error {
	b.mu.Lock()
	p, next := b.path, !b.state
	b.mu.Unlock()

	if p == "" {
		return ErrNoPath
	}
	return b.client.RequestSet(p, next)
}

func (b *Button) configure(s Settings) {
	s = s.Normalized()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = s.Path
	b.kind = DetectKind(s.Path)
}

func (b *Button) handle(ev Event) error {
	switch ev.(type) {
	case KeyUp, DialPress:
		return b.Toggle()
	default:
		b.logger.Debug("button ignores event", "context", b.context, "event", ev)
		return nil
	}
}
