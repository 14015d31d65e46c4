package action

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dhd-bridge/dhd-go/pkg/router"
)

// Instance is one action bound to a widget context.
type Instance interface {
	router.Handle

	Context() string
	Type() Type
	Path() string

	configure(s Settings)
	handle(ev Event) error
}

// Instances holds one action per context and routes host events to them.
type Instances struct {
	client   Client
	renderer Renderer
	logger   *slog.Logger

	mu        sync.Mutex
	byContext map[string]Instance
}

// NewInstances creates an empty instance registry.
func NewInstances(client Client, renderer Renderer, logger *slog.Logger) *Instances {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Instances{
		client:    client,
		renderer:  renderer,
		logger:    logger,
		byContext: make(map[string]Instance),
	}
}

// Dispatch handles one host event. Events for unknown contexts are logged
// and ignored.
func (r *Instances) Dispatch(ev Event) error {
	switch e := ev.(type) {
	case WillAppear:
		return r.appear(e.Context, e.Settings)
	case WillDisappear:
		return r.disappear(e.Context)
	case SettingsChanged:
		return r.reconfigure(e.Context, e.Settings)
	case KeyUp, DialRotate, DialPress:
		inst, ok := r.Get(ev.EventContext())
		if !ok {
			r.logger.Warn("no instance for context", "context", ev.EventContext(), "event", fmt.Sprintf("%T", ev))
			return nil
		}
		return inst.handle(ev)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Get returns the instance for context.
func (r *Instances) Get(context string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byContext[context]
	return inst, ok
}

// Contexts returns the known contexts in sorted order.
func (r *Instances) Contexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.byContext))
	for ctx := range r.byContext {
		out = append(out, ctx)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of instances.
func (r *Instances) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byContext)
}

// Close unregisters and forgets every instance.
func (r *Instances) Close() {
	for _, ctx := range r.Contexts() {
		_ = r.disappear(ctx)
	}
}

func (r *Instances) appear(context string, s Settings) error {
	s = s.Normalized()

	r.mu.Lock()
	if _, exists := r.byContext[context]; exists {
		r.mu.Unlock()
		r.logger.Debug("instance already exists", "context", context)
		return nil
	}
	inst, err := r.build(context, s)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.byContext[context] = inst
	r.mu.Unlock()

	if s.Path == "" {
		r.logger.Info("instance has no path yet", "context", context)
		return nil
	}
	return r.client.Register(s.Path, inst)
}

func (r *Instances) disappear(context string) error {
	r.mu.Lock()
	inst, ok := r.byContext[context]
	delete(r.byContext, context)
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("no instance for context", "context", context, "event", "WillDisappear")
		return nil
	}
	if p := inst.Path(); p != "" {
		r.client.Unregister(p, inst)
	}
	return nil
}

func (r *Instances) reconfigure(context string, s Settings) error {
	if err := s.Validate(); err != nil {
		r.logger.Error("settings rejected", "context", context, "error", err)
		return err
	}
	s = s.Normalized()

	r.mu.Lock()
	inst, ok := r.byContext[context]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("no instance for context", "context", context, "event", "SettingsChanged")
		return nil
	}

	old := inst
	if inst.Type() != s.Type {
		replacement, err := r.build(context, s)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		inst = replacement
		r.byContext[context] = inst
	}
	r.mu.Unlock()

	oldPath := old.Path()
	if oldPath != "" {
		r.client.Unregister(oldPath, old)
	}
	if inst == old {
		inst.configure(s)
	}
	r.logger.Info("action path changed", "context", context, "from", oldPath, "to", s.Path)
	return r.client.Register(s.Path, inst)
}

func (r *Instances) build(context string, s Settings) (Instance, error) {
	switch s.Type {
	case TypeButton:
		return NewButton(context, s, r.client, r.renderer, r.logger), nil
	case TypeDial:
		return NewDial(context, s, r.client, r.renderer, r.logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(s.Type))
	}
}
