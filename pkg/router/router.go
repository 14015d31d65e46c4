package router

import (
	"log/slog"

	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Handle is a subscriber as seen by the router. Clients compare handles by
// identity, so implementations must be comparable; pointers are typical.
type Handle interface {
	// ID identifies the handle. Unique within one client.
	ID() string

	// Extract returns the handle's value from frame, or false if the frame
	// carries nothing for it.
	Extract(frame wire.Frame) (any, bool)

	// Deliver receives an extracted value.
	Deliver(value any)
}

// Extract applies the standard extraction rule for a handle at p.
func Extract(frame wire.Frame, p string) (any, bool) {
	switch f := frame.(type) {
	case *wire.Response:
		if !f.HasPayload || !path.Equal(f.Path, p) {
			return nil, false
		}
		return f.Payload, true
	case *wire.Update:
		return path.Lookup(f.Payload, p)
	default:
		return nil, false
	}
}

// Delivery is a value resolved for one handle.
type Delivery struct {
	Handle Handle
	Value  any
}

// Run delivers the value.
func (d Delivery) Run() {
	d.Handle.Deliver(d.Value)
}

// Stats counts routed frames.
type Stats struct {
	Frames      uint64
	Deliveries  uint64
	Unmatched   uint64
	Heartbeats  uint64
	Failures    uint64
	Unroutable  uint64
	AuthAcks    uint64
	SubscribeOK uint64
}

// Router resolves frames to deliveries.
type Router struct {
	logger *slog.Logger
	stats  Stats
}

// New creates a router. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger}
}

// Route returns the deliveries frame produces for handles, at most one per
// handle. It does not call Deliver; the caller runs the deliveries once it
// is safe for handles to call back.
func (r *Router) Route(frame wire.Frame, handles []Handle) []Delivery {
	r.stats.Frames++

	switch f := frame.(type) {
	case *wire.HeartbeatResponse:
		r.stats.Heartbeats++
		return nil

	case *wire.Failure:
		r.stats.Failures++
		r.logger.Warn("device reported failure",
			"method", f.Method, "path", f.Path, "error", f.Error)
		return nil

	case *wire.Unroutable:
		r.stats.Unroutable++
		r.logger.Warn("unroutable frame",
			"method", f.Method, "path", f.Path, "reason", f.Reason)
		return nil

	case *wire.AuthAck:
		r.stats.AuthAcks++
		return nil

	case *wire.SubscribeAck:
		if !f.Success {
			r.logger.Warn("subscribe rejected", "path", f.Path, "error", f.Error)
		} else {
			r.stats.SubscribeOK++
		}
		return nil
	}

	var out []Delivery
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if _, dup := seen[h.ID()]; dup {
			continue
		}
		seen[h.ID()] = struct{}{}

		value, ok := h.Extract(frame)
		if !ok {
			continue
		}
		out = append(out, Delivery{Handle: h, Value: value})
	}

	if len(out) == 0 {
		r.stats.Unmatched++
		r.logger.Debug("frame matched no handle", "kind", frame.Kind())
	}
	r.stats.Deliveries += uint64(len(out))
	return out
}

// Stats returns routing counters.
func (r *Router) Stats() Stats {
	return r.stats
}
