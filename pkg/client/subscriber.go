package client

import (
	"github.com/google/uuid"

	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/router"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// ExtractFunc resolves a subscriber's value from a frame.
type ExtractFunc func(frame wire.Frame) (any, bool)

// Subscriber is a ready-made handle for one path.
type Subscriber struct {
	id      string
	path    string
	extract ExtractFunc
	onValue func(value any)
}

var _ router.Handle = (*Subscriber)(nil)

// NewSubscriber creates a handle for p with a fresh ID. It uses the
// standard extraction rule; onValue receives every resolved value.
func NewSubscriber(p string, onValue func(value any)) *Subscriber {
	s := &Subscriber{
		id:      uuid.NewString(),
		path:    path.Normalize(p),
		onValue: onValue,
	}
	s.extract = func(frame wire.Frame) (any, bool) {
		return router.Extract(frame, s.path)
	}
	return s
}

// WithExtract replaces the extraction rule.
func (s *Subscriber) WithExtract(fn ExtractFunc) *Subscriber {
	if fn != nil {
		s.extract = fn
	}
	return s
}

// ID returns the handle ID.
func (s *Subscriber) ID() string { return s.id }

// Path returns the normalized path.
func (s *Subscriber) Path() string { return s.path }

// Extract applies the extraction rule.
func (s *Subscriber) Extract(frame wire.Frame) (any, bool) {
	return s.extract(frame)
}

// Deliver passes value to the callback.
func (s *Subscriber) Deliver(value any) {
	if s.onValue != nil {
		s.onValue(value)
	}
}
