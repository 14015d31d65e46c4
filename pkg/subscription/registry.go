package subscription

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dhd-bridge/dhd-go/pkg/clock"
	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// DefaultReplayRetryInterval is the delay between replay attempts while the
// connection is not open.
const DefaultReplayRetryInterval = 1 * time.Second

// Registry errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrEmptyHandle = errors.New("empty handle id")
)

// Transport is the part of the connection the registry writes through.
type Transport interface {
	// Send writes data, or returns an error without sending when the
	// connection is not open.
	Send(data []byte) error

	// IsOpen reports whether Send would write.
	IsOpen() bool
}

// Config configures a Registry.
type Config struct {
	// Clock drives replay retries (default: real clock).
	Clock clock.Clock

	// ReplayRetryInterval is the wait between replay attempts (default: 1s).
	ReplayRetryInterval time.Duration

	// Exec runs timer callbacks on the owner's executor (default: inline).
	Exec func(f func())

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// Stats counts registry traffic.
type Stats struct {
	Subscribes uint64
	Gets       uint64
	Dropped    uint64
	Replays    uint64
	Retries    uint64
}

type entry struct {
	path    string
	handles []string
}

// Registry maps each distinct path to the ordered set of handle IDs
// interested in it.
type Registry struct {
	transport Transport
	clock     clock.Clock
	interval  time.Duration
	exec      func(func())
	logger    *slog.Logger

	entries map[string]*entry
	order   []string

	replayTimer clock.Timer
	replaySeq   uint64

	stats Stats
}

// New creates an empty registry writing through t.
func New(t Transport, config Config) *Registry {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.ReplayRetryInterval <= 0 {
		config.ReplayRetryInterval = DefaultReplayRetryInterval
	}
	if config.Exec == nil {
		config.Exec = func(f func()) { f() }
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Registry{
		transport: t,
		clock:     config.Clock,
		interval:  config.ReplayRetryInterval,
		exec:      config.Exec,
		logger:    config.Logger,
		entries:   make(map[string]*entry),
	}
}

// AddInterest registers handle for p. It subscribes if the entry is new and
// always requests the current value. created reports a new entry.
func (r *Registry) AddInterest(p, handle string) (created bool, err error) {
	p = path.Normalize(p)
	if p == "" {
		return false, ErrEmptyPath
	}
	if handle == "" {
		return false, ErrEmptyHandle
	}

	e, ok := r.entries[p]
	if !ok {
		e = &entry{path: p}
		r.entries[p] = e
		r.order = append(r.order, p)
		created = true
	}
	if !slices.Contains(e.handles, handle) {
		e.handles = append(e.handles, handle)
	}

	if created {
		r.send(wire.MethodSubscribe, p)
	}
	r.send(wire.MethodGet, p)
	return created, nil
}

// RemoveInterest drops handle from p. The entry is deleted with its last
// handle. It returns false if handle was not registered for p.
func (r *Registry) RemoveInterest(p, handle string) bool {
	p = path.Normalize(p)
	e, ok := r.entries[p]
	if !ok {
		return false
	}

	i := slices.Index(e.handles, handle)
	if i < 0 {
		return false
	}
	e.handles = slices.Delete(e.handles, i, i+1)

	if len(e.handles) == 0 {
		delete(r.entries, p)
		r.order = slices.DeleteFunc(r.order, func(o string) bool { return o == p })
		r.logger.Debug("subscription entry removed", "path", p)
	}
	return true
}

// RemoveAll drops handle from every path and returns the affected paths.
func (r *Registry) RemoveAll(handle string) []string {
	var removed []string
	for _, p := range r.Interested(handle) {
		if r.RemoveInterest(p, handle) {
			removed = append(removed, p)
		}
	}
	return removed
}

// ReplayAll re-subscribes every known path. When the connection is not
// open it retries every ReplayRetryInterval until it is. Calling ReplayAll
// again replaces a pending retry.
func (r *Registry) ReplayAll() {
	r.CancelReplay()
	r.tryReplay()
}

// CancelReplay stops a pending replay retry.
func (r *Registry) CancelReplay() {
	r.replaySeq++
	if r.replayTimer != nil {
		r.replayTimer.Stop()
		r.replayTimer = nil
	}
}

// ReplayPending reports whether a replay retry is scheduled.
func (r *Registry) ReplayPending() bool {
	return r.replayTimer != nil
}

func (r *Registry) tryReplay() {
	if !r.transport.IsOpen() {
		r.stats.Retries++
		seq := r.replaySeq
		r.replayTimer = r.clock.AfterFunc(r.interval, func() {
			r.exec(func() {
				if seq != r.replaySeq {
					return
				}
				r.replayTimer = nil
				r.tryReplay()
			})
		})
		return
	}

	r.stats.Replays++
	r.logger.Debug("replaying subscriptions", "paths", len(r.order))
	for _, p := range slices.Clone(r.order) {
		r.send(wire.MethodSubscribe, p)
		r.send(wire.MethodGet, p)
	}
}

// Paths returns all tracked paths in registration order.
func (r *Registry) Paths() []string {
	return slices.Clone(r.order)
}

// Handles returns the handle IDs registered for p in registration order.
func (r *Registry) Handles(p string) []string {
	e, ok := r.entries[path.Normalize(p)]
	if !ok {
		return nil
	}
	return slices.Clone(e.handles)
}

// Has reports whether p has an entry.
func (r *Registry) Has(p string) bool {
	_, ok := r.entries[path.Normalize(p)]
	return ok
}

// Interested returns the paths handle is registered for.
func (r *Registry) Interested(handle string) []string {
	var out []string
	for _, p := range r.order {
		if slices.Contains(r.entries[p].handles, handle) {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of tracked paths.
func (r *Registry) Count() int {
	return len(r.entries)
}

// Stats returns traffic counters.
func (r *Registry) Stats() Stats {
	return r.stats
}

func (r *Registry) send(method wire.Method, p string) {
	data, err := wire.Encode(method, p, nil)
	if err != nil {
		r.logger.Error("encode request", "method", method, "path", p, "error", err)
		return
	}
	if err := r.transport.Send(data); err != nil {
		r.stats.Dropped++
		r.logger.Debug("request not sent", "method", method, "path", p, "error", err)
		return
	}

	switch method {
	case wire.MethodSubscribe:
		r.stats.Subscribes++
	case wire.MethodGet:
		r.stats.Gets++
	}
}
