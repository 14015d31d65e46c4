package devicesim

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/transport"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// Reply error texts, as a console reports them.
const (
	ErrTextNotAuthenticated = "not authenticated"
	ErrTextInvalidToken     = "invalid token"
	ErrTextNotFound         = "path not found"
	ErrTextNotWritable      = "path not writable"
	ErrTextBadRequest       = "bad request"
)

// ErrNotFound is returned by Get for a missing path.
var ErrNotFound = errors.New("path not found")

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Config configures a simulated device.
type Config struct {
	// Token enables authentication when non-empty. Requests other than auth
	// are refused until a session authenticates with it.
	Token string

	// Tree is the initial device tree. It is copied.
	Tree map[string]any

	// Logger for simulator events (default: slog.Default()).
	Logger *slog.Logger

	// Now reports time for liveness uptime replies (default: time.Now).
	Now func() time.Time
}

// Device is a simulated control device. It implements http.Handler and
// serves the control API at transport.APIPath.
type Device struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
	started  time.Time

	mu       sync.Mutex
	token    string
	tree     map[string]any
	sessions map[*session]struct{}
	requests []wire.Request
	silent   bool
	accepted int
}

// New creates a simulated device.
func New(config Config) *Device {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	tree, _ := normalizeTree(config.Tree).(map[string]any)
	if tree == nil {
		tree = make(map[string]any)
	}

	return &Device{
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:      config.Now,
		started:  config.Now(),
		token:    config.Token,
		tree:     tree,
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades requests on the API path and serves them until the
// connection closes.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != transport.APIPath {
		http.NotFound(w, r)
		return
	}

	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(d, ws)
	d.mu.Lock()
	d.sessions[s] = struct{}{}
	d.accepted++
	d.mu.Unlock()

	d.logger.Debug("client connected", "remote", ws.RemoteAddr())
	go s.writePump()
	s.readPump()

	d.mu.Lock()
	delete(d.sessions, s)
	d.mu.Unlock()
	d.logger.Debug("client disconnected", "remote", ws.RemoteAddr())
}

// Get returns a copy of the value at p.
func (d *Device) Get(p string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := path.Lookup(d.tree, p)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set changes the tree as if an operator touched the console, pushing
// updates to subscribers.
func (d *Device) Set(p string, value any) error {
	p = path.Normalize(p)
	value = normalizeTree(value)

	d.mu.Lock()
	ok := setIn(d.tree, p, value)
	d.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	d.push(p, value)
	return nil
}

// SetToken changes the token required for new auth requests. Sessions that
// already authenticated stay authenticated.
func (d *Device) SetToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
}

// SetSilent stops (or resumes) replying to requests. Requests are still
// recorded.
func (d *Device) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// DropAll closes every open connection without a close handshake.
func (d *Device) DropAll() {
	for _, s := range d.snapshot() {
		s.drop()
	}
}

// Inject writes a raw frame to every open connection.
func (d *Device) Inject(data []byte) {
	for _, s := range d.snapshot() {
		s.enqueue(data)
	}
}

// Connections returns the number of open connections.
func (d *Device) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Accepted returns the number of connections accepted since start.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// Requests returns every request received, in order.
func (d *Device) Requests() []wire.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wire.Request(nil), d.requests...)
}

// Count returns how many requests with method (and path, if non-empty) were
// received.
func (d *Device) Count(method wire.Method, p string) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Method == method && (p == "" || r.Path == path.Normalize(p)) {
			n++
		}
	}
	return n
}

// ResetRequests forgets the recorded requests.
func (d *Device) ResetRequests() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

// Subscribers returns the number of sessions subscribed at or above p.
func (d *Device) Subscribers(p string) int {
	n := 0
	for _, s := range d.snapshot() {
		if s.subscribedTo(p) {
			n++
		}
	}
	return n
}

func (d *Device) snapshot() []*session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*session, 0, len(d.sessions))
	for s := range d.sessions {
		out = append(out, s)
	}
	return out
}

// handle processes one request from s and returns the reply, or nil.
func (d *Device) handle(s *session, req *wire.Request) []byte {
	d.mu.Lock()
	d.requests = append(d.requests, *req)
	silent := d.silent
	token := d.token
	d.mu.Unlock()

	if silent {
		return nil
	}

	if req.Method == wire.MethodAuth {
		if token != "" && req.Token != token {
			return reply(map[string]any{"method": "auth", "success": false, "error": ErrTextInvalidToken})
		}
		s.setAuthenticated()
		return reply(map[string]any{"method": "auth", "success": true})
	}

	if token != "" && !s.authenticated() {
		return failure(req.Method, req.Path, ErrTextNotAuthenticated)
	}

	switch req.Method {
	case wire.MethodGet:
		if req.Path == wire.LivenessPath {
			uptime := d.now().Sub(d.started).Seconds()
			return reply(map[string]any{"method": "get", "path": req.Path, "success": true, "payload": uptime})
		}
		v, err := d.Get(req.Path)
		if err != nil {
			return failure(req.Method, req.Path, ErrTextNotFound)
		}
		return reply(map[string]any{"method": "get", "path": req.Path, "success": true, "payload": v})

	case wire.MethodSet:
		value := normalizeTree(req.Payload)
		d.mu.Lock()
		ok := setIn(d.tree, req.Path, value)
		d.mu.Unlock()
		if !ok {
			return failure(req.Method, req.Path, ErrTextNotWritable)
		}
		d.push(req.Path, value)
		return reply(map[string]any{"method": "set", "path": req.Path, "success": true, "payload": value})

	case wire.MethodSubscribe:
		s.subscribe(req.Path)
		return reply(map[string]any{"method": "subscribe", "path": req.Path, "success": true})

	default:
		return failure(req.Method, req.Path, ErrTextBadRequest)
	}
}

// push sends an update for a change at p to every overlapping subscriber.
func (d *Device) push(p string, value any) {
	data := reply(map[string]any{"method": "update", "path": p, "payload": nest(p, value)})
	for _, s := range d.snapshot() {
		if s.interestedIn(p) {
			s.enqueue(data)
		}
	}
}

func failure(method wire.Method, p string, text string) []byte {
	return reply(map[string]any{"method": string(method), "path": p, "success": false, "error": text})
}

func reply(v map[string]any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only JSON-shaped values reach here.
		panic(err)
	}
	return data
}
