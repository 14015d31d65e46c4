package devicesim

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhd-bridge/dhd-go/pkg/path"
	"github.com/dhd-bridge/dhd-go/pkg/wire"
)

// session is one client connection.
type session struct {
	device *Device
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}

	mu     sync.Mutex
	authed bool
	subs   []string
	closed bool
}

func newSession(d *Device, ws *websocket.Conn) *session {
	return &session{
		device: d,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// readPump decodes requests until the connection fails.
func (s *session) readPump() {
	defer s.close()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.device.logger.Debug("read failed", "error", err)
			}
			return
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			s.device.logger.Warn("bad request", "error", err)
			s.enqueue(failure("", "", ErrTextBadRequest))
			continue
		}
		if out := s.device.handle(s, req); out != nil {
			s.enqueue(out)
		}
	}
}

// writePump serializes writes to the websocket.
func (s *session) writePump() {
	for {
		select {
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.drop()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		s.device.logger.Warn("client not keeping up, frame dropped")
	}
}

// drop severs the connection abruptly.
func (s *session) drop() {
	s.close()
	_ = s.ws.Close()
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *session) setAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authed = true
}

func (s *session) authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

func (s *session) subscribe(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing == p {
			return
		}
	}
	s.subs = append(s.subs, p)
}

// interestedIn reports whether a change at p overlaps any subscription:
// the subscribed node contains p, or p contains the subscribed node.
func (s *session) interestedIn(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if path.HasPrefix(p, sub) || path.HasPrefix(sub, p) {
			return true
		}
	}
	return false
}

func (s *session) subscribedTo(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if path.HasPrefix(p, sub) {
			return true
		}
	}
	return false
}
