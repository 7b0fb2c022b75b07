package testfeed

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/minerwatch/pkg/logger"
)

// Server plays a script over WebSocket. Frames are sent once across
// connections: a client that reconnects resumes where the last one stopped.
type Server struct {
	credential string
	interval   time.Duration
	frames     [][]byte
	upgrader   websocket.Upgrader

	mu   sync.Mutex
	next int

	sent        atomic.Int64
	connections atomic.Int64

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewServer creates a server for frames. An empty credential accepts any client.
func NewServer(frames [][]byte, credential string, interval time.Duration) *Server {
	s := &Server{
		credential: credential,
		interval:   interval,
		frames:     frames,
		connected:  make(chan struct{}),
		done:       make(chan struct{}),
		stop:       make(chan struct{}),
	}
	if len(frames) == 0 {
		close(s.done)
	}
	return s
}

// ServeHTTP upgrades the request and streams the remaining frames.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.credential != "" && r.Header.Get("Authorization") != "Bearer "+s.credential {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn(ctx, "feed upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	s.connections.Add(1)
	s.connectedOnce.Do(func() { close(s.connected) })
	logger.Get().Debug(ctx, "feed client connected",
		logger.String("session", r.Header.Get("X-Session-Id")),
	)

	// reading keeps the default ping handler answering heartbeats
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for s.sendNext(conn) {
		if s.interval <= 0 {
			continue
		}
		select {
		case <-time.After(s.interval):
		case <-gone:
			return
		case <-s.stop:
			return
		}
	}

	select {
	case <-gone:
	case <-s.stop:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed stopped"),
			time.Now().Add(time.Second))
	}
}

// sendNext writes the next frame and reports whether more remain.
func (s *Server) sendNext(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, s.frames[s.next]); err != nil {
		return false
	}
	s.next++
	s.sent.Add(1)
	if s.next == len(s.frames) {
		s.doneOnce.Do(func() { close(s.done) })
		return false
	}
	return true
}

// Sent returns the number of frames delivered so far.
func (s *Server) Sent() int { return int(s.sent.Load()) }

// Connections returns how many clients have connected.
func (s *Server) Connections() int { return int(s.connections.Load()) }

// Connected is closed when the first client connects.
func (s *Server) Connected() <-chan struct{} { return s.connected }

// Done is closed once every frame has been sent.
func (s *Server) Done() <-chan struct{} { return s.done }

// Close releases connected clients.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until every frame is sent or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
