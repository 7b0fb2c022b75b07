// Package feed keeps a single WebSocket connection to the miner feed alive and
// hands every inbound frame to a handler in arrival order.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/backoff"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

// Handler receives frames from the single read goroutine.
type Handler func(ctx context.Context, f model.Frame)

// Stats is a snapshot of connection counters.
type Stats struct {
	State             string        `json:"state"`
	Session           string        `json:"session,omitempty"`
	Dials             uint64        `json:"dials"`
	DialFailures      uint64        `json:"dial_failures"`
	Reconnects        uint64        `json:"reconnects"`
	Frames            uint64        `json:"frames"`
	HeartbeatFailures uint64        `json:"heartbeat_failures"`
	CurrentBackoff    time.Duration `json:"current_backoff"`
	LastActivity      time.Time     `json:"last_activity"`
}

// Manager owns the connection lifecycle: dial, heartbeat, read, reconnect.
type Manager struct {
	endpoint   string
	credential string
	handler    Handler

	dialer            *websocket.Dialer
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	activityWindow    time.Duration
	writeTimeout      time.Duration
	readLimit         int64
	backoff           *backoff.Backoff
	logger            logger.Logger

	state        atomic.Int32
	seq          atomic.Uint64
	lastActivity atomic.Int64 // unix nanos
	dials        atomic.Uint64
	dialFailures atomic.Uint64
	reconnects   atomic.Uint64
	frames       atomic.Uint64
	hbFailures   atomic.Uint64
	session      atomic.Value // string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a manager for endpoint. An empty credential sends no
// Authorization header.
func NewManager(endpoint, credential string, handler Handler, opts ...Option) *Manager {
	m := &Manager{
		endpoint:          endpoint,
		credential:        credential,
		handler:           handler,
		heartbeatInterval: defaultHeartbeatInterval,
		heartbeatTimeout:  defaultHeartbeatTimeout,
		activityWindow:    defaultActivityWindow,
		writeTimeout:      defaultWriteTimeout,
		readLimit:         defaultReadLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.handler == nil {
		m.handler = func(context.Context, model.Frame) {}
	}
	if m.dialer == nil {
		m.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if m.backoff == nil {
		m.backoff = backoff.New(backoff.DefaultConfig())
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("feed")
	}
	m.session.Store("")
	m.setState(StateDisconnected)
	return m
}

// Start launches the connect/read/reconnect loop and returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	if m.endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(m.endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, m.endpoint)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateClosed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.started = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx)

	m.logger.Info(ctx, "feed manager started",
		logger.String("endpoint", u.Redacted()),
		logger.Duration("heartbeat_interval", m.heartbeatInterval),
		logger.Duration("heartbeat_timeout", m.heartbeatTimeout),
	)
	return nil
}

// Shutdown closes the manager, stops the heartbeat, cancels any reconnect wait,
// closes the socket and waits for the read loop to exit. No handler call starts
// once Shutdown is entered. If ctx ends before the loop exits, the error is
// returned and a handler call already in progress may still finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.state.Store(int32(StateClosed))
	metrics.UpdateConnectionState(int(StateClosed))

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn(ctx, "feed manager closed before read loop exited", logger.Error(ctx.Err()))
			return fmt.Errorf("feed shutdown: %w", ctx.Err())
		}
	}

	m.logger.Info(ctx, "feed manager stopped")
	return nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Connected reports whether the socket is currently up.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// LastActivity returns the time of the last frame or pong; zero if none yet.
func (m *Manager) LastActivity() time.Time {
	ns := m.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:             m.State().String(),
		Session:           m.session.Load().(string),
		Dials:             m.dials.Load(),
		DialFailures:      m.dialFailures.Load(),
		Reconnects:        m.reconnects.Load(),
		Frames:            m.frames.Load(),
		HeartbeatFailures: m.hbFailures.Load(),
		CurrentBackoff:    m.backoff.Peek(),
		LastActivity:      m.LastActivity(),
	}
}

// setState moves to s unless the manager is closed.
func (m *Manager) setState(s State) {
	for {
		cur := m.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			metrics.UpdateConnectionState(int(s))
			return
		}
	}
}

func (m *Manager) touch() {
	m.lastActivity.Store(time.Now().UnixNano())
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	for ctx.Err() == nil {
		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setState(StateDisconnected)
			m.logger.Warn(ctx, "feed dial failed", logger.Error(err))
			if !m.waitReconnect(ctx) {
				return
			}
			continue
		}

		connectedAt := time.Now()
		m.setState(StateConnected)
		err = m.serve(ctx, conn)
		up := time.Since(connectedAt)
		if ctx.Err() != nil || m.State() == StateClosed {
			return
		}

		m.setState(StateDisconnected)
		m.logger.Warn(ctx, "feed connection lost",
			logger.String("session", m.session.Load().(string)),
			logger.Duration("uptime", up),
			logger.Error(err),
		)
		if up >= m.activityWindow {
			m.backoff.Reset()
		}
		if !m.waitReconnect(ctx) {
			return
		}
	}
}

// waitReconnect sleeps for the next backoff delay. It returns false if ctx ended first.
func (m *Manager) waitReconnect(ctx context.Context) bool {
	delay := m.backoff.Next()
	m.reconnects.Add(1)
	metrics.RecordReconnect(delay.Seconds())
	m.logger.Info(ctx, "reconnecting",
		logger.Duration("delay", delay),
		logger.Int("attempt", m.backoff.Attempt()),
	)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if m.credential != "" {
		header.Set("Authorization", "Bearer "+m.credential)
	}
	session := uuid.NewString()
	header.Set("X-Session-Id", session)

	m.dials.Add(1)
	conn, resp, err := m.dialer.DialContext(ctx, m.endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.dialFailures.Add(1)
		metrics.RecordDial("error")
		metrics.RecordTransportError("dial")
		if resp != nil {
			return nil, fmt.Errorf("dial feed: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	metrics.RecordDial("ok")
	m.session.Store(session)
	m.touch()
	m.logger.Info(ctx, "feed connected", logger.String("session", session))
	return conn, nil
}

// serve reads until the connection fails or ctx ends. It owns conn and closes it.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(m.heartbeatTimeout))
	}
	if err := extend(); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetReadLimit(m.readLimit)
	conn.SetPongHandler(func(string) error {
		m.touch()
		return extend()
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		m.heartbeat(connCtx, conn)
	}()
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		// unblock ReadMessage; the close frame is best effort
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(m.writeTimeout))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return m.readFailure(err)
		}
		m.touch()
		if err := extend(); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		// frames still buffered after Shutdown are dropped
		if m.State() == StateClosed {
			return nil
		}

		f := model.Frame{Seq: m.seq.Add(1), Data: data, ReceivedAt: time.Now()}
		m.frames.Add(1)
		metrics.RecordFrameReceived()
		m.handler(ctx, f)
	}
}

func (m *Manager) readFailure(err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		m.hbFailures.Add(1)
		metrics.RecordHeartbeatFailure()
		metrics.RecordTransportError("heartbeat_timeout")
		return fmt.Errorf("heartbeat timeout: %w", err)
	case errors.Is(err, websocket.ErrReadLimit):
		metrics.RecordTransportError("read_limit")
		return fmt.Errorf("frame over read limit: %w", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		metrics.RecordTransportError("remote_close")
		return fmt.Errorf("closed by feed: %w", err)
	default:
		metrics.RecordTransportError("read")
		return fmt.Errorf("read frame: %w", err)
	}
}

// heartbeat pings on every tick until ctx ends. A failed ping closes the socket
// so the read loop reconnects.
func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.writeTimeout)); err != nil {
				m.logger.Warn(ctx, "heartbeat ping failed", logger.Error(err))
				metrics.RecordTransportError("ping")
				_ = conn.Close()
				return
			}
		}
	}
}
