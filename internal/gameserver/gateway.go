package gameserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/presence"
)

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 8 << 10

// TokenVerifier resolves a bearer token to a player id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Gateway upgrades authenticated HTTP requests to websockets and runs one
// reader and one writer goroutine per connection.
type Gateway struct {
	cfg      config.GatewayConfig
	verifier TokenVerifier
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewGateway creates a Gateway.
//
// Precondition: cfg must have positive timeouts with PingInterval < ReadTimeout;
// verifier, hub and logger must be non-nil.
// Postcondition: Returns a Gateway ready to be mounted as an http.Handler.
func NewGateway(cfg config.GatewayConfig, verifier TokenVerifier, hub *Hub, logger *zap.Logger) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		verifier: verifier,
		hub:      hub,
		logger:   logger,
		conns:    make(map[*websocket.Conn]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// ServeHTTP verifies the bearer token, upgrades, and serves the connection
// until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		g.logger.Debug("rejecting connection", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if !g.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer g.wg.Done()
	g.serve(conn, subject)
}

// serve runs the connection: a writer goroutine drains the outbox while
// this goroutine reads frames and dispatches them in order.
func (g *Gateway) serve(conn *websocket.Conn, subject string) {
	start := time.Now()
	out := presence.NewOutbox(uuid.NewString(), g.cfg.OutboxSize)
	client := NewClient(out, subject)
	logger := g.logger.With(zap.String("handle", out.ID()), zap.String("subject", subject))
	logger.Info("client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(conn, out, logger)
	}()

	err := g.readLoop(conn, client)

	g.hub.Disconnect(context.Background(), client)
	_ = out.Close()
	<-writerDone
	_ = conn.Close()
	g.untrack(conn)

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Debug("client disconnected", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("client disconnected cleanly", zap.Duration("duration", time.Since(start)))
}

func (g *Gateway) readLoop(conn *websocket.Conn, client *Client) error {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if g.isClosed() {
			return websocket.ErrCloseSent
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		if kind != websocket.TextMessage {
			continue
		}
		g.hub.Handle(context.Background(), client, data)
	}
}

// writeLoop owns every write to conn. It exits when the outbox closes or a
// write fails; a failed write closes conn so the reader unblocks.
func (g *Gateway) writeLoop(conn *websocket.Conn, out *presence.Outbox, logger *zap.Logger) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-out.Frames():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(g.cfg.WriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("write failed", zap.Error(err))
				_ = conn.Close()
				g.drain(out)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.cfg.WriteTimeout)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				_ = conn.Close()
				g.drain(out)
				return
			}
		}
	}
}

// drain discards frames until the outbox closes so pushes never block.
func (g *Gateway) drain(out *presence.Outbox) {
	for range out.Frames() {
	}
}

// Close stops accepting connections, ends every open one through its normal
// disconnect path, and waits for those paths to finish or ctx to expire.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	conns := make([]*websocket.Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		_ = c.SetReadDeadline(time.Now())
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("gateway closed", zap.Int("connections", len(conns)))
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("gateway close timed out"), ctx.Err())
	}
}

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Gateway) track(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[conn] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, conn)
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// bearerToken reads the token from the Authorization header or the token
// query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
