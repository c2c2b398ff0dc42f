package server

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/labsim/collab/pkg/collab"
	"github.com/labsim/collab/pkg/protocol"
)

// ErrConnClosed is returned when writing to a connection that has been
// torn down.
var ErrConnClosed = errors.New("server: connection closed")

// Conn is the per-connection protocol state machine. It owns the websocket,
// the bound session/user identity, and the read loop that dispatches
// command envelopes.
//
// The bound fields are written only by the connection's own read goroutine.
// Writes to the websocket are serialized by writeMu because broadcasts
// arrive from other connections' goroutines.
type Conn struct {
	ws       *websocket.Conn
	registry *collab.Registry
	config   *Config
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	// Bound state: set by create/join, cleared by leave.
	sessionID string
	userID    string
	username  string
}

func newConn(ws *websocket.Conn, s *Server) *Conn {
	return &Conn{
		ws:       ws,
		registry: s.registry,
		config:   s.config,
		metrics:  s.metrics,
		tracer:   s.tracer,
		logger:   s.logger.With("component", "conn", "remote_addr", ws.RemoteAddr().String()),
		done:     make(chan struct{}),
	}
}

// WriteEvent encodes v as JSON and sends it on the websocket. It is safe
// to call from any goroutine. A write failure tears the connection down so
// later broadcasts skip it.
func (c *Conn) WriteEvent(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

// IsClosed reports whether the connection has been torn down.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Close tears the connection down. Safe to call more than once and from
// any goroutine; the read loop then observes the closed transport and
// synthesizes the participant's leave.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	return c.ws.Close()
}

// serve runs the read loop until the connection dies, then synthesizes a
// leave for whatever session the connection was bound to.
func (c *Conn) serve() {
	defer c.teardown()

	c.metrics.RecordConnect()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	go c.pingLoop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.dispatch(data)
	}
}

// pingLoop sends periodic pings so dead peers fail the read deadline
// instead of lingering in rosters.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) teardown() {
	c.Close()
	c.metrics.RecordDisconnect()

	if c.sessionID != "" && c.userID != "" {
		// Transport died while bound: leave exactly as if the client had
		// sent an explicit leave command.
		c.leaveSession()
	}
}

// dispatch decodes one envelope and routes it. Protocol errors go back to
// the sender only; the connection stays open.
func (c *Conn) dispatch(data []byte) {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			c.logger.Warn("unknown command type", "type", unknown.Type)
			c.sendError(msgUnknownType)
			c.metrics.RecordCommand("unknown", "error")
		} else {
			c.logger.Warn("malformed envelope", "error", err)
			c.sendError(msgInvalidFormat)
			c.metrics.RecordCommand("invalid", "error")
		}
		return
	}

	name := string(cmd.CommandType())
	_, span := c.tracer.Start(commandContext(), "collab."+name,
		trace.WithAttributes(commandAttributes(name, c.sessionID, c.userID)...))
	defer span.End()

	if err := c.handleCommand(cmd); err != nil {
		c.sendError(wireMessage(err))
		recordSpanError(span, err)
		c.metrics.RecordCommand(name, "error")
		return
	}
	c.metrics.RecordCommand(name, "ok")
}

// bind attaches the connection to a session. Subsequent commands that
// require a session resolve against this identity.
func (c *Conn) bind(sessionID, userID, username string) {
	c.sessionID = sessionID
	c.userID = userID
	c.username = username
	c.logger = c.logger.With("session_id", sessionID, "user_id", userID)
}

func (c *Conn) unbind() {
	c.sessionID = ""
	c.userID = ""
	c.username = ""
}

// sendError reports a failed command to this connection only. Write
// failures here are already handled by WriteEvent's teardown.
func (c *Conn) sendError(message string) {
	_ = c.WriteEvent(protocol.NewError(message))
}
