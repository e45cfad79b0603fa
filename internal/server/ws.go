package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nguoimoi123/meetingmind/internal/metrics"
	"github.com/nguoimoi123/meetingmind/internal/protocol"
)

// DefaultUserID is attributed to connections that do not identify themselves.
const DefaultUserID = "default_user"

// SessionController is the subset of the session registry the gateway drives.
type SessionController interface {
	Begin(ctx context.Context, sessionID, userID string) error
	PushAudio(sessionID string, payload []byte)
	End(sessionID string)
	Teardown(sessionID string)
}

// wsConn wraps a websocket connection with a write lock. gorilla/websocket
// allows at most one concurrent writer per connection, and transcript events
// arrive from the session worker goroutine while acks are written from the
// read loop.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeEvent(ev protocol.ServerEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(ev)
}

// Gateway terminates browser websocket connections and translates their
// frames into session registry calls. It also implements session.Notifier so
// transcript events flow back to the originating connection.
type Gateway struct {
	sessions  SessionController
	headerLen int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*wsConn
}

// NewGateway creates a websocket gateway. The session controller is attached
// later via Bind because the registry itself needs the gateway as its
// notifier. headerLen is the size of the metadata prefix on binary frames.
// metrics may be nil.
func NewGateway(headerLen int, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	if headerLen <= 0 {
		headerLen = protocol.DefaultHeaderLen
	}
	return &Gateway{
		headerLen: headerLen,
		logger:    logger,
		metrics:   m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser capture pages are served from arbitrary origins
			// during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*wsConn),
	}
}

// Bind attaches the session controller. Must be called before the gateway
// serves its first connection.
func (g *Gateway) Bind(sessions SessionController) {
	g.sessions = sessions
}

// HandleWS upgrades the request and serves the connection until the client
// disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = DefaultUserID
	}
	sessionID := uuid.NewString()

	c := &wsConn{conn: conn}
	g.register(sessionID, c)

	logger := g.logger.With(
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
	)
	logger.Info("client connected", slog.String("remote_addr", conn.RemoteAddr().String()))

	g.serve(r.Context(), c, sessionID, userID, logger)

	g.unregister(sessionID)
	g.sessions.Teardown(sessionID)
	conn.Close()
	logger.Info("client disconnected")
}

func (g *Gateway) serve(ctx context.Context, c *wsConn, sessionID, userID string, logger *slog.Logger) {
	started := false
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !started {
				g.metrics.RecordFrameDropped()
				continue
			}
			payload, ok := protocol.DecodeAudioFrame(data, g.headerLen)
			if !ok {
				g.metrics.RecordFrameDropped()
				logger.Debug("dropped short audio frame", slog.Int("size", len(data)))
				continue
			}
			g.metrics.RecordFrameReceived()
			g.sessions.PushAudio(sessionID, payload)

		case websocket.TextMessage:
			ev, err := protocol.ParseClientEvent(data)
			if err != nil {
				g.metrics.RecordEventError()
				logger.Warn("invalid client event", slog.String("error", err.Error()))
				g.sendError(c, sessionID, "invalid event")
				continue
			}
			switch ev.Event {
			case protocol.EventStart:
				if ev.UserID != "" {
					userID = ev.UserID
				}
				if err := g.sessions.Begin(ctx, sessionID, userID); err != nil {
					logger.Error("failed to begin session", slog.String("error", err.Error()))
					g.sendError(c, sessionID, "failed to start meeting")
					continue
				}
				started = true
				if err := c.writeEvent(protocol.ServerEvent{Event: protocol.EventStatus, Msg: "meeting started"}); err != nil {
					logger.Warn("failed to send status", slog.String("error", err.Error()))
				}
			case protocol.EventEnd:
				g.sessions.End(sessionID)
				if err := c.writeEvent(protocol.ServerEvent{Event: protocol.EventStatus, Msg: "meeting ending"}); err != nil {
					logger.Warn("failed to send status", slog.String("error", err.Error()))
				}
			default:
				g.metrics.RecordEventError()
				logger.Warn("unknown client event", slog.String("event", ev.Event))
				g.sendError(c, sessionID, "unknown event: "+ev.Event)
			}

		default:
			// Ping/pong and close frames are handled by gorilla internally.
		}
	}
}

func (g *Gateway) sendError(c *wsConn, sessionID, msg string) {
	if err := c.writeEvent(protocol.ServerEvent{Event: protocol.EventError, Msg: msg}); err != nil {
		g.logger.Debug("failed to send error event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

func (g *Gateway) register(sessionID string, c *wsConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[sessionID] = c
}

func (g *Gateway) unregister(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, sessionID)
}

func (g *Gateway) lookup(sessionID string) *wsConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[sessionID]
}

// TranscriptPartial implements session.Notifier.
func (g *Gateway) TranscriptPartial(sessionID, text string) {
	g.push(sessionID, protocol.ServerEvent{Event: protocol.EventPartialTranscript, Text: text})
}

// TranscriptFinal implements session.Notifier.
func (g *Gateway) TranscriptFinal(sessionID, text string) {
	g.push(sessionID, protocol.ServerEvent{Event: protocol.EventTranscript, Text: text})
}

func (g *Gateway) push(sessionID string, ev protocol.ServerEvent) {
	c := g.lookup(sessionID)
	if c == nil {
		// The connection is already gone; the worker keeps running until
		// the transcript drains, so late events are expected.
		return
	}
	if err := c.writeEvent(ev); err != nil {
		g.logger.Debug("failed to push transcript event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}
