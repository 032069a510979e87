// Package bridge exposes the orchestrator's event stream to the rendering
// frontend over a WebSocket. The frontend drives avatar animation (speaking,
// thinking, pointing) off the events and sends gaze updates back.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/scene"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// envelope is the wire form of one event.
type envelope struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// gazeUpdate is the only inbound message the bridge understands.
type gazeUpdate struct {
	Type   string `json:"type"`
	Object string `json:"object"`
}

// Server broadcasts orchestrator events to every connected frontend and
// feeds inbound gaze updates into the tracker.
type Server struct {
	upgrader websocket.Upgrader
	gaze     *scene.GazeTracker

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

type ServerOption func(*Server)

// WithGazeTracker routes inbound gaze updates into the tracker.
func WithGazeTracker(gaze *scene.GazeTracker) ServerOption {
	return func(s *Server) { s.gaze = gaze }
}

func NewServer(opts ...ServerOption) *Server {
	server := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// HandleEvent is the observer the orchestrator's event stream is wired to.
func (s *Server) HandleEvent(event events.Event) {
	payload, err := json.Marshal(envelope{
		Kind:      string(event.Kind()),
		Timestamp: event.Timestamp(),
		Data:      event,
	})
	if err != nil {
		logger.Warn("failed to encode event", "kind", string(event.Kind()), "error", err)
		return
	}
	s.broadcast(payload)
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn, send := range s.conns {
		select {
		case send <- payload:
		default:
			// Slow consumer; drop it rather than stall the pipeline.
			logger.Warn("dropping slow bridge client")
			close(send)
			delete(s.conns, conn)
		}
	}
}

// ServeHTTP upgrades the request and serves the event stream until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "bridge.ServeHTTP")
	defer span.End()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		span.RecordError(err)
		logger.Warn("failed to upgrade bridge connection", "error", err)
		return
	}
	span.SetAttributes(attribute.String("client.addr", conn.RemoteAddr().String()))

	send := make(chan []byte, 64)
	s.mu.Lock()
	s.conns[conn] = send
	s.mu.Unlock()

	logger.Info("bridge client connected", "client", conn.RemoteAddr().String())

	go s.writeLoop(conn, send)
	s.readLoop(ctx, conn)

	s.mu.Lock()
	if pending, ok := s.conns[conn]; ok {
		close(pending)
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	conn.Close()

	logger.Info("bridge client disconnected", "client", conn.RemoteAddr().String())
}

func (s *Server) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for payload := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	for {
		if ctx.Err() != nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var update gazeUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			logger.Warn("failed to decode bridge message", "error", err)
			continue
		}
		if update.Type == "gaze" && s.gaze != nil {
			s.gaze.Observe(update.Object)
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn, send := range s.conns {
		close(send)
		delete(s.conns, conn)
		if err := conn.Close(); err != nil {
			return fmt.Errorf("failed to close bridge connection: %w", err)
		}
	}
	return nil
}
