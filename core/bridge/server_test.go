package bridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/scene"
)

func dialTestServer(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial bridge server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerBroadcastsEventsAsEnvelopes(t *testing.T) {
	server := NewServer()
	t.Cleanup(func() { server.Close() })
	conn := dialTestServer(t, server)

	// The connection is registered inside ServeHTTP; give it a moment.
	waitForClients(t, server, 1)

	server.HandleEvent(events.NewTurnStarted("turn-1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var received struct {
		Kind string `json:"kind"`
		Data struct {
			TurnID string `json:"TurnID"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &received); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if received.Kind != string(events.KindTurnStarted) {
		t.Fatalf("expected kind %s, got %s", events.KindTurnStarted, received.Kind)
	}
	if received.Data.TurnID != "turn-1" {
		t.Fatalf("expected turn id turn-1, got %q", received.Data.TurnID)
	}
}

func TestServerRoutesGazeUpdatesIntoTracker(t *testing.T) {
	tracker := scene.NewGazeTracker(nil)
	server := NewServer(WithGazeTracker(tracker))
	t.Cleanup(func() { server.Close() })
	conn := dialTestServer(t, server)
	waitForClients(t, server, 1)

	if err := conn.WriteJSON(map[string]string{"type": "gaze", "object": "lamp"}); err != nil {
		t.Fatalf("failed to send gaze update: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tracker.Current() == "lamp" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for gaze update, current is %q", tracker.Current())
}

func TestServerDropsDisconnectedClients(t *testing.T) {
	server := NewServer()
	t.Cleanup(func() { server.Close() })
	conn := dialTestServer(t, server)
	waitForClients(t, server, 1)

	conn.Close()
	waitForClients(t, server, 0)

	// Broadcasting with no clients must not block or panic.
	server.HandleEvent(events.NewTurnCompleted("turn-1"))
}

func waitForClients(t *testing.T, server *Server, expected int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		server.mu.Lock()
		connected := len(server.conns)
		server.mu.Unlock()
		if connected == expected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d connected clients", expected)
}
