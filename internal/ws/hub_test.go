package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papertrade/trading-engine/internal/ws"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return msg
}

// A new observer receives the full catch-up state (price table, then
// leaderboard) before any fan-out traffic.
func TestHandleWS_CatchUpSnapshot(t *testing.T) {
	snapshot := func(context.Context) []ws.Message {
		return []ws.Message{
			{Type: "prices", Data: map[string]string{"AAPL": "150"}},
			{Type: "leaderboard", Data: []string{"alice"}},
		}
	}
	hub := ws.NewHub(snapshot)
	go hub.Run()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)

	first := readMessage(t, conn)
	if first.Type != "prices" {
		t.Fatalf("expected prices snapshot first, got %q", first.Type)
	}
	second := readMessage(t, conn)
	if second.Type != "leaderboard" {
		t.Fatalf("expected leaderboard snapshot second, got %q", second.Type)
	}
}

func TestPublish_FanOut(t *testing.T) {
	hub := ws.NewHub(nil)
	go hub.Run()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)

	// Give the hub a moment to register both observers.
	time.Sleep(50 * time.Millisecond)
	hub.Publish("prices", map[string]string{"AAPL": "151"})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg.Type != "prices" {
			t.Errorf("expected prices broadcast, got %q", msg.Type)
		}
	}
}

// Publish must never block the caller, even with no observers draining.
func TestPublish_NonBlocking(t *testing.T) {
	hub := ws.NewHub(nil) // Run never started: the buffer fills up

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish("prices", map[string]int{"seq": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
}

func TestFanOut_SurvivesDisconnect(t *testing.T) {
	hub := ws.NewHub(nil)
	go hub.Run()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	gone := dial(t, srv)
	alive := dial(t, srv)

	time.Sleep(50 * time.Millisecond)
	gone.Close()
	time.Sleep(50 * time.Millisecond)

	hub.Publish("leaderboard", []string{"alice"})

	msg := readMessage(t, alive)
	if msg.Type != "leaderboard" {
		t.Errorf("expected broadcast to surviving observer, got %q", msg.Type)
	}
}

func httpHandler(hub *ws.Hub) http.Handler {
	return http.HandlerFunc(hub.HandleWS)
}
