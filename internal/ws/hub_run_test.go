package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papertrade/trading-engine/internal/metrics"
)

// Keepalive pings and broadcasts write to the same connection; the
// locking must keep them from ever running concurrently. A violation
// panics inside gorilla/websocket and crashes the test binary.
func TestPingSerializedWithBroadcast(t *testing.T) {
	old := pingInterval
	pingInterval = time.Millisecond
	defer func() { pingInterval = old }()

	hub := NewHub(nil)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Drain so pongs keep flowing while the hub floods broadcasts.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		hub.Publish("prices", map[string]string{"AAPL": "150"})
		time.Sleep(time.Millisecond)
	}

	// Drain the async unregister so the gauge is settled before the
	// next test reads it.
	conn.Close()
	waitForGauge(t, 0)
}

// A client dropped on a failed broadcast write must leave the gauge,
// not just the client map.
func TestBroadcastDropUpdatesGauge(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	serverConn := <-conns

	hub.register <- serverConn
	waitForGauge(t, 1)

	// Kill the connection so the next broadcast write fails.
	serverConn.Close()
	hub.Publish("prices", map[string]string{"AAPL": "150"})
	waitForGauge(t, 0)
}

func waitForGauge(t *testing.T, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.WebSocketClients) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gauge never reached %v (at %v)", want, testutil.ToFloat64(metrics.WebSocketClients))
}
