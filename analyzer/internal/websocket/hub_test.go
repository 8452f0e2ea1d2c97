package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/gorilla/websocket"
)

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastFiltersBySession(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	a := dial(t, server, "a")
	defer a.Close()
	b := dial(t, server, "b")
	defer b.Close()
	waitClients(t, hub, 2)

	hub.BroadcastBeats("a", []session.BeatRecord{{SessionID: "a", Seq: 0, R: 125}, {SessionID: "a", Seq: 1, R: 325}})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("Client a did not receive beats: %v", err)
	}
	var msg BeatsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Bad message: %v", err)
	}
	if msg.Type != "beats" || msg.SessionID != "a" || len(msg.Beats) != 2 || msg.Beats[1].R != 325 {
		t.Errorf("Unexpected message: %+v", msg)
	}

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("Client b must not receive beats of session a")
	}
}

func TestHub_AllSessionsSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	all := dial(t, server, "")
	defer all.Close()
	waitClients(t, hub, 1)

	hub.ObserveCorrection(&session.Analysis{SessionID: "x", HeartRateBPM: 75})

	all.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := all.ReadMessage()
	if err != nil {
		t.Fatalf("Subscriber did not receive analysis: %v", err)
	}
	var msg AnalysisMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Bad message: %v", err)
	}
	if msg.Type != "rr_analysis" || msg.Analysis == nil || msg.Analysis.HeartRateBPM != 75 {
		t.Errorf("Unexpected message: %+v", msg)
	}
}

func TestHub_EmptyBeatsNotSent(t *testing.T) {
	hub := NewHub()
	hub.BroadcastBeats("a", nil)
	if len(hub.broadcast) != 0 {
		t.Error("Empty beat batch must not be queued")
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server, "a")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}
