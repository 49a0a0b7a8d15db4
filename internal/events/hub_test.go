package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	var mu sync.Mutex
	var lines []LineEvent
	var completes []CompleteEvent

	onLine := func(ev LineEvent) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, ev)
	}
	onComplete := func(ev CompleteEvent) {
		mu.Lock()
		defer mu.Unlock()
		completes = append(completes, ev)
	}

	if err := bus.SubscribeLine(onLine); err != nil {
		t.Fatalf("SubscribeLine failed: %v", err)
	}
	if err := bus.SubscribeComplete(onComplete); err != nil {
		t.Fatalf("SubscribeComplete failed: %v", err)
	}

	bus.PublishLine("s1", "line text", "full text")
	bus.PublishComplete("s1", "final text")

	// EventBus delivers synchronously for plain subscribers
	mu.Lock()
	defer mu.Unlock()

	if len(lines) != 1 {
		t.Fatalf("Expected 1 line event, got %d", len(lines))
	}
	if lines[0].SessionID != "s1" || lines[0].Text != "line text" || lines[0].FullText != "full text" {
		t.Errorf("Unexpected line event: %+v", lines[0])
	}

	if len(completes) != 1 {
		t.Fatalf("Expected 1 complete event, got %d", len(completes))
	}
	if completes[0].FullText != "final text" {
		t.Errorf("Unexpected complete event: %+v", completes[0])
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(testLogger())

	var mu sync.Mutex
	count := 0
	onLine := func(ev LineEvent) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}

	if err := bus.SubscribeLine(onLine); err != nil {
		t.Fatalf("SubscribeLine failed: %v", err)
	}

	bus.PublishLine("s1", "a", "a")

	if err := bus.UnsubscribeLine(onLine); err != nil {
		t.Fatalf("UnsubscribeLine failed: %v", err)
	}

	bus.PublishLine("s1", "b", "a\nb")

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("Expected 1 delivery after unsubscribe, got %d", count)
	}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("Expected %d clients, have %d", want, hub.ClientCount())
}

func TestHubBroadcastsLineEvents(t *testing.T) {
	bus := NewBus(testLogger())
	hub, err := NewHub(bus, testLogger())
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	bus.PublishLine("s1", "[00:00 → 00:02] Speaker 1: hi", "[00:00 → 00:02] Speaker 1: hi")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("Event is not JSON: %v", err)
	}

	if ev["event"] != "transcription_update" {
		t.Errorf("Expected transcription_update, got %v", ev["event"])
	}
	if ev["session_id"] != "s1" {
		t.Errorf("Expected session s1, got %v", ev["session_id"])
	}
	if !strings.Contains(ev["text"].(string), "Speaker 1") {
		t.Errorf("Unexpected text payload: %v", ev["text"])
	}
}

func TestHubBroadcastsCompleteEvents(t *testing.T) {
	bus := NewBus(testLogger())
	hub, err := NewHub(bus, testLogger())
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	bus.PublishComplete("s1", "the whole transcript")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("Event is not JSON: %v", err)
	}

	if ev["event"] != "transcription_complete" {
		t.Errorf("Expected transcription_complete, got %v", ev["event"])
	}
	if ev["full_text"] != "the whole transcript" {
		t.Errorf("Unexpected full_text: %v", ev["full_text"])
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	bus := NewBus(testLogger())
	hub, err := NewHub(bus, testLogger())
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Close()

	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients after close, got %d", hub.ClientCount())
	}

	// Publishing after close reaches no one and does not panic
	bus.PublishLine("s1", "x", "x")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
