package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictledger/internal/events"
)

func TestHub_RelaysLedgerEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := events.NewLocalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != "ledger_status" || status.Payload["mode"] != "server" {
		t.Fatalf("status = %+v", status)
	}

	// The hub subscribed before it accepted the client, so this publish
	// is not lost.
	evt := `{"id":"1","topic":"market_created","market_id":"7","timestamp":1,"payload":{}}`
	if err := bus.Publish(ctx, events.DefaultChannel, []byte(evt)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("frame type = %d, want text", msgType)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got["market_id"] != "7" || got["topic"] != "market_created" {
		t.Errorf("event = %v", got)
	}
}

func TestClient_Filters(t *testing.T) {
	c := &client{markets: map[string]bool{}, topics: map[string]bool{}}
	if !c.wants("1", "market_created") {
		t.Fatal("empty filters should match everything")
	}

	c.apply(subscribeMsg{Action: "subscribe", Markets: []string{"2"}})
	if c.wants("1", "market_created") || !c.wants("2", "market_created") {
		t.Error("market filter not applied")
	}

	c.apply(subscribeMsg{Action: "subscribe", Topics: []string{"market_resolved"}})
	if c.wants("2", "market_created") || !c.wants("2", "market_resolved") {
		t.Error("topic filter not applied")
	}

	c.apply(subscribeMsg{Action: "unsubscribe", Markets: []string{"2"}, Topics: []string{"market_resolved"}})
	if !c.wants("9", "anything") {
		t.Error("unsubscribing everything should match everything again")
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	h := NewHub(events.NewLocalBus(), slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		AllowedOrigins: []string{"https://app.example"},
	})
	req := httptest.NewRequest("GET", "/ws", nil)
	if !h.checkOrigin(req) {
		t.Error("missing origin should pass")
	}
	req.Header.Set("Origin", "https://app.example")
	if !h.checkOrigin(req) {
		t.Error("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://other.example")
	if h.checkOrigin(req) {
		t.Error("foreign origin accepted")
	}
}
