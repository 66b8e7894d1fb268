// Package ws streams committed ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Config configures a Hub.
type Config struct {
	// Channels are the signal bus channels relayed to clients.
	Channels []string
	// AllowedOrigins restricts the Origin header; empty allows all.
	AllowedOrigins []string
	Mode           string
	StartedAt      time.Time
}

// client is one WebSocket connection. An empty market or topic filter
// matches everything.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	markets map[string]bool
	topics  map[string]bool
}

// subscribeMsg narrows (or widens) what a client receives:
//
//	{"action":"subscribe","markets":["1"],"topics":["market_resolved"]}
//	{"action":"unsubscribe","markets":["1"]}
type subscribeMsg struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
	Topics  []string `json:"topics"`
}

// Hub relays ledger events from the signal bus to connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub reading cfg.Channels from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"ch:ledger"}
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run subscribes to the bus and serves the hub loop until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range h.cfg.Channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.Error("ws: subscribe failed", slog.String("channel", ch), slog.String("error", err.Error()))
			continue
		}
		h.logger.Info("ws: subscribed", slog.String("channel", ch))
		go h.relay(ctx, ch, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case data := <-h.broadcast:
			h.fanOut(data)
		}
	}
}

func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fanOut sends one event to every client whose filters match it.
func (h *Hub) fanOut(data []byte) {
	var head struct {
		Topic    string `json:"topic"`
		MarketID string `json:"market_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		h.logger.Warn("ws: dropping undecodable event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(head.MarketID, head.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		markets: make(map[string]bool),
		topics:  make(map[string]bool),
	}
	c.sendStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(marketID, topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.markets) > 0 && !c.markets[marketID] {
		return false
	}
	if len(c.topics) > 0 && !c.topics[topic] {
		return false
	}
	return true
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, m := range msg.Markets {
			c.markets[m] = true
		}
		for _, t := range msg.Topics {
			c.topics[t] = true
		}
	case "unsubscribe":
		for _, m := range msg.Markets {
			delete(c.markets, m)
		}
		for _, t := range msg.Topics {
			delete(c.topics, t)
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.apply(sub)
		}
	}
}

// sendStatus greets a new client so it can mark the stream healthy before
// any event arrives.
func (c *client) sendStatus() {
	msg, err := json.Marshal(map[string]any{
		"type": "ledger_status",
		"payload": map[string]any{
			"mode":           c.hub.cfg.Mode,
			"channels":       c.hub.cfg.Channels,
			"uptime_seconds": max(0, int64(time.Since(c.hub.cfg.StartedAt).Seconds())),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump sends events as text frames plus periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
