// Package websocket pushes live events to ward dashboards. Clients subscribe
// to topics and receive every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is one notification sent to subscribers of Topic.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	EntityID  string          `json:"entity_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher delivers events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one connected dashboard.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

func NewClient(topics ...string) *Client {
	return &Client{ID: uuid.New().String(), Topics: topics, Send: make(chan []byte, sendBuffer)}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> clients
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
}

// Register adds a client with its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister drops the client and closes its Send channel. Calling it twice
// is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(client, topics)
	client.Topics = append(client.Topics, topics...)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topics)

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a subscribe or unsubscribe request. Unknown
// actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch strings.ToLower(msg.Action) {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends event to every subscriber of topic. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
			delivered++
		default:
		}
	}
	return delivered
}

// Publish broadcasts to the event's topic.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	n := h.Broadcast(event.Topic, event)
	zerolog.Ctx(ctx).Debug().Str("topic", event.Topic).Str("type", event.Type).Int("delivered", n).Msg("event published")
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// =========== Handler ===========

// Handler upgrades HTTP requests to WebSocket connections on the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts connections whose Origin is in origins. An empty list
// or "*" allows any origin.
func NewHandler(hub *Hub, origins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Connect upgrades the request. Initial topics may be given as
// ?topics=a,b; more can be added with subscribe messages.
func (h *Handler) Connect(c echo.Context) error {
	var topics []string
	for _, t := range strings.Split(c.QueryParam("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(topics...)
	h.hub.Register(client)
	h.logger.Debug().Str("client_id", client.ID).Strs("topics", topics).Msg("websocket client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		h.logger.Debug().Str("client_id", client.ID).Msg("websocket client disconnected")
	}()
	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
