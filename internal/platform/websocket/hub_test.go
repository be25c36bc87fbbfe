package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := NewClient("vitals.critical")
	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount("vitals.critical") != 1 {
		t.Fatalf("expected 1 client on topic, got %d/%d", hub.ClientCount(), hub.TopicCount("vitals.critical"))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount("vitals.critical") != 0 {
		t.Fatalf("expected hub empty, got %d/%d", hub.ClientCount(), hub.TopicCount("vitals.critical"))
	}
	if _, open := <-c.Send; open {
		t.Error("expected Send closed after unregister")
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub()
	ward := NewClient("ward:2")
	other := NewClient("ward:3")
	hub.Register(ward)
	hub.Register(other)

	n := hub.Broadcast("ward:2", Event{Type: "vital.critical", Topic: "ward:2", EntityID: "r-1"})
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if ev := receive(t, ward); ev.EntityID != "r-1" || ev.Type != "vital.critical" {
		t.Errorf("unexpected event %+v", ev)
	}
	select {
	case <-other.Send:
		t.Error("non-subscriber received the event")
	default:
	}

	if n := hub.Broadcast("nobody", Event{Topic: "nobody"}); n != 0 {
		t.Errorf("expected 0 deliveries on empty topic, got %d", n)
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub()
	c := &Client{ID: "slow", Topics: []string{"t"}, Send: make(chan []byte, 1)}
	hub.Register(c)
	hub.Broadcast("t", Event{Topic: "t"})
	if n := hub.Broadcast("t", Event{Topic: "t"}); n != 0 {
		t.Errorf("expected full client to be skipped, got %d", n)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := NewClient("a", "b", "c")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"a", "c"}})
	if hub.TopicCount("a") != 0 || hub.TopicCount("b") != 1 || hub.TopicCount("c") != 0 {
		t.Fatalf("unexpected topic counts a=%d b=%d c=%d", hub.TopicCount("a"), hub.TopicCount("b"), hub.TopicCount("c"))
	}
	if len(c.Topics) != 1 || c.Topics[0] != "b" {
		t.Errorf("expected remaining topics [b], got %v", c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "SUBSCRIBE", Topics: []string{"d"}})
	hub.ProcessMessage(c, ClientMessage{Action: "shout", Topics: []string{"e"}})
	if hub.TopicCount("d") != 1 || hub.TopicCount("e") != 0 {
		t.Errorf("expected d subscribed and e ignored")
	}
}

func TestHub_PublishStampsTime(t *testing.T) {
	hub := NewHub()
	c := NewClient("vitals.critical")
	hub.Register(c)

	var pub EventPublisher = hub
	if err := pub.Publish(context.Background(), Event{Type: "vital.critical", Topic: "vitals.critical"}); err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, c); ev.Timestamp.IsZero() {
		t.Error("expected Publish to stamp a timestamp")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient("t")
			hub.Register(c)
			hub.Broadcast("t", Event{Topic: "t"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	h := NewHandler(NewHub(), nil, zerolog.Nop())
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)
	if err := h.Connect(c); err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for a non-websocket request")
	}
}

func TestHandler_OriginCheck(t *testing.T) {
	h := NewHandler(NewHub(), []string{"https://ward.example"}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if h.upgrader.CheckOrigin(req) {
		t.Error("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://ward.example")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected configured origin to be allowed")
	}
}

func TestHandler_FullUpgrade(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, []string{"*"}, zerolog.Nop())
	e := echo.New()
	e.GET("/ws", h.Connect)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=ward:2"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"vitals.critical"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("vitals.critical") != 1 || hub.TopicCount("ward:2") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions not registered: ward=%d vitals=%d", hub.TopicCount("ward:2"), hub.TopicCount("vitals.critical"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("vitals.critical", Event{Type: "vital.critical", Topic: "vitals.critical", EntityID: "reading-1"})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.EntityID != "reading-1" {
		t.Errorf("expected reading-1, got %+v", got)
	}
}
