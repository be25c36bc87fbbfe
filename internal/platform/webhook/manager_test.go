package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSignPayload_RoundTrip(t *testing.T) {
	payload := []byte(`{"type":"vital.critical"}`)
	sig := SignPayload(payload, "s3cret")
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if !VerifySignature(payload, "s3cret", sig) {
		t.Error("expected signature to verify")
	}
	if VerifySignature(payload, "other", sig) {
		t.Error("expected wrong secret to fail")
	}
	if VerifySignature([]byte(`{}`), "s3cret", sig) {
		t.Error("expected tampered payload to fail")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://pager.example/hook", false},
		{"http://localhost:9000/alerts", false},
		{"", true},
		{"ftp://pager.example", true},
		{"https://", true},
		{"::bad", true},
	}
	for _, tt := range tests {
		if err := ValidateURL(tt.url); (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q): err=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestEventMatches(t *testing.T) {
	tests := []struct {
		pattern, event string
		want           bool
	}{
		{"vital.critical", "vital.critical", true},
		{"vital.*", "vital.critical", true},
		{"*.critical", "vital.critical", true},
		{"*", "operation.completed", true},
		{"vital.*", "operation.completed", false},
		{"vital.normal", "vital.critical", false},
	}
	for _, tt := range tests {
		if got := eventMatches(tt.pattern, tt.event); got != tt.want {
			t.Errorf("eventMatches(%q, %q) = %v, want %v", tt.pattern, tt.event, got, tt.want)
		}
	}
}

func TestNewDispatcher_RejectsBadEndpoint(t *testing.T) {
	if _, err := NewDispatcher([]Endpoint{{URL: "mailto:ward@example"}}, zerolog.Nop()); err == nil {
		t.Fatal("expected invalid endpoint to be rejected")
	}
}

type received struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func TestDispatcher_DeliversSignedEvent(t *testing.T) {
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.bodies = append(got.bodies, body)
		got.sigs = append(got.sigs, r.Header.Get("X-Webhook-Signature"))
		got.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]Endpoint{{URL: srv.URL, Secret: "k", Events: []string{"vital.*"}}}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	d.Start(context.Background())
	if !d.Enqueue(Event{Type: "vital.critical", ResourceType: "VitalReading", ResourceID: "r-1"}) {
		t.Fatal("enqueue failed")
	}
	if !d.Enqueue(Event{Type: "operation.completed"}) {
		t.Fatal("enqueue failed")
	}
	d.Close(context.Background())

	if got.count() != 1 {
		t.Fatalf("expected only the matching event delivered, got %d", got.count())
	}
	if !strings.HasPrefix(got.sigs[0], "sha256=") || !VerifySignature(got.bodies[0], "k", strings.TrimPrefix(got.sigs[0], "sha256=")) {
		t.Errorf("bad signature %q", got.sigs[0])
	}
	var ev Event
	if err := json.Unmarshal(got.bodies[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() || ev.ResourceID != "r-1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var attempts []DeliveryAttempt
	var mu sync.Mutex
	d, err := NewDispatcher([]Endpoint{{URL: srv.URL}}, zerolog.Nop(),
		WithRetryDelays(time.Millisecond, time.Millisecond, time.Millisecond),
		WithObserver(func(a DeliveryAttempt) {
			mu.Lock()
			attempts = append(attempts, a)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatal(err)
	}
	d.Start(context.Background())
	d.Enqueue(Event{Type: "vital.critical"})
	d.Close(context.Background())

	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].StatusCode != http.StatusBadGateway || attempts[0].Success() {
		t.Errorf("expected first attempt to fail with 502, got %+v", attempts[0])
	}
	if last := attempts[2]; !last.Success() || last.Attempt != 3 {
		t.Errorf("expected third attempt to succeed, got %+v", last)
	}
}

func TestDispatcher_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, _ := NewDispatcher([]Endpoint{{URL: srv.URL}}, zerolog.Nop(), WithRetryDelays(time.Millisecond))
	d.Start(context.Background())
	d.Enqueue(Event{Type: "vital.critical"})
	d.Close(context.Background())

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestDispatcher_QueueFullAndClosed(t *testing.T) {
	d, _ := NewDispatcher(nil, zerolog.Nop(), WithQueueSize(1))
	if !d.Enqueue(Event{Type: "a"}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if d.Enqueue(Event{Type: "b"}) {
		t.Error("expected enqueue on a full queue to fail")
	}
	d.Start(context.Background())
	d.Close(context.Background())
	d.Close(context.Background())
	if d.Enqueue(Event{Type: "c"}) {
		t.Error("expected enqueue after close to fail")
	}
}

func TestDispatcher_CloseIsBoundedByContext(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, _ := NewDispatcher([]Endpoint{{URL: srv.URL}}, zerolog.Nop(),
		WithRetryDelays(300*time.Millisecond, 300*time.Millisecond))
	d.Start(context.Background())
	for i := 0; i < 5; i++ {
		d.Enqueue(Event{Type: "vital.critical"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := d.Close(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Close blocked for %v", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n >= 15 {
		t.Errorf("expected the remaining queue to be dropped, got %d posts", n)
	}
}
