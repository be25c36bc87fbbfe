// Package webhook delivers signed event notifications to external systems
// such as paging gateways. Events are queued and posted by a background
// worker with HMAC-SHA256 signatures and bounded retries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one notification posted to every matching endpoint.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Endpoint is a delivery target. Events lists the event type patterns it
// receives; empty means all.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// DeliveryAttempt records a single POST of an event to an endpoint.
type DeliveryAttempt struct {
	EndpointURL string
	EventID     string
	Attempt     int
	StatusCode  int
	Duration    time.Duration
	Error       string
}

func (a DeliveryAttempt) Success() bool { return a.Error == "" }

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// ValidateURL requires an absolute http or https URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}
	return nil
}

// eventMatches supports exact types and "*", "prefix.*" and "*.suffix".
func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetryDelays sets the waits between attempts. An event is tried
// len(delays)+1 times.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.delays = delays }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Event, n) }
}

// WithObserver is called after every attempt.
func WithObserver(fn func(DeliveryAttempt)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// Dispatcher queues events and delivers them from a single worker.
type Dispatcher struct {
	endpoints []Endpoint
	client    *http.Client
	delays    []time.Duration
	queue     chan Event
	observe   func(DeliveryAttempt)
	logger    zerolog.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	closeMu sync.Mutex
	closed  bool
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	for _, ep := range endpoints {
		if err := ValidateURL(ep.URL); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 10 * time.Second},
		delays:    []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		queue:     make(chan Event, 256),
		logger:    logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Start runs the delivery worker until ctx is cancelled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.closeMu.Lock()
	d.cancel = cancel
	d.closeMu.Unlock()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-d.queue:
				if !ok || ctx.Err() != nil {
					return
				}
				d.deliver(ctx, ev)
			}
		}
	}()
}

// Enqueue stamps and queues ev. It returns false when the queue is full or
// the dispatcher is closed; the event is dropped.
func (d *Dispatcher) Enqueue(ev Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Warn().Str("event_type", ev.Type).Msg("webhook queue full, event dropped")
		return false
	}
}

// Close stops accepting events and delivers what is queued until ctx is
// done. Past that point in-flight retries are abandoned and the remaining
// events are dropped; ctx.Err() is returned in that case.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	cancel := d.cancel
	d.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		d.logger.Warn().Int("dropped", len(d.queue)).Msg("webhook drain cut short")
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", ev.ID).Msg("marshal webhook event")
		return
	}
	for _, ep := range d.endpoints {
		if !ep.wants(ev.Type) {
			continue
		}
		d.deliverWithRetry(ctx, ep, ev.ID, payload)
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, eventID string, payload []byte) {
	for attempt := 1; ; attempt++ {
		a := d.Post(ctx, ep, eventID, payload)
		a.Attempt = attempt
		if d.observe != nil {
			d.observe(a)
		}
		if a.Success() {
			return
		}
		if attempt > len(d.delays) {
			d.logger.Error().Str("url", ep.URL).Str("event_id", eventID).Int("attempts", attempt).
				Str("error", a.Error).Msg("webhook delivery failed")
			return
		}
		d.logger.Warn().Str("url", ep.URL).Str("event_id", eventID).Int("attempt", attempt).
			Str("error", a.Error).Msg("webhook delivery failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.delays[attempt-1]):
		}
	}
}

// Post signs payload and sends it once.
func (d *Dispatcher) Post(ctx context.Context, ep Endpoint, eventID string, payload []byte) DeliveryAttempt {
	a := DeliveryAttempt{EndpointURL: ep.URL, EventID: eventID, Attempt: 1}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		a.Error = err.Error()
		return a
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event-ID", eventID)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, ep.Secret))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	a.Duration = time.Since(start)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	a.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return a
}
