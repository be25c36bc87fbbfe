package nursing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/platform/webhook"
	"github.com/ehr/hms-scheduler/internal/platform/websocket"
)

func criticalReading() *VitalReading {
	return &VitalReading{ID: uuid.New(), VisitID: uuid.New(), PatientID: uuid.New(),
		Systolic: 120, Diastolic: 80, Pulse: 150, TemperatureF: 98.6, SpO2: 97}
}

func TestBroadcastSink_PublishesToWardAndVisit(t *testing.T) {
	hub := websocket.NewHub()
	r := criticalReading()
	ward := websocket.NewClient(TopicCriticalVitals)
	bedside := websocket.NewClient(VisitTopic(r.VisitID.String()))
	hub.Register(ward)
	hub.Register(bedside)

	NewBroadcastSink(hub).CriticalReading(context.Background(), r, Assess(r))

	for name, c := range map[string]*websocket.Client{"ward": ward, "bedside": bedside} {
		select {
		case data := <-c.Send:
			var ev websocket.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("%s: decode: %v", name, err)
			}
			if ev.Type != EventCriticalVital || ev.EntityID != r.ID.String() {
				t.Errorf("%s: unexpected event %+v", name, ev)
			}
			var payload AssessedReading
			if err := json.Unmarshal(ev.Data, &payload); err != nil {
				t.Fatalf("%s: decode payload: %v", name, err)
			}
			if payload.Assessment.Pulse != LevelCritical || payload.Pulse != 150 {
				t.Errorf("%s: unexpected payload %+v", name, payload.Assessment)
			}
		default:
			t.Errorf("%s: no event delivered", name)
		}
	}
}

func TestSinks_FanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	r := criticalReading()
	Sinks{a, b}.CriticalReading(context.Background(), r, Assess(r))
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("expected each sink called once, got %d and %d", a.count(), b.count())
	}
}

func TestWebhookSink_PostsSignedAlert(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhook.VerifySignature(body, "pager", r.Header.Get("X-Webhook-Signature")[len("sha256="):]) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		bodies <- body
	}))
	defer srv.Close()

	d, err := webhook.NewDispatcher([]webhook.Endpoint{{URL: srv.URL, Secret: "pager"}}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	d.Start(context.Background())
	r := criticalReading()
	NewWebhookSink(d).CriticalReading(context.Background(), r, Assess(r))
	d.Close(context.Background())

	select {
	case body := <-bodies:
		var ev webhook.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != EventCriticalVital || ev.ResourceID != r.ID.String() {
			t.Errorf("unexpected event %+v", ev)
		}
		var payload AssessedReading
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if !payload.Assessment.Critical {
			t.Error("expected critical assessment in payload")
		}
	default:
		t.Fatal("no webhook delivered")
	}
}
