package nursing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/platform/webhook"
	"github.com/ehr/hms-scheduler/internal/platform/websocket"
)

// Live alert topics. Dashboards subscribe to the ward-wide topic or to a
// single visit.
const (
	TopicCriticalVitals = "vitals.critical"
	EventCriticalVital  = "vital.critical"
)

func VisitTopic(visitID string) string { return "visit:" + visitID }

// AlertSink is notified when a reading carries a critical value.
type AlertSink interface {
	CriticalReading(ctx context.Context, r *VitalReading, a Assessment)
}

// LogSink writes critical readings at warn level, through the request
// logger when ctx carries one.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) CriticalReading(ctx context.Context, r *VitalReading, a Assessment) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}
	logger.Warn().
		Str("component", "vital-alerts").
		Str("reading_id", r.ID.String()).
		Str("visit_id", r.VisitID.String()).
		Str("patient_id", r.PatientID.String()).
		Str("critical", joinVitals(a.Flagged)).
		Int("systolic", r.Systolic).
		Int("diastolic", r.Diastolic).
		Int("pulse", r.Pulse).
		Float64("temperature_f", r.TemperatureF).
		Int("spo2", r.SpO2).
		Msg("critical vital signs recorded")
}

func joinVitals(vs []VitalType) string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = string(v)
	}
	return strings.Join(names, ",")
}

// BroadcastSink pushes critical readings to live dashboards, once on the
// ward-wide topic and once on the visit topic.
type BroadcastSink struct {
	pub websocket.EventPublisher
}

func NewBroadcastSink(pub websocket.EventPublisher) *BroadcastSink {
	return &BroadcastSink{pub: pub}
}

func (s *BroadcastSink) CriticalReading(ctx context.Context, r *VitalReading, a Assessment) {
	data, err := json.Marshal(AssessedReading{VitalReading: r, Assessment: a})
	if err != nil {
		return
	}
	for _, topic := range []string{TopicCriticalVitals, VisitTopic(r.VisitID.String())} {
		ev := websocket.Event{Type: EventCriticalVital, Topic: topic, EntityID: r.ID.String(), Data: data}
		if err := s.pub.Publish(ctx, ev); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("publish critical vital")
		}
	}
}

// WebhookSink queues critical readings for external paging systems.
type WebhookSink struct {
	d *webhook.Dispatcher
}

func NewWebhookSink(d *webhook.Dispatcher) *WebhookSink {
	return &WebhookSink{d: d}
}

func (s *WebhookSink) CriticalReading(ctx context.Context, r *VitalReading, a Assessment) {
	data, err := json.Marshal(AssessedReading{VitalReading: r, Assessment: a})
	if err != nil {
		return
	}
	ev := webhook.Event{Type: EventCriticalVital, ResourceType: "VitalReading", ResourceID: r.ID.String(), Payload: data}
	if !s.d.Enqueue(ev) {
		zerolog.Ctx(ctx).Warn().Str("reading_id", r.ID.String()).Msg("critical vital webhook not queued")
	}
}

// Sinks fans a critical reading out to every sink in order.
type Sinks []AlertSink

func (s Sinks) CriticalReading(ctx context.Context, r *VitalReading, a Assessment) {
	for _, sink := range s {
		sink.CriticalReading(ctx, r, a)
	}
}
