package nursing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/domain/visit"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
)

// VisitLookup resolves the visit a reading belongs to.
type VisitLookup interface {
	GetVisit(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
}

// nopSink drops alerts.
type nopSink struct{}

func (nopSink) CriticalReading(context.Context, *VitalReading, Assessment) {}

type Service struct {
	readings Repository
	visits   VisitLookup
	alerts   AlertSink
	clock    clock.Clock
	metrics  *telemetry.Collector
}

func NewService(readings Repository, visits VisitLookup, alerts AlertSink) *Service {
	if alerts == nil {
		alerts = nopSink{}
	}
	return &Service{readings: readings, visits: visits, alerts: alerts, clock: clock.System{}}
}

func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) WithMetrics(c *telemetry.Collector) *Service {
	s.metrics = c
	return s
}

func validateReading(r *VitalReading) error {
	switch {
	case r.Systolic <= 0 || r.Systolic > 300:
		return apperr.Validation("systolic must be between 1 and 300, got %d", r.Systolic)
	case r.Diastolic <= 0 || r.Diastolic > 200:
		return apperr.Validation("diastolic must be between 1 and 200, got %d", r.Diastolic)
	case r.Diastolic >= r.Systolic:
		return apperr.Validation("diastolic (%d) must be below systolic (%d)", r.Diastolic, r.Systolic)
	case r.Pulse <= 0 || r.Pulse > 300:
		return apperr.Validation("pulse must be between 1 and 300, got %d", r.Pulse)
	case r.TemperatureF < 80 || r.TemperatureF > 115:
		return apperr.Validation("temperature_f must be between 80 and 115, got %.1f", r.TemperatureF)
	case r.SpO2 <= 0 || r.SpO2 > 100:
		return apperr.Validation("spo2 must be between 1 and 100, got %d", r.SpO2)
	}
	return nil
}

func (s *Service) assess(ctx context.Context, r *VitalReading) *AssessedReading {
	a := Assess(r)
	if a.Critical {
		for _, v := range a.Flagged {
			s.metrics.CriticalVital(string(v))
		}
		s.alerts.CriticalReading(ctx, r, a)
	}
	return &AssessedReading{VitalReading: r, Assessment: a}
}

// Record stores a reading for a visit. The patient is taken from the
// visit; a conflicting patient_id is rejected.
func (s *Service) Record(ctx context.Context, r *VitalReading) (*AssessedReading, error) {
	if r.VisitID == uuid.Nil {
		return nil, apperr.Validation("visit_id is required")
	}
	if err := validateReading(r); err != nil {
		return nil, err
	}
	v, err := s.visits.GetVisit(ctx, r.VisitID)
	if err != nil {
		return nil, err
	}
	if v.Status == visit.StatusCancelled {
		return nil, apperr.New(apperr.KindInvalidTransition, "visit %s is CANCELLED", v.ID)
	}
	if r.PatientID != uuid.Nil && r.PatientID != v.PatientID {
		return nil, apperr.Validation("patient_id %s does not match visit %s", r.PatientID, v.ID)
	}
	r.PatientID = v.PatientID
	if r.RecordedAt.IsZero() {
		r.RecordedAt = s.clock.Now()
	}
	if err := s.readings.Create(ctx, r); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("reading_id", r.ID.String()).Str("visit_id", r.VisitID.String()).Msg("vitals recorded")
	return s.assess(ctx, r), nil
}

// Correct replaces the measured values of an existing reading. The visit
// and patient of a reading never change.
func (s *Service) Correct(ctx context.Context, id uuid.UUID, in *VitalReading) (*AssessedReading, error) {
	if err := validateReading(in); err != nil {
		return nil, err
	}
	r, err := s.readings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.VisitID != uuid.Nil && in.VisitID != r.VisitID {
		return nil, apperr.Validation("a reading cannot be moved to another visit")
	}
	r.Systolic, r.Diastolic, r.Pulse = in.Systolic, in.Diastolic, in.Pulse
	r.TemperatureF, r.SpO2 = in.TemperatureF, in.SpO2
	if in.NurseID != nil {
		r.NurseID = in.NurseID
	}
	if !in.RecordedAt.IsZero() {
		r.RecordedAt = in.RecordedAt
	}
	if err := s.readings.Update(ctx, r); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("reading_id", id.String()).Msg("vitals corrected")
	return s.assess(ctx, r), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AssessedReading, error) {
	r, err := s.readings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AssessedReading{VitalReading: r, Assessment: Assess(r)}, nil
}

func (s *Service) ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*AssessedReading, int, error) {
	items, total, err := s.readings.ListByVisit(ctx, visitID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*AssessedReading, len(items))
	for i, r := range items {
		out[i] = &AssessedReading{VitalReading: r, Assessment: Assess(r)}
	}
	return out, total, nil
}
