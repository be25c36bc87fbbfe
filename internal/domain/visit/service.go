package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/domain/scheduling"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/enum"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
)

var (
	visitTypes = []VisitType{TypeOPD, TypeIPD, TypeEmergency}
	statuses   = []Status{StatusActive, StatusOnHold, StatusCompleted, StatusCancelled}
	colorCodes = []ColorCode{ColorRed, ColorOrange, ColorYellow, ColorGreen, ColorBlack}
)

func ParseVisitType(s string) (VisitType, error) {
	if t, ok := enum.Parse(s, visitTypes...); ok {
		return t, nil
	}
	return "", apperr.Validation("invalid visit type %q, expected one of %s", s, enum.Join(visitTypes...))
}

func ParseStatus(s string) (Status, error) {
	if st, ok := enum.Parse(s, statuses...); ok {
		return st, nil
	}
	return "", apperr.Validation("invalid visit status %q, expected one of %s", s, enum.Join(statuses...))
}

func ParseColorCode(s string) (ColorCode, error) {
	if c, ok := enum.Parse(s, colorCodes...); ok {
		return c, nil
	}
	return "", apperr.Validation("invalid color coding %q, expected one of %s", s, enum.Join(colorCodes...))
}

// SlotAllocator is the part of the slot allocator visits depend on.
type SlotAllocator interface {
	NormalizeSlot(raw string) (string, error)
	BookSlot(ctx context.Context, visitID, doctorID uuid.UUID, date time.Time, slot string) (*scheduling.Booking, error)
	RescheduleSlot(ctx context.Context, visitID uuid.UUID, newSlot string) (*scheduling.Booking, error)
	ReleaseSlot(ctx context.Context, visitID uuid.UUID) error
}

type Service struct {
	visits     VisitRepository
	admissions AdmissionRepository
	resources  registry.Repository
	slots      SlotAllocator
	tx         db.Transactor
	locker     lock.Locker
	clock      clock.Clock
	metrics    *telemetry.Collector
}

func NewService(visits VisitRepository, admissions AdmissionRepository, resources registry.Repository,
	slots SlotAllocator, tx db.Transactor, locker lock.Locker) *Service {
	return &Service{
		visits:     visits,
		admissions: admissions,
		resources:  resources,
		slots:      slots,
		tx:         tx,
		locker:     locker,
		clock:      clock.System{},
	}
}

// WithClock overrides the time source used for defaults.
func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

// WithMetrics records transitions and allocation outcomes on c.
func (s *Service) WithMetrics(c *telemetry.Collector) *Service {
	s.metrics = c
	return s
}

func visitKey(id uuid.UUID) string { return lock.VisitKey(id.String()) }

func resourceKey(id uuid.UUID) string { return lock.ResourceKey(id.String()) }

// slotKeys returns the slot lock for a visit holding a slot.
func slotKeys(v *Visit) []string {
	if !v.HoldsSlot() {
		return nil
	}
	return []string{scheduling.LockKey(*v.DoctorID, v.Date)}
}

// =========== Visits ===========

// CreateVisit registers a visit in ACTIVE state. OPD visits need a doctor,
// a date and a slot, and the slot is booked in the same unit of work.
func (s *Service) CreateVisit(ctx context.Context, v *Visit) (err error) {
	if v.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if v.Type, err = ParseVisitType(string(v.Type)); err != nil {
		return err
	}
	if v.Date.IsZero() {
		v.Date = s.clock.Now()
	}
	v.Date = clock.DateOf(v.Date)
	v.Status = StatusActive

	if v.ColorCoding != "" {
		if v.Type != TypeEmergency {
			return apperr.Validation("color_coding only applies to EMERGENCY visits")
		}
		if v.ColorCoding, err = ParseColorCode(string(v.ColorCoding)); err != nil {
			return err
		}
	}

	if v.Type != TypeOPD {
		if v.Slot != "" {
			return apperr.Validation("slot only applies to OPD visits")
		}
		if err := s.visits.Create(ctx, v); err != nil {
			return err
		}
		s.metrics.Transition("visit", string(v.Status))
		return nil
	}

	if v.DoctorID == nil || *v.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required for OPD visits")
	}
	if v.Slot, err = s.slots.NormalizeSlot(v.Slot); err != nil {
		return err
	}

	ctx, unlock, err := lock.Acquire(ctx, s.locker, scheduling.LockKey(*v.DoctorID, v.Date))
	if err != nil {
		return err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.visits.Create(ctx, v); err != nil {
			return err
		}
		b, err := s.slots.BookSlot(ctx, v.ID, *v.DoctorID, v.Date, v.Slot)
		if err != nil {
			return err
		}
		v.Slot = b.Slot
		return nil
	})
	if err != nil {
		v.ID = uuid.Nil
		return err
	}
	s.metrics.Transition("visit", string(v.Status))
	zerolog.Ctx(ctx).Info().Str("visit_id", v.ID.String()).Str("slot", v.Slot).Msg("opd visit booked")
	return nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, f VisitFilter, limit, offset int) ([]*Visit, int, error) {
	if f.Date != nil {
		d := clock.DateOf(*f.Date)
		f.Date = &d
	}
	return s.visits.List(ctx, f, limit, offset)
}

// TransitionVisit applies a status change. Cancelling frees the slot;
// completing or cancelling a visit that still occupies a bed is rejected.
func (s *Service) TransitionVisit(ctx context.Context, id uuid.UUID, to Status) (*Visit, error) {
	to, err := ParseStatus(string(to))
	if err != nil {
		return nil, err
	}
	current, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := append([]string{visitKey(id)}, slotKeys(current)...)
	ctx, unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Visit
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(v.Status, to) {
			return apperr.InvalidTransition(string(v.Status), string(to))
		}
		if to.Terminal() {
			open, err := s.admissions.OpenByVisit(ctx, id)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			if open != nil {
				return apperr.New(apperr.KindInvalidTransition,
					"cannot move visit to %s while admission %s is open; discharge first", to, open.ID)
			}
		}
		if to == StatusCancelled && v.HoldsSlot() {
			if err := s.slots.ReleaseSlot(ctx, id); err != nil {
				return err
			}
		}
		v.Status = to
		if err := s.visits.Update(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition("visit", string(to))
	zerolog.Ctx(ctx).Info().Str("visit_id", id.String()).Str("status", string(to)).Msg("visit status changed")
	return out, nil
}

// RescheduleVisit moves an ACTIVE OPD visit to another slot of the same day.
func (s *Service) RescheduleVisit(ctx context.Context, id uuid.UUID, slot string) (*Visit, error) {
	current, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusActive {
		return nil, apperr.New(apperr.KindInvalidTransition, "visit in %s cannot be rescheduled", current.Status)
	}
	if !current.HoldsSlot() {
		return nil, apperr.Validation("visit %s does not hold an appointment slot", id)
	}

	keys := append([]string{visitKey(id)}, slotKeys(current)...)
	ctx, unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Visit
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != StatusActive {
			return apperr.New(apperr.KindInvalidTransition, "visit in %s cannot be rescheduled", v.Status)
		}
		b, err := s.slots.RescheduleSlot(ctx, id, slot)
		if err != nil {
			return err
		}
		v.Slot = b.Slot
		if err := s.visits.Update(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// =========== Admissions ===========

// Admit binds an ACTIVE visit to an AVAILABLE bed and marks the bed
// OCCUPIED. Re-admitting a visit to the bed it already holds updates that
// admission. An OPD visit becomes IPD.
func (s *Service) Admit(ctx context.Context, a *Admission) (out *Admission, err error) {
	defer func() { s.metrics.Allocation("admit", err) }()

	if a.VisitID == uuid.Nil {
		return nil, apperr.Validation("visit_id is required")
	}
	if a.ResourceID == uuid.Nil {
		return nil, apperr.Validation("resource_id is required")
	}
	if a.BedPrice < 0 {
		return nil, apperr.Validation("bed_price cannot be negative")
	}
	if a.AdmittedAt.IsZero() {
		a.AdmittedAt = s.clock.Now()
	}
	if a.DischargedAt != nil {
		return nil, apperr.Validation("use discharge to close an admission")
	}

	ctx, end := telemetry.StartSpan(ctx, "visit.Admit",
		attribute.String("visit.id", a.VisitID.String()), attribute.String("resource.id", a.ResourceID.String()))
	defer func() { end(err) }()

	ctx, unlock, err := lock.Acquire(ctx, s.locker, visitKey(a.VisitID), resourceKey(a.ResourceID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetByID(ctx, a.VisitID)
		if err != nil {
			return err
		}
		if v.Status != StatusActive {
			return apperr.New(apperr.KindInvalidTransition, "visit in %s cannot be admitted", v.Status)
		}
		r, err := s.resources.GetByID(ctx, a.ResourceID)
		if err != nil {
			return err
		}
		if !r.IsBed() {
			return apperr.Validation("resource %d/%d is an %s room, not a bed", r.Ward, r.Number, r.Type)
		}

		open, err := s.admissions.OpenByVisit(ctx, a.VisitID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		if open != nil {
			if open.ResourceID != a.ResourceID {
				return apperr.Validation("visit already has open admission %s; update it to transfer beds", open.ID)
			}
			open.AdmittedAt = a.AdmittedAt
			open.BedPrice = a.BedPrice
			if err := s.admissions.Update(ctx, open); err != nil {
				return err
			}
			out = open
			return nil
		}

		if r.Availability != registry.Available {
			return apperr.ResourceOccupied("resource %d/%d is %s", r.Ward, r.Number, r.Availability)
		}
		if err := s.admissions.Create(ctx, a); err != nil {
			return err
		}
		r.Availability = registry.Occupied
		if err := s.resources.Update(ctx, r); err != nil {
			return err
		}
		if v.Type == TypeOPD {
			v.Type = TypeIPD
			if err := s.visits.Update(ctx, v); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("visit_id", a.VisitID.String()).Msg("admission rejected")
		return nil, err
	}
	s.metrics.Transition("resource", string(registry.Occupied))
	return out, nil
}

// release returns a bed to the pool dirty.
func (s *Service) release(ctx context.Context, resourceID uuid.UUID) error {
	r, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		return err
	}
	r.Availability = registry.Available
	r.CleaningStatus = registry.NotCleaned
	return s.resources.Update(ctx, r)
}

// Discharge closes an open admission. The bed becomes AVAILABLE and
// NOT_CLEANED.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID, dischargedAt time.Time) (out *Admission, err error) {
	defer func() { s.metrics.Allocation("discharge", err) }()

	current, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dischargedAt.IsZero() {
		dischargedAt = s.clock.Now()
	}

	ctx, unlock, err := lock.Acquire(ctx, s.locker, visitKey(current.VisitID), resourceKey(current.ResourceID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !a.Open() {
			return apperr.New(apperr.KindInvalidTransition, "admission %s is already discharged", id)
		}
		if dischargedAt.Before(a.AdmittedAt) {
			return apperr.Validation("discharged_at is before admitted_at")
		}
		a.DischargedAt = &dischargedAt
		if err := s.admissions.Update(ctx, a); err != nil {
			return err
		}
		if err := s.release(ctx, a.ResourceID); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition("resource", string(registry.Available))
	zerolog.Ctx(ctx).Info().Str("admission_id", id.String()).Msg("patient discharged")
	return out, nil
}

// UpdateAdmission corrects an open admission. Moving it to another bed
// checks the target first, then frees the old bed and occupies the new one
// in the same unit of work. Setting discharged_at discharges it. Discharged
// admissions are immutable.
func (s *Service) UpdateAdmission(ctx context.Context, id uuid.UUID, p AdmissionPatch) (out *Admission, err error) {
	defer func() { s.metrics.Allocation("update_admission", err) }()

	if p.BedPrice != nil && *p.BedPrice < 0 {
		return nil, apperr.Validation("bed_price cannot be negative")
	}
	current, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []string{visitKey(current.VisitID), resourceKey(current.ResourceID)}
	if p.ResourceID != nil {
		keys = append(keys, resourceKey(*p.ResourceID))
	}
	ctx, unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !a.Open() {
			return apperr.New(apperr.KindInvalidTransition, "admission %s is discharged and cannot be changed", id)
		}

		if p.ResourceID != nil && *p.ResourceID != a.ResourceID {
			if err := s.transfer(ctx, a, *p.ResourceID); err != nil {
				return err
			}
		}
		if p.AdmittedAt != nil {
			a.AdmittedAt = *p.AdmittedAt
		}
		if p.BedPrice != nil {
			a.BedPrice = *p.BedPrice
		}
		if p.DischargedAt != nil {
			d := *p.DischargedAt
			a.DischargedAt = &d
		}
		if a.DischargedAt != nil && a.DischargedAt.Before(a.AdmittedAt) {
			return apperr.Validation("discharged_at is before admitted_at")
		}
		if err := s.admissions.Update(ctx, a); err != nil {
			return err
		}
		if !a.Open() {
			if err := s.release(ctx, a.ResourceID); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Service) transfer(ctx context.Context, a *Admission, to uuid.UUID) error {
	target, err := s.resources.GetByID(ctx, to)
	if err != nil {
		return err
	}
	if !target.IsBed() {
		return apperr.Validation("resource %d/%d is an %s room, not a bed", target.Ward, target.Number, target.Type)
	}
	if target.Availability != registry.Available {
		return apperr.ResourceOccupied("resource %d/%d is %s", target.Ward, target.Number, target.Availability)
	}
	if err := s.release(ctx, a.ResourceID); err != nil {
		return err
	}
	target.Availability = registry.Occupied
	if err := s.resources.Update(ctx, target); err != nil {
		return err
	}
	a.ResourceID = to
	return nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.admissions.GetByID(ctx, id)
}

func (s *Service) ListAdmissions(ctx context.Context, f AdmissionFilter, limit, offset int) ([]*Admission, int, error) {
	return s.admissions.List(ctx, f, limit, offset)
}
