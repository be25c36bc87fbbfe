package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
)

// Allocator owns appointment slots. It is the only writer of bookings; a
// slot is free when it lies in the doctor's working window and no booking
// holds it.
type Allocator struct {
	shifts   ShiftRepository
	bookings BookingRepository
	tx       db.Transactor
	locker   lock.Locker
	width    time.Duration
	metrics  *telemetry.Collector
}

func NewAllocator(shifts ShiftRepository, bookings BookingRepository, tx db.Transactor, locker lock.Locker, width time.Duration) *Allocator {
	if width <= 0 {
		width = 30 * time.Minute
	}
	return &Allocator{shifts: shifts, bookings: bookings, tx: tx, locker: locker, width: width}
}

// WithMetrics records allocation outcomes on c.
func (a *Allocator) WithMetrics(c *telemetry.Collector) *Allocator {
	a.metrics = c
	return a
}

// SlotWidth is the configured slot width.
func (a *Allocator) SlotWidth() time.Duration { return a.width }

// NormalizeSlot canonicalises a slot label for the configured width.
func (a *Allocator) NormalizeSlot(raw string) (string, error) {
	label, err := clock.NormalizeSlotLabel(raw, a.width)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "invalid slot %q", raw)
	}
	return label, nil
}

func (a *Allocator) SetShift(ctx context.Context, s *DoctorShift) error {
	if s.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	parsed, err := s.Shift()
	if err != nil {
		return err
	}
	// Store canonical HH:MM forms.
	s.ShiftStart, s.ShiftEnd = parsed.Start.String(), parsed.End.String()
	if parsed.HasBreak {
		s.BreakStart, s.BreakEnd = parsed.BreakStart.String(), parsed.BreakEnd.String()
	}
	if len(clock.GenerateSlots(parsed, a.width)) == 0 {
		return apperr.Validation("shift %s-%s leaves no %s slots", s.ShiftStart, s.ShiftEnd, a.width)
	}
	return a.shifts.Upsert(ctx, s)
}

func (a *Allocator) GetShift(ctx context.Context, doctorID uuid.UUID) (*DoctorShift, error) {
	return a.shifts.Get(ctx, doctorID)
}

// WorkingSlots lists every slot of the doctor's shift, ignoring bookings.
func (a *Allocator) WorkingSlots(ctx context.Context, doctorID uuid.UUID) ([]string, error) {
	ds, err := a.shifts.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	shift, err := ds.Shift()
	if err != nil {
		return nil, err
	}
	return clock.Labels(clock.GenerateSlots(shift, a.width)), nil
}

// AvailableSlots returns the doctor's free slots on date in chronological order.
func (a *Allocator) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	return a.freeSlots(ctx, doctorID, clock.DateOf(date), uuid.Nil)
}

// freeSlots lists working slots not booked by anyone other than ignore.
func (a *Allocator) freeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, ignore uuid.UUID) ([]string, error) {
	working, err := a.WorkingSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	booked, err := a.bookings.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		if b.VisitID != ignore {
			taken[b.Slot] = struct{}{}
		}
	}
	free := make([]string, 0, len(working))
	for _, s := range working {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free, nil
}

func contains(slots []string, s string) bool {
	for _, v := range slots {
		if v == s {
			return true
		}
	}
	return false
}

func (a *Allocator) slotLock(ctx context.Context, doctorID uuid.UUID, date time.Time) (context.Context, func(), error) {
	return lock.Acquire(ctx, a.locker, LockKey(doctorID, date))
}

// LockKey is the key serialising bookings for a doctor's day. Callers that
// book inside a wider unit of work acquire it up front.
func LockKey(doctorID uuid.UUID, date time.Time) string {
	return lock.SlotKey(doctorID.String(), clock.DateOf(date).Format(clock.DateLayout))
}

// BookSlot binds visitID to slot on the doctor's date. The slot must be one
// of AvailableSlots at commit time, otherwise SlotConflict.
func (a *Allocator) BookSlot(ctx context.Context, visitID, doctorID uuid.UUID, date time.Time, slot string) (b *Booking, err error) {
	defer func() { a.metrics.Allocation("book_slot", err) }()

	label, err := a.NormalizeSlot(slot)
	if err != nil {
		return nil, err
	}
	date = clock.DateOf(date)

	ctx, end := telemetry.StartSpan(ctx, "scheduling.BookSlot",
		attribute.String("doctor.id", doctorID.String()), attribute.String("slot", label))
	defer func() { end(err) }()

	ctx, unlock, err := a.slotLock(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		free, err := a.freeSlots(ctx, doctorID, date, uuid.Nil)
		if err != nil {
			return err
		}
		if !contains(free, label) {
			return apperr.SlotConflict("slot %s is not available for doctor %s on %s",
				label, doctorID, date.Format(clock.DateLayout))
		}
		b = &Booking{VisitID: visitID, DoctorID: doctorID, Date: date, Slot: label}
		return a.bookings.Create(ctx, b)
	})
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("visit_id", visitID.String()).Str("slot", label).Msg("slot booking rejected")
		return nil, err
	}
	return b, nil
}

// RescheduleSlot moves the visit's booking to newSlot on the same day. The
// visit's own booking does not count against the new slot.
func (a *Allocator) RescheduleSlot(ctx context.Context, visitID uuid.UUID, newSlot string) (b *Booking, err error) {
	defer func() { a.metrics.Allocation("reschedule_slot", err) }()

	label, err := a.NormalizeSlot(newSlot)
	if err != nil {
		return nil, err
	}
	current, err := a.bookings.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	ctx, end := telemetry.StartSpan(ctx, "scheduling.RescheduleSlot",
		attribute.String("visit.id", visitID.String()), attribute.String("slot", label))
	defer func() { end(err) }()

	ctx, unlock, err := a.slotLock(ctx, current.DoctorID, current.Date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := a.bookings.GetByVisit(ctx, visitID)
		if err != nil {
			return err
		}
		if cur.Slot == label {
			b = cur
			return nil
		}
		free, err := a.freeSlots(ctx, cur.DoctorID, cur.Date, visitID)
		if err != nil {
			return err
		}
		if !contains(free, label) {
			return apperr.SlotConflict("slot %s is not available for doctor %s on %s",
				label, cur.DoctorID, cur.DateKey())
		}
		if err := a.bookings.UpdateSlot(ctx, visitID, label); err != nil {
			return err
		}
		cur.Slot = label
		b = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ReleaseSlot frees the visit's booking. Releasing a visit without a
// booking is a no-op.
func (a *Allocator) ReleaseSlot(ctx context.Context, visitID uuid.UUID) (err error) {
	defer func() { a.metrics.Allocation("release_slot", err) }()

	current, err := a.bookings.GetByVisit(ctx, visitID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx, unlock, err := a.slotLock(ctx, current.DoctorID, current.Date)
	if err != nil {
		return err
	}
	defer unlock()

	return a.tx.WithinTx(ctx, func(ctx context.Context) error {
		return a.bookings.DeleteByVisit(ctx, visitID)
	})
}

// Booking returns the visit's current booking.
func (a *Allocator) Booking(ctx context.Context, visitID uuid.UUID) (*Booking, error) {
	return a.bookings.GetByVisit(ctx, visitID)
}

// Bookings lists the doctor's booked slots on date.
func (a *Allocator) Bookings(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error) {
	return a.bookings.ListByDoctorDate(ctx, doctorID, clock.DateOf(date))
}
