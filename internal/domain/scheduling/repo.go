package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ShiftRepository stores doctor shift templates, one per doctor.
type ShiftRepository interface {
	Upsert(ctx context.Context, s *DoctorShift) error
	Get(ctx context.Context, doctorID uuid.UUID) (*DoctorShift, error)
}

// BookingRepository is the authoritative slot allocation table. Create
// fails with apperr.KindSlotConflict when the slot or the visit is already
// booked.
type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Booking, error)
	UpdateSlot(ctx context.Context, visitID uuid.UUID, slot string) error
	DeleteByVisit(ctx context.Context, visitID uuid.UUID) error
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error)
}
