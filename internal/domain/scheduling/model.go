package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
)

// DoctorShift is a doctor's daily working template as supplied by the
// doctor directory. Times are "HH:MM"; the break is optional.
type DoctorShift struct {
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ShiftStart string    `db:"shift_start" json:"shift_start"`
	ShiftEnd   string    `db:"shift_end" json:"shift_end"`
	BreakStart string    `db:"break_start" json:"break_start,omitempty"`
	BreakEnd   string    `db:"break_end" json:"break_end,omitempty"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Shift parses the template.
func (d *DoctorShift) Shift() (clock.Shift, error) {
	s, err := clock.ParseShift(d.ShiftStart, d.ShiftEnd, d.BreakStart, d.BreakEnd)
	if err != nil {
		return clock.Shift{}, apperr.Wrap(apperr.KindValidation, err, "invalid shift for doctor %s", d.DoctorID)
	}
	return s, nil
}

// Booking binds a visit to one slot of a doctor's day. At most one booking
// exists per (doctor, date, slot) and per visit.
type Booking struct {
	ID        uuid.UUID `db:"id" json:"id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date      time.Time `db:"visit_date" json:"date"`
	Slot      string    `db:"slot" json:"slot"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DateKey renders the booking date as YYYY-MM-DD.
func (b *Booking) DateKey() string {
	return b.Date.Format(clock.DateLayout)
}

func sameDayKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format(clock.DateLayout)
}
