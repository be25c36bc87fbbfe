package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

// =========== Shift Repository ===========

type shiftRepoPG struct{ pool *pgxpool.Pool }

func NewShiftRepoPG(pool *pgxpool.Pool) ShiftRepository { return &shiftRepoPG{pool: pool} }

func (r *shiftRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *shiftRepoPG) Upsert(ctx context.Context, s *DoctorShift) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_shift (doctor_id, shift_start, shift_end, break_start, break_end)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (doctor_id) DO UPDATE SET
			shift_start = EXCLUDED.shift_start, shift_end = EXCLUDED.shift_end,
			break_start = EXCLUDED.break_start, break_end = EXCLUDED.break_end, updated_at = NOW()
		RETURNING updated_at`,
		s.DoctorID, s.ShiftStart, s.ShiftEnd, s.BreakStart, s.BreakEnd,
	).Scan(&s.UpdatedAt)
}

func (r *shiftRepoPG) Get(ctx context.Context, doctorID uuid.UUID) (*DoctorShift, error) {
	var s DoctorShift
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT doctor_id, shift_start, shift_end, break_start, break_end, updated_at
		FROM doctor_shift WHERE doctor_id = $1`, doctorID,
	).Scan(&s.DoctorID, &s.ShiftStart, &s.ShiftEnd, &s.BreakStart, &s.BreakEnd, &s.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("shift for doctor", doctorID.String())
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bookingCols = `id, visit_id, doctor_id, visit_date, slot, created_at`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.VisitID, &b.DoctorID, &b.Date, &b.Slot, &b.CreatedAt)
	return &b, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO slot_booking (id, visit_id, doctor_id, visit_date, slot)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		b.ID, b.VisitID, b.DoctorID, b.Date, b.Slot,
	).Scan(&b.CreatedAt)
	return db.MapConstraintError(err)
}

func (r *bookingRepoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM slot_booking WHERE visit_id = $1`, visitID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("booking for visit", visitID.String())
	}
	return b, err
}

func (r *bookingRepoPG) UpdateSlot(ctx context.Context, visitID uuid.UUID, slot string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE slot_booking SET slot = $2 WHERE visit_id = $1`, visitID, slot)
	if err != nil {
		return db.MapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking for visit", visitID.String())
	}
	return nil
}

func (r *bookingRepoPG) DeleteByVisit(ctx context.Context, visitID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM slot_booking WHERE visit_id = $1`, visitID)
	return err
}

func (r *bookingRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+` FROM slot_booking
		WHERE doctor_id = $1 AND visit_date = $2
		ORDER BY slot`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
