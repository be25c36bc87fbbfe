package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
	pgForeignKey         = "23503"
)

// Constraint names declared in migrations/001_core.sql.
const (
	ConstraintSlotBooking    = "slot_booking_doctor_date_slot_key"
	ConstraintSlotVisit      = "slot_booking_visit_id_key"
	ConstraintOpenByResource = "admission_open_resource_idx"
	ConstraintOpenByVisit    = "admission_open_visit_idx"
	ConstraintOTRoomWindow   = "operation_room_window_excl"
	ConstraintResourceNumber = "resource_ward_number_key"
)

// MapConstraintError translates storage constraint violations into domain
// errors. Anything else is returned unchanged.
func MapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgExclusionViolation:
		switch pgErr.ConstraintName {
		case ConstraintSlotBooking, ConstraintSlotVisit:
			return apperr.Wrap(apperr.KindSlotConflict, err, "slot is already booked")
		case ConstraintOpenByResource:
			return apperr.Wrap(apperr.KindResourceOccupied, err, "resource is already occupied")
		case ConstraintOpenByVisit:
			return apperr.Wrap(apperr.KindValidation, err, "visit already has an open admission")
		case ConstraintOTRoomWindow:
			return apperr.Wrap(apperr.KindOTRoomConflict, err, "operating room is booked for an overlapping window")
		case ConstraintResourceNumber:
			return apperr.Wrap(apperr.KindValidation, err, "a resource with this ward and number already exists")
		}
	case pgForeignKey:
		return apperr.Wrap(apperr.KindResourceInUse, err, "record is referenced by %s", pgErr.TableName)
	}
	return err
}

// IsNoRows reports whether err is pgx's empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
