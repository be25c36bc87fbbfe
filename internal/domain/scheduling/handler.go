package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/auth"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
)

type Handler struct {
	alloc *Allocator
	clock clock.Clock
}

func NewHandler(alloc *Allocator, c clock.Clock) *Handler {
	if c == nil {
		c = clock.System{}
	}
	return &Handler{alloc: alloc, clock: c}
}

func (h *Handler) RegisterRoutes(api *echo.Group, _ *echo.Group) {
	// Read endpoints – front desk and clinicians
	readGroup := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleDoctor, auth.RoleNurse))
	readGroup.GET("/doctors/:id/slots", h.AvailableSlots)
	readGroup.GET("/doctors/:id/bookings", h.ListBookings)
	readGroup.GET("/doctors/:id/shift", h.GetShift)

	// Shift templates are pushed by the doctor directory sync
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.PUT("/doctors/:id/shift", h.PutShift)
}

type slotsResponse struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	SlotMinutes int       `json:"slot_minutes"`
	Slots       []string  `json:"slots"`
}

type shiftRequest struct {
	ShiftStart string `json:"shift_start"`
	ShiftEnd   string `json:"shift_end"`
	BreakStart string `json:"break_start"`
	BreakEnd   string `json:"break_end"`
}

func doctorID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	return id, nil
}

// queryDate reads ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) queryDate(c echo.Context) (time.Time, error) {
	v := c.QueryParam("date")
	if v == "" || v == "today" {
		return clock.DateOf(h.clock.Now()), nil
	}
	d, err := clock.ParseDate(v)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, err, "invalid date")
	}
	return d, nil
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	date, err := h.queryDate(c)
	if err != nil {
		return err
	}
	slots, err := h.alloc.AvailableSlots(c.Request().Context(), id, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slotsResponse{
		DoctorID:    id,
		Date:        date.Format(clock.DateLayout),
		SlotMinutes: int(h.alloc.SlotWidth() / time.Minute),
		Slots:       slots,
	})
}

func (h *Handler) ListBookings(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	date, err := h.queryDate(c)
	if err != nil {
		return err
	}
	items, err := h.alloc.Bookings(c.Request().Context(), id, date)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Booking{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetShift(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	s, err := h.alloc.GetShift(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) PutShift(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	var req shiftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s := &DoctorShift{
		DoctorID:   id,
		ShiftStart: req.ShiftStart,
		ShiftEnd:   req.ShiftEnd,
		BreakStart: req.BreakStart,
		BreakEnd:   req.BreakEnd,
	}
	if err := h.alloc.SetShift(c.Request().Context(), s); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
