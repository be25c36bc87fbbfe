package visit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/auth"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, _ *echo.Group) {
	// Read endpoints – ward staff and billing
	readGroup := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleOT, auth.RoleBilling, auth.RoleSupport))
	readGroup.GET("/visits", h.ListVisits)
	readGroup.GET("/visits/:id", h.GetVisit)
	readGroup.GET("/admissions", h.ListAdmissions)
	readGroup.GET("/admissions/:id", h.GetAdmission)

	// Visit writes – front desk and doctors
	visitGroup := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleDoctor))
	visitGroup.POST("/visits", h.CreateVisit)
	visitGroup.PATCH("/visits/:id/status", h.TransitionVisit)
	visitGroup.PATCH("/visits/:id/slot", h.RescheduleVisit)

	// Admission writes – front desk, doctors and nurses
	admitGroup := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleDoctor, auth.RoleNurse))
	admitGroup.POST("/admissions", h.Admit)
	admitGroup.PATCH("/admissions/:id", h.UpdateAdmission)
	admitGroup.POST("/admissions/:id/discharge", h.Discharge)
}

type createVisitRequest struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       *uuid.UUID `json:"doctor_id"`
	Type           string     `json:"type"`
	Date           string     `json:"date"`
	Slot           string     `json:"slot"`
	ColorCoding    string     `json:"color_coding"`
	ChiefComplaint string     `json:"chief_complaint"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type slotRequest struct {
	Slot string `json:"slot"`
}

type admitRequest struct {
	VisitID    uuid.UUID  `json:"visit_id"`
	ResourceID uuid.UUID  `json:"resource_id"`
	AdmittedAt *time.Time `json:"admitted_at"`
	BedPrice   int        `json:"bed_price"`
}

type dischargeRequest struct {
	DischargedAt *time.Time `json:"discharged_at"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

// -- Visit Handlers --

func (h *Handler) CreateVisit(c echo.Context) error {
	var req createVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := &Visit{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Type:           VisitType(req.Type),
		Slot:           req.Slot,
		ColorCoding:    ColorCode(req.ColorCoding),
		ChiefComplaint: req.ChiefComplaint,
	}
	if req.Date != "" {
		d, err := clock.ParseDate(req.Date)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid date")
		}
		v.Date = d
	}
	if err := h.svc.CreateVisit(c.Request().Context(), v); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	var f VisitFilter
	var err error
	if f.DoctorID, err = queryUUID(c, "doctor"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patient"); err != nil {
		return err
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := clock.ParseDate(v)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid date")
		}
		f.Date = &d
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return err
		}
		f.Status = &st
	}
	if v := c.QueryParam("type"); v != "" {
		t, err := ParseVisitType(v)
		if err != nil {
			return err
		}
		f.Type = &t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListVisits(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) TransitionVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.TransitionVisit(c.Request().Context(), id, Status(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) RescheduleVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.RescheduleVisit(c.Request().Context(), id, req.Slot)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// -- Admission Handlers --

func (h *Handler) Admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a := &Admission{VisitID: req.VisitID, ResourceID: req.ResourceID, BedPrice: req.BedPrice}
	if req.AdmittedAt != nil {
		a.AdmittedAt = *req.AdmittedAt
	}
	out, err := h.svc.Admit(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetAdmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAdmissions(c echo.Context) error {
	var f AdmissionFilter
	var err error
	if f.ResourceID, err = queryUUID(c, "resource"); err != nil {
		return err
	}
	if f.VisitID, err = queryUUID(c, "visit"); err != nil {
		return err
	}
	if v := c.QueryParam("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid open")
		}
		f.Open = &open
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdmissions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateAdmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p AdmissionPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAdmission(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var at time.Time
	if req.DischargedAt != nil {
		at = *req.DischargedAt
	}
	a, err := h.svc.Discharge(c.Request().Context(), id, at)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
