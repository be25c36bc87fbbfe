package nursing

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/auth"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, _ *echo.Group) {
	// Read endpoints – clinical staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleDoctor, auth.RoleOT))
	readGroup.GET("/vitals", h.List)
	readGroup.GET("/vitals/:id", h.Get)
	readGroup.POST("/vitals/classify", h.Classify)

	// Write endpoints – nurses record and correct readings
	writeGroup := api.Group("", auth.RequireRole(auth.RoleNurse))
	writeGroup.POST("/vitals", h.Record)
	writeGroup.PUT("/vitals/:id", h.Correct)
}

type readingRequest struct {
	VisitID      uuid.UUID  `json:"visit_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	NurseID      *uuid.UUID `json:"nurse_id"`
	Systolic     int        `json:"systolic"`
	Diastolic    int        `json:"diastolic"`
	Pulse        int        `json:"pulse"`
	TemperatureF float64    `json:"temperature_f"`
	SpO2         int        `json:"spo2"`
	RecordedAt   *time.Time `json:"recorded_at"`
}

func (req readingRequest) reading() *VitalReading {
	r := &VitalReading{
		VisitID:      req.VisitID,
		PatientID:    req.PatientID,
		NurseID:      req.NurseID,
		Systolic:     req.Systolic,
		Diastolic:    req.Diastolic,
		Pulse:        req.Pulse,
		TemperatureF: req.TemperatureF,
		SpO2:         req.SpO2,
	}
	if req.RecordedAt != nil {
		r.RecordedAt = *req.RecordedAt
	}
	return r
}

type classifyRequest struct {
	Type   string   `json:"type"`
	Value  float64  `json:"value"`
	Value2 *float64 `json:"value2"`
}

type classifyResponse struct {
	Type  VitalType `json:"type"`
	Level Level     `json:"level"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// nurseFromContext defaults the recording nurse to the caller.
func nurseFromContext(c echo.Context, r *VitalReading) {
	if r.NurseID != nil {
		return
	}
	if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		r.NurseID = &id
	}
}

func (h *Handler) Record(c echo.Context) error {
	var req readingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := req.reading()
	nurseFromContext(c, r)
	out, err := h.svc.Record(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Correct(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req readingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Correct(c.Request().Context(), id, req.reading())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) List(c echo.Context) error {
	raw := c.QueryParam("visit")
	if raw == "" {
		return apperr.Validation("visit query parameter is required")
	}
	visitID, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByVisit(c.Request().Context(), visitID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Classify(c echo.Context) error {
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	vital, err := ParseVitalType(req.Type)
	if err != nil {
		return err
	}
	var extra []float64
	if req.Value2 != nil {
		extra = append(extra, *req.Value2)
	}
	lvl, err := Classify(vital, req.Value, extra...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, classifyResponse{Type: vital, Level: lvl})
}
