package surgery

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	// Read endpoints – theatre, clinical and billing staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleOT, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleReception, auth.RoleBilling))
	readGroup.GET("/operations", h.ListOperations)
	readGroup.GET("/operations/:id", h.GetOperation)

	// Write endpoints – theatre staff and surgeons
	writeGroup := api.Group("", auth.RequireRole(auth.RoleOT, auth.RoleDoctor))
	writeGroup.POST("/operations", h.CreateOperation)
	writeGroup.PATCH("/operations/:id", h.UpdateOperation)
}

type createOperationRequest struct {
	VisitID         uuid.UUID  `json:"visit_id"`
	Name            string     `json:"name"`
	SurgeonID       uuid.UUID  `json:"surgeon_id"`
	ResourceID      *uuid.UUID `json:"resource_id"`
	ScheduledTime   *time.Time `json:"scheduled_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Notes           string     `json:"notes"`
	Checklist       Checklist  `json:"checklist"`
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

func (h *Handler) CreateOperation(c echo.Context) error {
	var req createOperationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o := &Operation{
		VisitID:         req.VisitID,
		Name:            req.Name,
		SurgeonID:       req.SurgeonID,
		ResourceID:      req.ResourceID,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Checklist:       req.Checklist,
	}
	create := h.svc.CreateOperation
	if o.ResourceID != nil && o.ScheduledTime != nil {
		create = h.svc.Schedule
	}
	if err := create(c.Request().Context(), o); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOperation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOperation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOperations(c echo.Context) error {
	var f Filter
	var err error
	if f.ResourceID, err = queryUUID(c, "resource"); err != nil {
		return err
	}
	if f.VisitID, err = queryUUID(c, "visit"); err != nil {
		return err
	}
	if f.SurgeonID, err = queryUUID(c, "surgeon"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return err
		}
		f.Status = &st
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOperations(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateOperation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.UpdateOperation(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}
