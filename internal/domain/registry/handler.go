package registry

import (
	"net/http"
	"strconv"

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
	// Read endpoints – every ward-facing role
	readGroup := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleOT, auth.RoleSupport, auth.RoleBilling))
	readGroup.GET("/resources", h.ListResources)
	readGroup.GET("/resources/:id", h.GetResource)

	// Write endpoints – support staff
	writeGroup := api.Group("", auth.RequireRole(auth.RoleSupport))
	writeGroup.POST("/resources", h.CreateResource)
	writeGroup.PATCH("/resources/:id/availability", h.SetAvailability)
	writeGroup.PATCH("/resources/:id/cleaning", h.SetCleaningStatus)
	writeGroup.DELETE("/resources/:id", h.DeleteResource)
}

type createResourceRequest struct {
	Ward           int    `json:"ward"`
	Number         int    `json:"number"`
	Type           string `json:"type"`
	Availability   string `json:"availability"`
	CleaningStatus string `json:"cleaning_status"`
}

type availabilityRequest struct {
	Availability string `json:"availability"`
}

type cleaningRequest struct {
	CleaningStatus string `json:"cleaning_status"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateResource(c echo.Context) error {
	var req createResourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &Resource{
		Ward:           req.Ward,
		Number:         req.Number,
		Type:           ResourceType(req.Type),
		Availability:   Availability(req.Availability),
		CleaningStatus: CleaningStatus(req.CleaningStatus),
	}
	if err := h.svc.Create(c.Request().Context(), r); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetResource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListResources(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("type"); v != "" {
		t, err := ParseResourceType(v)
		if err != nil {
			return err
		}
		f.Type = &t
	}
	if v := c.QueryParam("availability"); v != "" {
		a, err := ParseAvailability(v)
		if err != nil {
			return err
		}
		f.Availability = &a
	}
	if v := c.QueryParam("ward"); v != "" {
		ward, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ward")
		}
		f.Ward = &ward
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.SetAvailability(c.Request().Context(), id, Availability(req.Availability))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SetCleaningStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cleaningRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.SetCleaningStatus(c.Request().Context(), id, CleaningStatus(req.CleaningStatus))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteResource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
