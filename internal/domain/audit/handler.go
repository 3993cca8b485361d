package audit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthcard/healthcard/internal/platform/auth"
	"github.com/healthcard/healthcard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-logs", h.ListAuditLogs)
	api.GET("/audit-logs/patient/:patientID", h.GetPatientTrail, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) ListAuditLogs(c echo.Context) error {
	actor := ActorFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	var filters ListFilters
	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filters.PatientID = &pid
	}
	filters.ResourceType = c.QueryParam("resource_type")

	items, total, err := h.svc.ListEntries(c.Request().Context(), actor, filters, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatientTrail(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	actor := ActorFromContext(c.Request().Context())

	trail, err := h.svc.PatientTrail(c.Request().Context(), actor, patientID)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, trail)
}
