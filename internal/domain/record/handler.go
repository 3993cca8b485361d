package record

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthcard/healthcard/internal/domain/audit"
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
	api.POST("/records", h.CreateRecord, auth.RequireRole(auth.RoleDoctor))
	api.GET("/records", h.ListRecords)
	api.GET("/records/:id", h.GetRecord)
	api.POST("/prescriptions", h.CreatePrescriptions, auth.RequireRole(auth.RoleDoctor))
	api.GET("/prescriptions", h.ListPrescriptions)
}

type createRecordRequest struct {
	PatientID   string  `json:"patient_id"`
	RecordType  string  `json:"record_type"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Diagnosis   *string `json:"diagnosis"`
	Treatment   *string `json:"treatment"`
	VisitDate   string  `json:"visit_date"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	ctx := c.Request().Context()

	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	rec, err := h.svc.CreateRecord(ctx, audit.ActorFromContext(ctx), audit.RequestAddr(c.Request()), CreateRecordInput{
		PatientID:   patientID,
		RecordType:  req.RecordType,
		Title:       req.Title,
		Description: req.Description,
		Diagnosis:   req.Diagnosis,
		Treatment:   req.Treatment,
		VisitDate:   req.VisitDate,
	})
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	rec, err := h.svc.GetRecord(ctx, audit.ActorFromContext(ctx), audit.RequestAddr(c.Request()), id)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &id
	}

	items, total, err := h.svc.ListRecords(ctx, audit.ActorFromContext(ctx), audit.RequestAddr(c.Request()), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type createPrescriptionsRequest struct {
	PatientID       string              `json:"patient_id"`
	MedicalRecordID *string             `json:"medical_record_id"`
	Prescriptions   []PrescriptionInput `json:"prescriptions"`
}

func (h *Handler) CreatePrescriptions(c echo.Context) error {
	ctx := c.Request().Context()

	var req createPrescriptionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	var recordID *uuid.UUID
	if req.MedicalRecordID != nil {
		id, err := uuid.Parse(*req.MedicalRecordID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid medical_record_id")
		}
		recordID = &id
	}

	created, err := h.svc.CreatePrescriptions(ctx, audit.ActorFromContext(ctx), audit.RequestAddr(c.Request()), patientID, recordID, req.Prescriptions)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &id
	}

	items, total, err := h.svc.ListPrescriptions(ctx, audit.ActorFromContext(ctx), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func recordError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
