package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/patients", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RolePharmacist, auth.RolePhysiotherapist))
	read.GET("", h.SearchPatients)
	read.GET("/:id", h.GetPatient)

	write := api.Group("/patients", auth.RequireRole(auth.RoleReceptionist))
	write.POST("", h.CreatePatient)
	write.PUT("/:id", h.UpdatePatient)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case apperr.IsInvalid(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.CreatedBy = auth.ActorRef(c.Request().Context())
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// GetPatient accepts either the row UUID or the PT code.
func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "name", "phone", "patient_id", "q")
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p.Limit, p.Offset))
}
