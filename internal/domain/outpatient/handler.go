package outpatient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/internal/platform/printing"
	"github.com/carepoint/opd/pkg/pagination"
)

type Handler struct {
	svc     *Service
	printer *printing.Printer
}

func NewHandler(svc *Service, printer *printing.Printer) *Handler {
	return &Handler{svc: svc, printer: printer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := api.Group("/op-registrations", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("", h.Register)
	desk.GET("/:id/ticket", h.PrintTicket)

	read := api.Group("/op-registrations", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RolePharmacist, auth.RolePhysiotherapist))
	read.GET("", h.Search)
	read.GET("/queue", h.Queue)
	read.GET("/:id", h.Get)

	api.GET("/patients/:id/visits", h.History,
		auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))

	doctor := api.Group("/op-registrations", auth.RequireRole(auth.RoleDoctor))
	doctor.PUT("/:id/consultation", h.Consult)
	doctor.POST("/:id/complete", h.Complete)

	cancel := api.Group("/op-registrations", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))
	cancel.POST("/:id/cancel", h.Cancel)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "registration not found")
	case errors.Is(err, ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrActorRequired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case apperr.IsInvalid(err), errors.Is(err, ErrUnknownPatient), errors.Is(err, ErrUnknownDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.svc.Register(c.Request().Context(), req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, reg)
}

// Get accepts either the registration UUID or the OP number.
func (h *Handler) Get(c echo.Context) error {
	reg, err := h.svc.Find(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Search(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "patient_id", "doctor_id", "status", "date", "from", "to", "department", "op_number")
	regs, total, err := h.svc.SearchRegistrations(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(regs, total, p.Limit, p.Offset))
}

// Queue lists the pending visits for ?doctor_id= on ?date=. Doctors calling
// without doctor_id get their own queue.
func (h *Handler) Queue(c echo.Context) error {
	ctx := c.Request().Context()
	var doctorID uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = id
	} else {
		doctorID = auth.ActorID(ctx)
	}
	if doctorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}

	var day time.Time
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		day = d
	}

	regs, err := h.svc.Queue(ctx, doctorID, day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	if regs == nil {
		regs = []*Registration{}
	}
	return c.JSON(http.StatusOK, regs)
}

func (h *Handler) History(c echo.Context) error {
	p := pagination.FromContext(c)
	regs, total, err := h.svc.History(c.Request().Context(), c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(regs, total, p.Limit, p.Offset))
}

func (h *Handler) Consult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ConsultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.svc.Consult(c.Request().Context(), id, req)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	reg, err := h.svc.Complete(c.Request().Context(), id, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, reg)
}

func (h *Handler) PrintTicket(c echo.Context) error {
	reg, err := h.svc.Find(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err)
	}
	var buf bytes.Buffer
	if err := h.printer.Render(&buf, TicketDocument(h.printer, reg)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.pdf"`, reg.OPNumber))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// TicketDocument lays out the token slip handed to the patient at the desk.
func TicketDocument(p *printing.Printer, reg *Registration) printing.Document {
	fields := []printing.Field{
		{Label: "OP No", Value: reg.OPNumber},
		{Label: "Token", Value: strconv.Itoa(reg.TokenNumber)},
		{Label: "Date", Value: reg.VisitDate.Format("02 Jan 2006")},
		{Label: "Patient", Value: fmt.Sprintf("%s  %s", reg.PatientCode, reg.PatientName)},
		{Label: "Doctor", Value: reg.DoctorName},
	}
	if reg.Department != nil {
		fields = append(fields, printing.Field{Label: "Department", Value: *reg.Department})
	}
	if reg.Complaint != nil {
		fields = append(fields, printing.Field{Label: "Complaint", Value: *reg.Complaint})
	}
	fields = append(fields, printing.Field{Label: "Consultation fee", Value: p.Money(reg.ConsultationFee)})
	return printing.Document{
		Title:    "OP Ticket",
		PageSize: "A5",
		Fields:   fields,
		Footer:   "Please wait for your token to be called",
	}
}
