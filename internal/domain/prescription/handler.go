package prescription

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
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
	visit := api.Group("/op-registrations/:id")
	visit.POST("/prescriptions", h.Prescribe, auth.RequireRole(auth.RoleDoctor))
	visit.GET("/prescriptions", h.ForVisit,
		auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RolePhysiotherapist, auth.RoleReceptionist))
	visit.GET("/prescription", h.PrintPrescription,
		auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RolePharmacist))

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacist))
	pharmacy.GET("/pharmacy/queue", h.PharmacyQueue)
	pharmacy.POST("/medicine-prescriptions/:id/serve", h.ServeMedicine)

	medRead := api.Group("/medicine-prescriptions", auth.RequireRole(auth.RolePharmacist, auth.RoleDoctor))
	medRead.GET("", h.SearchMedicine)
	medRead.GET("/:id", h.GetMedicine)
	medRead.POST("/:id/cancel", h.CancelMedicine)

	physio := api.Group("", auth.RequireRole(auth.RolePhysiotherapist))
	physio.GET("/physio/queue", h.PhysioQueue)
	physio.POST("/treatment-prescriptions/:id/sessions", h.RecordSession)
	physio.POST("/treatment-prescriptions/:id/serve", h.ServeTreatment)

	treatRead := api.Group("/treatment-prescriptions", auth.RequireRole(auth.RolePhysiotherapist, auth.RoleDoctor))
	treatRead.GET("", h.SearchTreatment)
	treatRead.GET("/:id", h.GetTreatment)
	treatRead.POST("/:id/cancel", h.CancelTreatment)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrVisitCancelled),
		errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrNoStockItem):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrActorRequired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case apperr.IsInvalid(err), errors.Is(err, ErrNothingToAdd),
		errors.Is(err, ErrUnknownMedicine), errors.Is(err, ErrUnknownTreatment):
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

// -- Visit Handlers --

func (h *Handler) Prescribe(c echo.Context) error {
	var req PrescribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Prescribe(c.Request().Context(), c.Param("id"), req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ForVisit(c echo.Context) error {
	_, out, err := h.svc.ForVisit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PrintPrescription(c echo.Context) error {
	visit, out, err := h.svc.ForVisit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err)
	}
	var buf bytes.Buffer
	if err := h.printer.Render(&buf, PrescriptionDocument(visit, out)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s-rx.pdf"`, visit.OPNumber))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// -- Medicine Handlers --

func (h *Handler) PharmacyQueue(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "op_registration_id", "patient_id", "from", "to")
	items, total, err := h.svc.PharmacyQueue(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) SearchMedicine(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "status", "op_registration_id", "patient_id", "medicine_id", "from", "to")
	items, total, err := h.svc.SearchMedicinePrescriptions(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.GetMedicinePrescription(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) ServeMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.ServeMedicine(c.Request().Context(), id, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) CancelMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.svc.CancelMedicine(c.Request().Context(), id, req.Reason)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

// -- Treatment Handlers --

func (h *Handler) PhysioQueue(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "op_registration_id", "patient_id", "from", "to")
	items, total, err := h.svc.PhysioQueue(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) SearchTreatment(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "status", "op_registration_id", "patient_id", "from", "to")
	items, total, err := h.svc.SearchTreatmentPrescriptions(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetTreatment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.GetTreatmentPrescription(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) RecordSession(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.RecordSession(c.Request().Context(), id, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) ServeTreatment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.ServeTreatment(c.Request().Context(), id, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) CancelTreatment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.svc.CancelTreatment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

// PrescriptionDocument lays out the printed prescription of a visit.
// Cancelled lines are left off the print.
func PrescriptionDocument(visit *outpatient.Registration, rx *VisitPrescriptions) printing.Document {
	fields := []printing.Field{
		{Label: "OP No", Value: visit.OPNumber},
		{Label: "Date", Value: visit.VisitDate.Format("02 Jan 2006")},
		{Label: "Patient", Value: fmt.Sprintf("%s  %s", visit.PatientCode, visit.PatientName)},
		{Label: "Doctor", Value: visit.DoctorName},
	}
	if visit.Diagnosis != nil {
		fields = append(fields, printing.Field{Label: "Diagnosis", Value: *visit.Diagnosis})
	}

	var sections []printing.Section
	meds := &printing.Table{Columns: []printing.Column{
		{Header: "#", Width: 10, Align: "C"},
		{Header: "Medicine", Width: 60},
		{Header: "Dosage", Width: 30},
		{Header: "Frequency", Width: 35},
		{Header: "Days", Width: 20, Align: "R"},
		{Header: "Qty", Width: 25, Align: "R"},
	}}
	n := 0
	for _, m := range rx.Medicines {
		if m.Status == StatusCancelled {
			continue
		}
		n++
		meds.Rows = append(meds.Rows, []string{
			strconv.Itoa(n),
			m.MedicineName,
			m.Dosage,
			m.Frequency,
			strconv.Itoa(m.DurationDays),
			strconv.FormatFloat(m.Quantity, 'f', -1, 64),
		})
		if m.Instructions != nil {
			meds.Rows = append(meds.Rows, []string{"", "  " + *m.Instructions, "", "", "", ""})
		}
	}
	if len(meds.Rows) > 0 {
		sections = append(sections, printing.Section{Heading: "Medicines", Table: meds})
	}

	treatments := &printing.Table{Columns: []printing.Column{
		{Header: "#", Width: 10, Align: "C"},
		{Header: "Treatment", Width: 110},
		{Header: "Sessions", Width: 60, Align: "R"},
	}}
	for _, t := range rx.Treatments {
		if t.Status == StatusCancelled {
			continue
		}
		treatments.Rows = append(treatments.Rows, []string{
			strconv.Itoa(len(treatments.Rows) + 1),
			t.TreatmentName,
			strconv.Itoa(t.Sessions),
		})
	}
	if len(treatments.Rows) > 0 {
		sections = append(sections, printing.Section{Heading: "Physiotherapy", Table: treatments})
	}
	if visit.Notes != nil {
		sections = append(sections, printing.Section{Heading: "Advice", Text: *visit.Notes})
	}

	return printing.Document{
		Title:    "Prescription",
		Fields:   fields,
		Sections: sections,
		Footer:   "Signature of the doctor",
	}
}
