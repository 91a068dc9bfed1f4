package billing

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

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
	// Charges are read while registering visits and prescribing treatments.
	api.GET("/charges", h.SearchCharges)
	api.GET("/charges/:id", h.GetCharge)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/charges", h.CreateCharge)
	admin.PUT("/charges/:id", h.UpdateCharge)
	admin.DELETE("/charges/:id", h.DeleteCharge)
	admin.POST("/bills/:id/cancel", h.CancelBill)

	counter := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RolePharmacist))
	counter.GET("/bills", h.SearchBills)
	counter.POST("/bills", h.CreateBill)
	counter.GET("/bills/:id", h.GetBill)
	counter.GET("/bills/:id/print", h.PrintBill)

	pharmacy := api.Group("/op-registrations/:id/bills/pharmacy", auth.RequireRole(auth.RolePharmacist))
	pharmacy.GET("/draft", h.DraftPharmacyBill)
	pharmacy.POST("", h.CreatePharmacyBill)

	service := api.Group("/op-registrations/:id/bills/service", auth.RequireRole(auth.RoleReceptionist))
	service.GET("/draft", h.DraftServiceBill)
	service.POST("", h.CreateServiceBill)
}

func writeError(err error, notFound string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, ErrChargeExists), errors.Is(err, ErrChargeInUse),
		errors.Is(err, ErrBillCancelled), errors.Is(err, ErrAlreadyBilled),
		errors.Is(err, ErrNothingToBill):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case apperr.IsInvalid(err):
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

// -- Charge Handlers --

func (h *Handler) CreateCharge(c echo.Context) error {
	var ch Charge
	if err := c.Bind(&ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCharge(c.Request().Context(), &ch); err != nil {
		return writeError(err, "charge not found")
	}
	return c.JSON(http.StatusCreated, ch)
}

func (h *Handler) GetCharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ch, err := h.svc.GetCharge(c.Request().Context(), id)
	if err != nil {
		return writeError(err, "charge not found")
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) UpdateCharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	existing, err := h.svc.GetCharge(c.Request().Context(), id)
	if err != nil {
		return writeError(err, "charge not found")
	}
	var ch Charge
	if err := c.Bind(&ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch.ID = id
	ch.CreatedAt = existing.CreatedAt
	if err := h.svc.UpdateCharge(c.Request().Context(), &ch); err != nil {
		return writeError(err, "charge not found")
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) DeleteCharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCharge(c.Request().Context(), id); err != nil {
		return writeError(err, "charge not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchCharges(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "category", "active", "q")
	charges, total, err := h.svc.SearchCharges(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(charges, total, p.Limit, p.Offset))
}

// -- Bill Handlers --

func (h *Handler) CreateBill(c echo.Context) error {
	var req CreateBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateBill(c.Request().Context(), req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err, "bill not found")
	}
	return c.JSON(http.StatusCreated, b)
}

// GetBill accepts either the bill UUID or the bill number.
func (h *Handler) GetBill(c echo.Context) error {
	b, err := h.svc.FindBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err, "bill not found")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) SearchBills(c echo.Context) error {
	p := pagination.FromContext(c)
	params := pagination.Filters(c, "date", "from", "to", "patient_id", "op_registration_id",
		"bill_type", "status", "payment_method", "bill_number")
	bills, total, err := h.svc.SearchBills(c.Request().Context(), params, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, p.Limit, p.Offset))
}

func (h *Handler) CancelBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CancelBill(c.Request().Context(), id, req.Reason, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err, "bill not found")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DraftPharmacyBill(c echo.Context) error {
	d, err := h.svc.DraftPharmacyBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err, "registration not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreatePharmacyBill(c echo.Context) error {
	var req VisitBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreatePharmacyBill(c.Request().Context(), c.Param("id"), req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err, "registration not found")
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DraftServiceBill(c echo.Context) error {
	d, err := h.svc.DraftServiceBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err, "registration not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateServiceBill(c echo.Context) error {
	var req VisitBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateServiceBill(c.Request().Context(), c.Param("id"), req, auth.ActorRef(c.Request().Context()))
	if err != nil {
		return writeError(err, "registration not found")
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) PrintBill(c echo.Context) error {
	b, err := h.svc.FindBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(err, "bill not found")
	}
	var buf bytes.Buffer
	if err := h.printer.Render(&buf, BillDocument(h.printer, b)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.pdf"`, b.BillNumber))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// BillDocument lays out a printed bill. Cancelled bills carry the reason in
// the title so a reprint cannot pass as a receipt.
func BillDocument(p *printing.Printer, b *Bill) printing.Document {
	title := "Pharmacy Bill"
	if b.BillType == BillService {
		title = "Service Bill"
	}
	if b.Status == StatusCancelled {
		title += " (CANCELLED)"
	}

	fields := []printing.Field{
		{Label: "Bill No", Value: b.BillNumber},
		{Label: "Date", Value: b.BillDate.Format("02 Jan 2006")},
		{Label: "Patient", Value: fmt.Sprintf("%s  %s", b.PatientCode, b.PatientName)},
	}
	if b.OPNumber != "" {
		fields = append(fields, printing.Field{Label: "OP No", Value: b.OPNumber})
	}
	fields = append(fields, printing.Field{Label: "Payment", Value: b.PaymentMethod})
	if b.CancelledReason != nil {
		fields = append(fields, printing.Field{Label: "Cancelled", Value: *b.CancelledReason})
	}

	table := &printing.Table{Columns: []printing.Column{
		{Header: "#", Width: 10, Align: "C"},
		{Header: "Description", Width: 90},
		{Header: "Qty", Width: 20, Align: "R"},
		{Header: "Rate", Width: 30, Align: "R"},
		{Header: "Amount", Width: 30, Align: "R"},
	}}
	for _, it := range b.Items {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(it.LineNo),
			it.Description,
			strconv.FormatFloat(it.Quantity, 'f', -1, 64),
			strconv.FormatFloat(it.UnitPrice, 'f', 2, 64),
			strconv.FormatFloat(it.Amount, 'f', 2, 64),
		})
	}

	return printing.Document{
		Title:    title,
		Fields:   fields,
		Sections: []printing.Section{{Table: table}},
		Totals: []printing.Field{
			{Label: "Subtotal", Value: p.Money(b.Subtotal)},
			{Label: "Discount", Value: p.Money(b.Discount)},
			{Label: "Total", Value: p.Money(b.Total)},
		},
		Footer: "Computer generated bill",
	}
}
