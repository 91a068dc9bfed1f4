package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/internal/platform/printing"
)

func newTestHandler() (*Handler, *billingEnv, *echo.Echo) {
	env := newBillingEnv()
	p := printing.NewPrinter(printing.Letterhead{Name: "Test Hospital", Currency: "INR"})
	return NewHandler(env.svc, p), env, echo.New()
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpStatus(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestHandler_CreateCharge(t *testing.T) {
	h, _, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, `{"code":"xray","name":"Chest X-Ray","category":"lab","amount":400}`)
	if err := h.CreateCharge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var ch Charge
	json.Unmarshal(rec.Body.Bytes(), &ch)
	if ch.Code != "XRAY" {
		t.Errorf("expected upper-cased code, got %s", ch.Code)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"code":"XRAY","name":"Duplicate","category":"lab"}`)
	if got := httpStatus(h.CreateCharge(c)); got != http.StatusConflict {
		t.Errorf("expected 409, got %d", got)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"code":"BAD","name":"Bad","category":"pharmacy"}`)
	if got := httpStatus(h.CreateCharge(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_GetCharge_BadID(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if got := httpStatus(h.GetCharge(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}

	c, _ = jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if got := httpStatus(h.GetCharge(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_CreatePharmacyBill(t *testing.T) {
	h, env, e := newTestHandler()
	actor := uuid.New()

	c, rec := jsonRequest(e, http.MethodPost, `{"payment_method":"upi"}`)
	c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), actor.String(), "Pharmacist", []string{auth.RolePharmacist})))
	c.SetParamNames("id")
	c.SetParamValues(env.visit.OPNumber)
	if err := h.CreatePharmacyBill(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var b Bill
	json.Unmarshal(rec.Body.Bytes(), &b)
	if b.BillNumber != "BILL-20240301-0001" || b.CreatedBy == nil || *b.CreatedBy != actor {
		t.Errorf("unexpected bill %+v", b)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"payment_method":"upi"}`)
	c.SetParamNames("id")
	c.SetParamValues(env.visit.OPNumber)
	if got := httpStatus(h.CreatePharmacyBill(c)); got != http.StatusConflict {
		t.Errorf("expected 409 when nothing is left to bill, got %d", got)
	}
}

func TestHandler_DraftServiceBill_UnknownVisit(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("OP-20000101-0001")
	if got := httpStatus(h.DraftServiceBill(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_CancelBill(t *testing.T) {
	h, env, e := newTestHandler()
	b, err := env.svc.CreateServiceBill(context.Background(),
		env.visit.OPNumber, VisitBillRequest{PaymentMethod: PaymentCash}, nil)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := jsonRequest(e, http.MethodPost, `{}`)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if got := httpStatus(h.CancelBill(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400 without reason, got %d", got)
	}

	c, rec := jsonRequest(e, http.MethodPost, `{"reason":"duplicate"}`)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.CancelBill(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"reason":"again"}`)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if got := httpStatus(h.CancelBill(c)); got != http.StatusConflict {
		t.Errorf("expected 409, got %d", got)
	}
}

func TestHandler_PrintBill(t *testing.T) {
	h, env, e := newTestHandler()
	b, err := env.svc.CreatePharmacyBill(context.Background(),
		env.visit.OPNumber, VisitBillRequest{PaymentMethod: PaymentCash}, nil)
	if err != nil {
		t.Fatal(err)
	}

	c, rec := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(b.BillNumber)
	if err := h.PrintBill(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("expected a PDF body")
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), b.BillNumber) {
		t.Error("expected bill number in file name")
	}
}

func TestBillDocument_Cancelled(t *testing.T) {
	p := printing.NewPrinter(printing.Letterhead{Name: "Test Hospital", Currency: "INR"})
	reason := "refund"
	doc := BillDocument(p, &Bill{BillType: BillService, Status: StatusCancelled, CancelledReason: &reason})
	if doc.Title != "Service Bill (CANCELLED)" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if doc.Totals[2].Value != "INR 0.00" {
		t.Errorf("unexpected total %q", doc.Totals[2].Value)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", db.ErrNotFound, http.StatusNotFound},
		{"invalid item", fmt.Errorf("items[0]: %w", apperr.Invalid("description is required")), http.StatusBadRequest},
		{"conflict", ErrChargeExists, http.StatusConflict},
		{"storage", errors.New("commit: conn closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he, ok := writeError(tt.err, "charge not found").(*echo.HTTPError)
			if !ok || he.Code != tt.want {
				t.Fatalf("got %v, want %d", he, tt.want)
			}
			if tt.want == http.StatusInternalServerError && he.Message != "internal server error" {
				t.Errorf("expected a generic message, got %v", he.Message)
			}
		})
	}
}
