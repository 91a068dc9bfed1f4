package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	actor := uuid.New()

	body := `{"name":"Lakshmi","gender":"female","age":52,"phone":"9876543210"}`
	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), actor.String(), "Recep", []string{auth.RoleReceptionist}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.PatientID == "" {
		t.Error("expected patient_id to be assigned")
	}
	if p.CreatedBy == nil || *p.CreatedBy != actor {
		t.Error("expected created_by to be the caller")
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`{"gender":"male"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.CreatePatient(c); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestHandler_GetPatient_ByCode(t *testing.T) {
	h, e := newTestHandler()
	p := &Patient{Name: "Anil", Gender: "male"}
	h.svc.CreatePatient(context.Background(), p)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.PatientID)

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_UpdatePatient_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"X","gender":"male"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.UpdatePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	h.svc.CreatePatient(ctx, &Patient{Name: "Suresh", Gender: "male"})
	h.svc.CreatePatient(ctx, &Patient{Name: "Sunita", Gender: "female"})
	h.svc.CreatePatient(ctx, &Patient{Name: "Rahul", Gender: "male"})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients?name=su", nil), rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected 2 matches, got %d", resp.Total)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", db.ErrNotFound, http.StatusNotFound},
		{"invalid", apperr.Invalid("name is required"), http.StatusBadRequest},
		{"storage", errors.New("commit: conn closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he, ok := writeError(tt.err).(*echo.HTTPError)
			if !ok || he.Code != tt.want {
				t.Fatalf("got %v, want %d", he, tt.want)
			}
			if tt.want == http.StatusInternalServerError && he.Message != "internal server error" {
				t.Errorf("expected a generic message, got %v", he.Message)
			}
		})
	}
}
