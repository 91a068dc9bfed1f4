package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/config"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           "8000",
		Env:            "production",
		JWTSecret:      strings.Repeat("s", 32),
		TokenTTL:       time.Hour,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RequestTimeout: 5 * time.Second,
		ReportTimeout:  time.Minute,
		BodyLimit:      "1M",
		HospitalName:   "Test Hospital",
		Currency:       "INR",
		LowStockScanAt: "08:00",
		DayCloseAt:     "00:05",
	}
}

// testApp wires every service over a nil pool. Only routes that never reach
// the database may be exercised.
func testApp() *app {
	return newApp(testConfig(), nil, zerolog.Nop())
}

func serve(a *app, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, req)
	return rec
}

func issue(t *testing.T, a *app, role string) string {
	t.Helper()
	token, _, err := auth.NewTokenIssuer(a.cfg.SigningKey(), time.Hour, tokenIssuer).Issue(uuid.New(), "Test User", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestRouter_RegistersRoutes(t *testing.T) {
	e := testApp().router()
	have := make(map[string]bool)
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /health/db",
		"POST /api/auth/login",
		"GET /api/doctors",
		"POST /api/patients",
		"POST /api/op-registrations",
		"GET /api/op-registrations/:id/ticket",
		"GET /api/op-registrations/:id/prescription",
		"POST /api/medicine-prescriptions/:id/serve",
		"GET /api/charges",
		"GET /api/medicines",
		"GET /api/suppliers",
		"POST /api/stock/:id/transactions",
		"GET /api/bills/:id/print",
		"GET /api/reports/revenue",
		"GET /api/reports/:id",
	}
	for _, route := range want {
		if !have[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestRouter_Health(t *testing.T) {
	rec := serve(testApp(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS outside development")
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	rec := serve(testApp(), http.MethodGet, "/api/patients", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_RoleGate(t *testing.T) {
	a := testApp()

	rec := serve(a, http.MethodGet, "/api/reports", issue(t, a, auth.RoleReceptionist))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for receptionist, got %d", rec.Code)
	}

	rec = serve(a, http.MethodGet, "/api/reports", issue(t, a, auth.RoleAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "op-summary") {
		t.Errorf("expected report catalog, got %s", rec.Body.String())
	}
}

func TestRouter_DevAllowsAnonymousAdmin(t *testing.T) {
	a := testApp()
	a.cfg.Env = "development"
	rec := serve(a, http.MethodGet, "/api/reports", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 in development, got %d", rec.Code)
	}
}

func TestJobs(t *testing.T) {
	jobs := testApp().jobs()
	at := make(map[string]string)
	for _, j := range jobs {
		if j.Run == nil {
			t.Errorf("job %s has no run func", j.Name)
		}
		at[j.Name] = j.At
	}
	if at["day-close"] != "00:05" || at["low-stock-scan"] != "08:00" {
		t.Errorf("unexpected schedule %v", at)
	}
}

func TestOptional(t *testing.T) {
	if optional("  ") != nil {
		t.Error("expected nil for blank")
	}
	if v := optional(" x "); v == nil || *v != "x" {
		t.Errorf("expected trimmed value, got %v", v)
	}
}

type supplierList []*inventory.Supplier

func (l supplierList) SearchSuppliers(_ context.Context, _ map[string]string, _, _ int) ([]*inventory.Supplier, int, error) {
	return l, len(l), nil
}

func TestFindSupplier(t *testing.T) {
	dir := supplierList{
		{ID: uuid.New(), Name: "Medline Distributors South"},
		{ID: uuid.New(), Name: "Medline Distributors"},
	}

	s, err := findSupplier(context.Background(), dir, "medline distributors")
	if err != nil {
		t.Fatalf("findSupplier: %v", err)
	}
	if s.ID != dir[1].ID {
		t.Errorf("expected the exact match, got %q", s.Name)
	}

	if _, err := findSupplier(context.Background(), dir, "Medline"); err == nil {
		t.Error("expected error for a partial name")
	}
}
