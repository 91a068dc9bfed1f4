package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(roles []string, required ...string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, RequireRole(required...)(okHandler)(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runWithRoles([]string{RolePharmacist}, RolePharmacist, RoleStorekeeper)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := runWithRoles([]string{RoleReceptionist}, RoleDoctor)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	_, err := runWithRoles([]string{RoleAdmin}, RolePhysiotherapist)
	if err != nil {
		t.Errorf("expected admin to pass any gate, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	_, err := runWithRoles(nil, RoleDoctor)
	expectStatus(t, err, http.StatusForbidden)
}

func TestValidRole(t *testing.T) {
	for _, r := range Roles {
		if !ValidRole(r) {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if ValidRole("nurse") {
		t.Error("expected nurse to be invalid")
	}
}
