package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour, "opd")
	uid := uuid.New()

	tokenStr, exp, err := issuer.Issue(uid, "Asha", RoleReceptionist)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected expiry in the future, got %s", exp)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		if got := ActorID(c.Request().Context()); got != uid {
			t.Errorf("expected actor %s, got %s", uid, got)
		}
		if !HasRole(c.Request().Context(), RoleReceptionist) {
			t.Error("expected receptionist role")
		}
		return nil
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "opd"})
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTokenIssuer_WrongIssuerRejected(t *testing.T) {
	tokenStr, _, err := NewTokenIssuer(testSigningKey, time.Hour, "other").Issue(uuid.New(), "x", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	err = JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "opd"})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
}

func TestActorRef(t *testing.T) {
	ctx := WithUser(context.Background(), "dev-user", "Developer", []string{RoleAdmin})
	if ActorRef(ctx) != nil {
		t.Error("expected nil ref for non-uuid principal")
	}

	uid := uuid.New()
	ctx = WithUser(context.Background(), uid.String(), "Asha", []string{RoleReceptionist})
	if ref := ActorRef(ctx); ref == nil || *ref != uid {
		t.Errorf("expected ref to %s, got %v", uid, ref)
	}
}
