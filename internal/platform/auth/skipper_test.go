package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/health/db", true},
		{http.MethodPost, "/api/auth/login", true},
		{http.MethodGet, "/api/auth/login", false},
		{http.MethodGet, "/api/auth/me", false},
		{http.MethodPost, "/api/patients", false},
		{http.MethodDelete, "/health", false},
		{http.MethodGet, "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(tt.method, tt.path, nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}
