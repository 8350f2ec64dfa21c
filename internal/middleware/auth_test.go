package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"inventory-service/pkg/config"
	"inventory-service/pkg/jwtutil"
	"inventory-service/prometheus"

	"github.com/labstack/echo/v4"
)

func TestMain(m *testing.M) {
	prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "mw_test"}})
	os.Exit(m.Run())
}

// callAuth runs the auth middleware against a request and reports whether
// the wrapped handler was reached, along with the user ID it saw.
func callAuth(t *testing.T, header string) (*httptest.ResponseRecorder, bool, uint) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var seenUserID uint
	h := AuthMiddleware(func(c echo.Context) error {
		called = true
		seenUserID, _ = GetUserIDFromContext(c)
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("middleware error: %v", err)
	}
	return rec, called, seenUserID
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token, err := jwtutil.GenerateToken("driver@example.com", 42, "driver")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	rec, called, userID := callAuth(t, "Bearer "+token)
	if !called {
		t.Fatalf("handler not reached with a valid token, status %d", rec.Code)
	}
	if userID != 42 {
		t.Errorf("user_id in context = %d, want 42", userID)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer token", "Basic abc123"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, called, _ := callAuth(t, tc.header)
			if called {
				t.Fatalf("handler reached despite %s", tc.name)
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
