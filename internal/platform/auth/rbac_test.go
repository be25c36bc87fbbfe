package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRoles(roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := requestWithRoles(RoleNurse)
	err := RequireRole(RoleDoctor, RoleNurse)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := requestWithRoles(RoleBilling)
	err := RequireRole(RoleDoctor, RoleNurse)(func(c echo.Context) error { return nil })(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := requestWithRoles(RoleAdmin)
	if err := RequireRole(RoleOT)(func(c echo.Context) error { return nil })(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := RequireRole(RoleNurse)(func(c echo.Context) error { return nil })(c); err == nil {
		t.Error("expected 403 without roles on the context")
	}
}

func TestHasRole(t *testing.T) {
	if !HasRole([]string{RoleSupport}, RoleSupport, RoleAdmin) {
		t.Error("support should match")
	}
	if HasRole(nil, RoleSupport) {
		t.Error("nil roles should not match")
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithUser(context.Background(), "doc-1", []string{RoleDoctor})
	if got := UserIDFromContext(ctx); got != "doc-1" {
		t.Errorf("got %q", got)
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
