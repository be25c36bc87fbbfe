package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "hms-identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	if handler == nil {
		handler = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	}
	return JWTMiddleware(cfg)(handler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "", nil)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header, nil)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("nurse-7", "nurse"), testSigningKey)

	called := false
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "hms-identity"}, "Bearer "+tokenStr,
		func(c echo.Context) error {
			called = true
			ctx := c.Request().Context()
			if uid := UserIDFromContext(ctx); uid != "nurse-7" {
				t.Errorf("expected user_id=nurse-7, got %s", uid)
			}
			if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "nurse" {
				t.Errorf("expected roles=[nurse], got %v", roles)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
		cfg   JWTConfig
	}{
		{"expired", createTestToken(t, expired, testSigningKey), JWTConfig{SigningKey: testSigningKey}},
		{"wrong key", createTestToken(t, validClaims("u1"), []byte("other")), JWTConfig{SigningKey: testSigningKey}},
		{"wrong issuer", createTestToken(t, validClaims("u1"), testSigningKey), JWTConfig{SigningKey: testSigningKey, Issuer: "elsewhere"}},
		{"no subject", createTestToken(t, validClaims(""), testSigningKey), JWTConfig{SigningKey: testSigningKey}},
		{"garbage", "not.a.token", JWTConfig{SigningKey: testSigningKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runJWT(t, tt.cfg, "Bearer "+tt.token, nil)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := DevAuthMiddleware()(func(c echo.Context) error {
		called = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return nil
	})(c)
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestDevAuthMiddleware_ImpersonationHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DevUserHeader, "reception-desk")
	req.Header.Set(DevRolesHeader, " Reception , nurse,")
	c := e.NewContext(req, httptest.NewRecorder())

	DevAuthMiddleware()(func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "reception-desk" {
			t.Errorf("user = %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != RoleReception || roles[1] != RoleNurse {
			t.Errorf("roles = %v", roles)
		}
		return nil
	})(c)
}
