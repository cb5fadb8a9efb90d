package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, secret []byte, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func jwtRequest(token string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/measures", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestJWTMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	mw := JWTMiddleware(JWTConfig{SigningKey: secret})

	var gotUID string
	var gotRoles []string
	next := func(c echo.Context) error {
		gotUID = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return nil
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"analyst"},
	}

	if err := mw(next)(jwtRequest(signToken(t, secret, claims))); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if gotUID != "user-1" {
		t.Errorf("subject = %q, want user-1", gotUID)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "analyst" {
		t.Errorf("roles = %v, want [analyst]", gotRoles)
	}
}

func TestJWTMiddlewareRejections(t *testing.T) {
	secret := []byte("test-secret")
	mw := JWTMiddleware(JWTConfig{SigningKey: secret, Issuer: "measurekit"})
	next := func(c echo.Context) error { return nil }

	expect401 := func(name string, c echo.Context) {
		t.Helper()
		err := mw(next)(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusUnauthorized {
			t.Errorf("%s: err = %v, want 401", name, err)
		}
	}

	expect401("missing header", jwtRequest(""))
	expect401("garbage token", jwtRequest("not-a-jwt"))

	wrongKey := signToken(t, []byte("other-secret"), &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "measurekit",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expect401("wrong signing key", jwtRequest(wrongKey))

	expired := signToken(t, secret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "measurekit",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expect401("expired token", jwtRequest(expired))

	wrongIssuer := signToken(t, secret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expect401("wrong issuer", jwtRequest(wrongIssuer))
}
