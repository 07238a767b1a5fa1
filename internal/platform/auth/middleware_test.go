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

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func newTestTokenManager() *TokenManager {
	return NewTokenManager(TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "clinic-api",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, nil)
}

func runMiddleware(t *testing.T, cfg JWTConfig, header string) (*Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Identity
	handler := func(c echo.Context) error {
		if id, ok := IdentityFromContext(c.Request().Context()); ok {
			got = &id
		}
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(cfg)(handler)(c)
	return got, err
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTConfig{Verifier: newTestTokenManager()}, "")
	expectUnauthorized(t, err)
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
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTConfig{Verifier: newTestTokenManager()}, tt.header)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_ValidAccessToken(t *testing.T) {
	tm := newTestTokenManager()
	want := Identity{UserID: uuid.New(), Email: "alice@example.com"}
	pair, err := tm.IssuePair(want)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := runMiddleware(t, JWTConfig{Verifier: tm}, "Bearer "+pair.Access)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("expected identity %+v in context, got %+v", want, got)
	}
}

func TestJWTMiddleware_LowercaseScheme(t *testing.T) {
	tm := newTestTokenManager()
	pair, _ := tm.IssuePair(Identity{UserID: uuid.New(), Email: "a@b.co"})

	got, err := runMiddleware(t, JWTConfig{Verifier: tm}, "bearer "+pair.Access)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Error("expected identity in context")
	}
}

func TestJWTMiddleware_RejectsRefreshToken(t *testing.T) {
	tm := newTestTokenManager()
	pair, _ := tm.IssuePair(Identity{UserID: uuid.New(), Email: "a@b.co"})

	_, err := runMiddleware(t, JWTConfig{Verifier: tm}, "Bearer "+pair.Refresh)
	expectUnauthorized(t, err)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{
		Verifier: newTestTokenManager(),
		Skipper:  func(c echo.Context) bool { return true },
	}
	got, err := runMiddleware(t, cfg, "")
	if err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
	if got != nil {
		t.Error("expected no identity on skipped request")
	}
}

func TestIdentityFromContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity on empty context")
	}

	id := Identity{UserID: uuid.New(), Email: "bob@example.com"}
	ctx := WithIdentity(context.Background(), id)
	got, ok := IdentityFromContext(ctx)
	if !ok || got != id {
		t.Errorf("expected %+v, got %+v", id, got)
	}
	if UserIDFromContext(ctx) != id.UserID.String() {
		t.Errorf("expected user id string %s, got %s", id.UserID, UserIDFromContext(ctx))
	}
}

func TestIdentity_IsZero(t *testing.T) {
	if !(Identity{}).IsZero() {
		t.Error("expected empty identity to be zero")
	}
	if (Identity{UserID: uuid.New()}).IsZero() {
		t.Error("expected identity with user id to be non-zero")
	}
}
