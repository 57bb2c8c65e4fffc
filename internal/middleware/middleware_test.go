package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/crypto"
	"github.com/lp24213/agroisync-sub001/internal/firewall"
	"github.com/lp24213/agroisync-sub001/internal/identity"
	"github.com/lp24213/agroisync-sub001/internal/identity/memstore"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestChain_AppliesInInsertionOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return middlewareFunc(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		})
	}

	chain := NewChain(tag("first"))
	chain.Use(tag("second"))

	rec := httptest.NewRecorder()
	chain.Then(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type middlewareFunc func(next http.Handler) http.Handler

func (f middlewareFunc) Middleware(next http.Handler) http.Handler { return f(next) }

func TestGetIPAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:4432"
	assert.Equal(t, "192.0.2.7", getIPAddress(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getIPAddress(r))
}

func TestSecurityHeaders(t *testing.T) {
	sec := NewSecurityHeaders(SecurityConfig{
		HSTS:                  true,
		HSTSIncludeSubDomains: true,
		ContentTypeOptions:    true,
		XSSProtection:         true,
	})

	rec := httptest.NewRecorder()
	sec.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiterMiddleware(1, 1)
	h := rl.Middleware(okHandler())

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "too many requests")
}

func TestFirewallGate(t *testing.T) {
	fw := firewall.New(zap.NewNop(), nil, nil, firewall.Config{})
	t.Cleanup(fw.Close)
	gate := NewFirewallGate(fw)

	var seenBody string
	h := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	// Clean request passes, and the inspected body reaches the handler intact.
	r := httptest.NewRequest(http.MethodPost, "/produce", strings.NewReader(`{"crop":"maize"}`))
	r.RemoteAddr = "198.51.100.10:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"crop":"maize"}`, seenBody)

	// Blacklisted source gets 403.
	fw.AddToBlacklist("198.51.100.66", "abuse")
	r = httptest.NewRequest(http.MethodGet, "/produce", nil)
	r.RemoteAddr = "198.51.100.66:1000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Injection attempt trips the default pattern rule.
	r = httptest.NewRequest(http.MethodGet, "/produce?id=1%20union%20select%20password%20from%20users", nil)
	r.RemoteAddr = "198.51.100.77:1000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func newAuthFixture(t *testing.T) (*identity.Service, string, *identity.Identity) {
	t.Helper()

	svc := identity.NewService(
		zap.NewNop(),
		crypto.NewService(zap.NewNop(), 4),
		memstore.New(),
		nil,
		nil,
		identity.Config{JWTSecret: []byte("test-secret-test-secret-test-1234")},
	)
	t.Cleanup(svc.Close)

	ctx := context.Background()
	rec, err := svc.Register(ctx, "farmer@example.com", "Str0ng!pass", "")
	require.NoError(t, err)

	res, err := svc.Login(ctx, identity.LoginRequest{
		Email:    "farmer@example.com",
		Password: "Str0ng!pass",
		Source:   "198.51.100.1",
	})
	require.NoError(t, err)

	return svc, res.Token, rec
}

func TestAuthenticator(t *testing.T) {
	svc, token, rec := newAuthFixture(t)
	auth := NewAuthenticator(zap.NewNop(), svc)

	var gotID *identity.Identity
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = IdentityFromContext(r.Context())
		require.NotNil(t, ClaimsFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotID)
	assert.Equal(t, rec.ID, gotID.ID)

	// No token.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Revoked token.
	require.NoError(t, svc.Logout(context.Background(), token))
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")
}

func TestRequireRole(t *testing.T) {
	admin := &identity.Identity{ID: "a", Role: identity.RoleAdmin}
	user := &identity.Identity{ID: "u", Role: identity.RoleUser}

	h := NewRequireRole(identity.RoleAdmin).Middleware(okHandler())

	serve := func(id *identity.Identity) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if id != nil {
			r = r.WithContext(context.WithValue(r.Context(), identityKey, id))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(admin))
	assert.Equal(t, http.StatusForbidden, serve(user))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

func TestRequirePermission(t *testing.T) {
	id := &identity.Identity{ID: "u", Permissions: []string{identity.PermissionRead, identity.PermissionWrite}}

	serve := func(m Middleware) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(context.WithValue(r.Context(), identityKey, id))
		w := httptest.NewRecorder()
		m.Middleware(okHandler()).ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(NewRequirePermission(identity.PermissionRead)))
	assert.Equal(t, http.StatusForbidden, serve(NewRequirePermission(identity.PermissionDelete)))
}
