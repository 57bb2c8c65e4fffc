package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/identity"
)

type contextKey string

const (
	identityKey contextKey = "auth_identity"
	claimsKey   contextKey = "auth_claims"
)

// IdentityFromContext returns the authenticated identity, or nil when the
// request never passed through Authenticator.
func IdentityFromContext(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(identityKey).(*identity.Identity)
	return id
}

// ClaimsFromContext returns the verified token claims, or nil.
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	c, _ := ctx.Value(claimsKey).(*identity.Claims)
	return c
}

// Authenticator verifies the bearer token on every request and attaches
// the identity and claims to the context. Requests without a valid token
// are rejected with 401 before the handler runs.
type Authenticator struct {
	logger   *zap.Logger
	identity *identity.Service
}

func NewAuthenticator(logger *zap.Logger, svc *identity.Service) *Authenticator {
	return &Authenticator{logger: logger, identity: svc}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, claims, err := a.identity.VerifyToken(r.Context(), token)
		if err != nil {
			a.logger.Debug("token rejected",
				zap.String("ip", getIPAddress(r)),
				zap.Error(err),
			)
			writeError(w, http.StatusUnauthorized, authFailureMessage(err))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authFailureMessage maps verification errors onto client-safe messages.
// Anything unexpected collapses to the generic invalid-token text.
func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrTokenBlacklisted):
		return identity.ErrTokenBlacklisted.Error()
	case errors.Is(err, identity.ErrSessionExpired):
		return identity.ErrSessionExpired.Error()
	case errors.Is(err, identity.ErrAccountInactive):
		return identity.ErrAccountInactive.Error()
	default:
		return identity.ErrInvalidToken.Error()
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// RequireRole allows the request through only when the authenticated
// identity holds one of the given roles. Must run after Authenticator.
type RequireRole struct {
	roles []identity.Role
}

func NewRequireRole(roles ...identity.Role) *RequireRole {
	return &RequireRole{roles: roles}
}

func (m *RequireRole) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		for _, role := range m.roles {
			if id.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, identity.ErrForbidden.Error())
	})
}

// RequirePermission allows the request through only when the identity
// carries every listed permission. Must run after Authenticator.
type RequirePermission struct {
	permissions []string
}

func NewRequirePermission(permissions ...string) *RequirePermission {
	return &RequirePermission{permissions: permissions}
}

func (m *RequirePermission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		for _, perm := range m.permissions {
			if !id.HasPermission(perm) {
				writeError(w, http.StatusForbidden, identity.ErrForbidden.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
