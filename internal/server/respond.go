package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lp24213/agroisync-sub001/internal/identity"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondIdentityError maps the identity service's failure modes onto HTTP
// statuses. Unknown errors collapse to an opaque 500 so internals never
// leak to the client.
func respondIdentityError(w http.ResponseWriter, err error) {
	var lockErr *identity.LockoutError
	var rateErr *identity.RateLimitError

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds())))
		respondError(w, http.StatusTooManyRequests, rateErr.Error())
	case errors.As(err, &lockErr):
		respondError(w, http.StatusLocked, lockErr.Error())
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrSecondFactorRequired),
		errors.Is(err, identity.ErrSecondFactorInvalid),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrTokenBlacklisted),
		errors.Is(err, identity.ErrSessionExpired):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrAccountInactive),
		errors.Is(err, identity.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrTwoFactorAlreadyOn):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
