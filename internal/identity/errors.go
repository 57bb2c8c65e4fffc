package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEmail is returned when a registration email fails the format check.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = errors.New("password does not meet the strength policy")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is the generic login failure; it never reveals
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when a deactivated identity logs in.
	ErrAccountInactive = errors.New("account is deactivated")
	// ErrSecondFactorRequired is returned when a 2FA-enabled login omits the code.
	ErrSecondFactorRequired = errors.New("two-factor code required")
	// ErrSecondFactorInvalid is returned when the submitted 2FA code is wrong.
	ErrSecondFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorAlreadyOn is returned when enabling 2FA twice.
	ErrTwoFactorAlreadyOn = errors.New("two-factor authentication already enabled")
	// ErrInvalidToken is returned for malformed, forged or expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenBlacklisted is returned for tokens revoked by logout.
	ErrTokenBlacklisted = errors.New("token has been revoked")
	// ErrSessionExpired is returned when the token's session is gone or past expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrIdentityNotFound is returned by the store when no record matches.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrForbidden is the authorization denial for role/permission checks.
	ErrForbidden = errors.New("insufficient permissions")
)

// LockoutError rejects a login while the account cool-down is running.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	remaining := time.Until(e.Until).Round(time.Minute)
	if remaining < time.Minute {
		remaining = time.Minute
	}
	return fmt.Sprintf("account locked, try again in %d minutes", int(remaining.Minutes()))
}

// RateLimitError rejects a login before the identity is even consulted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}
