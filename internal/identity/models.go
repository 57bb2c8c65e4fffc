// Package identity implements registration, login with lockout and rate
// limiting, optional time-based second factor, token verification and the
// session lifecycle. It depends on the crypto primitives for hashing and
// secret storage; persistence sits behind the Store interface.
package identity

import "time"

// Role labels what an identity is allowed to administer.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// Default permissions granted at registration.
const (
	PermissionRead   = "read"
	PermissionWrite  = "write"
	PermissionDelete = "delete"
	PermissionAdmin  = "admin"
)

// Identity is an account record. Never hard-deleted; deactivation flips
// Active instead.
type Identity struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	Active        bool       `json:"active"`
	Permissions   []string   `json:"permissions"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`

	// Lockout state machine: FailedAttempts counts consecutive failures,
	// LockedUntil in the future rejects logins regardless of password.
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`

	// TwoFactorSecret holds the crypto storage envelope of the shared
	// secret, never the secret itself.
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	TwoFactorSecret  string `json:"-"`
}

// HasPermission reports whether the identity carries perm.
func (id *Identity) HasPermission(perm string) bool {
	for _, p := range id.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Session binds an issued token to a revocable server-side record. A token
// without a live session is invalid even if cryptographically well-formed.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginAttempt is an append-only audit record.
type LoginAttempt struct {
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	UserAgent string    `json:"userAgent"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
