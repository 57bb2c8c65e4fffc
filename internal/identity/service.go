package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/crypto"
	"github.com/lp24213/agroisync-sub001/internal/monitor"
)

// Config holds the identity service settings.
type Config struct {
	JWTSecret     []byte        // Secret key used for signing tokens.
	TokenLifetime time.Duration // Token and session lifetime, default 24h.
	Issuer        string        // iss claim, default "agroisync".
	Audience      string        // aud claim, default "agroisync-users".

	MaxFailedLogins int           // Consecutive failures before lockout, default 5.
	LockDuration    time.Duration // Lockout cool-down, default 15m.

	RateLimitAttempts int           // Attempts per source per window, default 10.
	RateLimitWindow   time.Duration // Sliding window size, default 15m.

	SweepInterval     time.Duration // Background maintenance cadence, default 5m.
	MaxAttemptRecords int           // Login attempt history bound, default 1000.

	MasterKey       string // Key under which 2FA secrets are sealed at rest.
	TwoFactorIssuer string // Label in provisioning URLs, default "AgroiSync".
}

func (c *Config) applyDefaults() {
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = 24 * time.Hour
	}
	if c.Issuer == "" {
		c.Issuer = "agroisync"
	}
	if c.Audience == "" {
		c.Audience = "agroisync-users"
	}
	if c.MaxFailedLogins <= 0 {
		c.MaxFailedLogins = 5
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
	if c.RateLimitAttempts <= 0 {
		c.RateLimitAttempts = 10
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 15 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.MaxAttemptRecords <= 0 {
		c.MaxAttemptRecords = 1000
	}
	if c.TwoFactorIssuer == "" {
		c.TwoFactorIssuer = "AgroiSync"
	}
}

// EventSink receives the failed-login threat events. Emission is a side
// effect of login, never a precondition for its result.
type EventSink interface {
	RecordEvent(evt monitor.Event)
}

// Service manages accounts, sessions and issued tokens.
type Service struct {
	logger   *zap.Logger
	crypto   *crypto.Service
	store    Store
	events   EventSink
	verifier CodeVerifier
	issuer   tokenIssuer
	limiter  *attemptLimiter
	config   Config

	sessions  *gocache.Cache // session id -> Session
	blacklist *gocache.Cache // raw token -> struct{}

	mu       sync.Mutex
	attempts []LoginAttempt

	done chan struct{}
}

// NewService wires the identity service and starts its maintenance
// goroutine. verifier may be nil to use the default TOTP implementation.
func NewService(logger *zap.Logger, cryptoSvc *crypto.Service, store Store, events EventSink, verifier CodeVerifier, config Config) *Service {
	config.applyDefaults()
	if verifier == nil {
		verifier = NewTOTPVerifier()
	}

	s := &Service{
		logger:   logger,
		crypto:   cryptoSvc,
		store:    store,
		events:   events,
		verifier: verifier,
		issuer: tokenIssuer{
			secret:   config.JWTSecret,
			issuer:   config.Issuer,
			audience: config.Audience,
			lifetime: config.TokenLifetime,
		},
		limiter:   newAttemptLimiter(config.RateLimitAttempts, config.RateLimitWindow),
		config:    config,
		sessions:  gocache.New(config.TokenLifetime, config.SweepInterval),
		blacklist: gocache.New(config.TokenLifetime, config.SweepInterval),
		done:      make(chan struct{}),
	}

	go s.sweepRoutine()

	return s
}

// Close stops background maintenance.
func (s *Service) Close() {
	close(s.done)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Register creates a new identity with the default permission set. The
// password is hashed before anything is stored; no state mutates on a
// validation failure.
func (s *Service) Register(ctx context.Context, email, password, walletAddress string) (*Identity, error) {
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if !passwordMeetsPolicy(password) {
		return nil, ErrWeakPassword
	}
	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := s.crypto.HashPassword(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	id, err := s.crypto.GenerateToken(16)
	if err != nil {
		return nil, err
	}

	rec := &Identity{
		ID:            id,
		Email:         email,
		WalletAddress: walletAddress,
		PasswordHash:  hash,
		Role:          RoleUser,
		Active:        true,
		Permissions:   []string{PermissionRead, PermissionWrite},
		CreatedAt:     time.Now(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing identity: %w", err)
	}

	s.logger.Info("identity registered", zap.String("userId", rec.ID))
	return rec, nil
}

// passwordMeetsPolicy enforces at least 8 characters with upper, lower,
// digit and symbol classes present.
func passwordMeetsPolicy(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// LoginRequest carries one authentication attempt.
type LoginRequest struct {
	Email            string
	Password         string
	Source           string
	UserAgent        string
	SecondFactorCode string
}

// LoginResult is returned on a fully successful login.
type LoginResult struct {
	Token    string
	Identity *Identity
	Session  Session
}

// Login authenticates one attempt. The per-source rate limiter runs before
// the identity record is touched; every failure is recorded in the attempt
// log and forwarded to the monitor as a medium threat event.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	now := time.Now()

	if ok, retryAfter := s.limiter.allow(req.Source, now); !ok {
		err := &RateLimitError{RetryAfter: retryAfter}
		s.failLogin(req, "rate limited")
		return nil, err
	}

	rec, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		s.failLogin(req, "unknown identity")
		return nil, ErrInvalidCredentials
	}

	if rec.LockedUntil != nil {
		if now.Before(*rec.LockedUntil) {
			s.failLogin(req, "account locked")
			return nil, &LockoutError{Until: *rec.LockedUntil}
		}
		// Cool-down elapsed, revert to active.
		rec.LockedUntil = nil
		rec.FailedAttempts = 0
	}

	if !rec.Active {
		s.failLogin(req, "account inactive")
		return nil, ErrAccountInactive
	}

	if !s.crypto.VerifyPassword(ctx, req.Password, rec.PasswordHash) {
		rec.FailedAttempts++
		if rec.FailedAttempts >= s.config.MaxFailedLogins {
			lockUntil := now.Add(s.config.LockDuration)
			rec.LockedUntil = &lockUntil
			s.logger.Warn("account locked after repeated failures",
				zap.String("userId", rec.ID),
				zap.Time("until", lockUntil),
			)
		}
		if err := s.store.Put(ctx, rec); err != nil {
			s.logger.Error("persisting failure counter", zap.Error(err))
		}
		s.failLogin(req, "wrong password")
		return nil, ErrInvalidCredentials
	}

	if rec.TwoFactorEnabled {
		if req.SecondFactorCode == "" {
			s.failLogin(req, "missing second factor")
			return nil, ErrSecondFactorRequired
		}
		secret, err := s.openTwoFactorSecret(ctx, rec)
		if err != nil {
			s.logger.Error("opening two-factor secret", zap.String("userId", rec.ID), zap.Error(err))
			s.failLogin(req, "second factor unavailable")
			return nil, ErrSecondFactorInvalid
		}
		if !s.verifier.Verify(secret, req.SecondFactorCode, now) {
			s.failLogin(req, "invalid second factor")
			return nil, ErrSecondFactorInvalid
		}
	}

	rec.FailedAttempts = 0
	rec.LockedUntil = nil
	rec.LastLogin = &now
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating identity: %w", err)
	}

	sessionID, err := s.crypto.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	session := Session{
		ID:        sessionID,
		UserID:    rec.ID,
		ExpiresAt: now.Add(s.config.TokenLifetime),
	}
	s.sessions.Set(sessionID, session, s.config.TokenLifetime)

	token, err := s.issuer.mint(rec, sessionID, now)
	if err != nil {
		s.sessions.Delete(sessionID)
		return nil, fmt.Errorf("minting token: %w", err)
	}

	s.recordAttempt(LoginAttempt{
		Email:     req.Email,
		Source:    req.Source,
		UserAgent: req.UserAgent,
		Success:   true,
		Timestamp: now,
	})
	s.logger.Info("login succeeded", zap.String("userId", rec.ID))

	return &LoginResult{Token: token, Identity: rec, Session: session}, nil
}

// failLogin appends the audit record and forwards a medium threat event,
// fire and forget.
func (s *Service) failLogin(req LoginRequest, reason string) {
	s.recordAttempt(LoginAttempt{
		Email:     req.Email,
		Source:    req.Source,
		UserAgent: req.UserAgent,
		Success:   false,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	s.logger.Info("login failed",
		zap.String("email", req.Email),
		zap.String("source", req.Source),
		zap.String("reason", reason),
	)
	if s.events != nil {
		s.events.RecordEvent(monitor.NewEvent(
			monitor.EventThreat,
			monitor.SeverityMedium,
			req.Source,
			"identity",
			"failed login attempt",
			map[string]any{"email": req.Email, "reason": reason},
		))
	}
}

// Logout deletes the token's session and blacklists the raw token so
// re-presentation fails even before expiry.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.issuer.parse(token)
	if err != nil {
		return err
	}

	s.sessions.Delete(claims.SessionID)

	ttl := s.config.TokenLifetime
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	s.blacklist.Set(token, struct{}{}, ttl)

	s.logger.Info("logout", zap.String("userId", claims.UserID))
	return nil
}

// VerifyToken checks, in order: blacklist membership, signature and payload
// expiry, session presence and expiry, identity existence and active flag.
// Each failure keeps its distinct reason.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Identity, *Claims, error) {
	if _, blacklisted := s.blacklist.Get(token); blacklisted {
		return nil, nil, ErrTokenBlacklisted
	}

	claims, err := s.issuer.parse(token)
	if err != nil {
		return nil, nil, err
	}

	raw, ok := s.sessions.Get(claims.SessionID)
	if !ok {
		return nil, nil, ErrSessionExpired
	}
	session := raw.(Session)
	if time.Now().After(session.ExpiresAt) {
		s.sessions.Delete(session.ID)
		return nil, nil, ErrSessionExpired
	}

	rec, err := s.store.Get(ctx, claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	if !rec.Active {
		return nil, nil, ErrAccountInactive
	}

	return rec, claims, nil
}

// EnableTwoFactor provisions a fresh shared secret, seals it at rest and
// returns the plaintext secret plus the otpauth URL exactly once.
func (s *Service) EnableTwoFactor(ctx context.Context, userID string) (secret, provisioningURL string, err error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if rec.TwoFactorEnabled {
		return "", "", ErrTwoFactorAlreadyOn
	}

	secret, err = generateTOTPSecret()
	if err != nil {
		return "", "", err
	}

	sealed, err := s.crypto.EncryptForStorage(ctx, secret, s.config.MasterKey)
	if err != nil {
		return "", "", fmt.Errorf("sealing two-factor secret: %w", err)
	}

	rec.TwoFactorEnabled = true
	rec.TwoFactorSecret = sealed
	if err := s.store.Put(ctx, rec); err != nil {
		return "", "", fmt.Errorf("storing identity: %w", err)
	}

	s.logger.Info("two-factor enabled", zap.String("userId", userID))
	return secret, otpAuthURL(s.config.TwoFactorIssuer, rec.Email, secret), nil
}

// DisableTwoFactor clears the shared secret.
func (s *Service) DisableTwoFactor(ctx context.Context, userID string) error {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	rec.TwoFactorEnabled = false
	rec.TwoFactorSecret = ""
	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("storing identity: %w", err)
	}

	s.logger.Info("two-factor disabled", zap.String("userId", userID))
	return nil
}

func (s *Service) openTwoFactorSecret(ctx context.Context, rec *Identity) (string, error) {
	var secret string
	if err := s.crypto.DecryptFromStorage(ctx, rec.TwoFactorSecret, s.config.MasterKey, &secret); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Service) recordAttempt(attempt LoginAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, attempt)
	if len(s.attempts) > s.config.MaxAttemptRecords {
		s.attempts = s.attempts[len(s.attempts)-s.config.MaxAttemptRecords:]
	}
}

// RecentAttempts returns up to limit attempt records, newest first.
func (s *Service) RecentAttempts(limit int) []LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LoginAttempt, len(s.attempts))
	copy(out, s.attempts)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats summarizes live state for the admin surface.
func (s *Service) Stats() map[string]int {
	s.mu.Lock()
	attempts := len(s.attempts)
	s.mu.Unlock()

	return map[string]int{
		"activeSessions":    s.sessions.ItemCount(),
		"blacklistedTokens": s.blacklist.ItemCount(),
		"loginAttempts":     attempts,
	}
}

func (s *Service) sweepRoutine() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

// sweep trims the attempt log to the 24h window and drops stale rate-limit
// windows. Sessions and the token blacklist expire through their TTL cache.
func (s *Service) sweep(now time.Time) {
	s.limiter.sweep(now)

	cutoff := now.Add(-24 * time.Hour)
	s.mu.Lock()
	kept := s.attempts[:0]
	for _, a := range s.attempts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	s.attempts = kept
	s.mu.Unlock()
}
