package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/crypto"
	"github.com/lp24213/agroisync-sub001/internal/identity"
	"github.com/lp24213/agroisync-sub001/internal/identity/memstore"
	"github.com/lp24213/agroisync-sub001/internal/monitor"
)

type captureSink struct {
	events []monitor.Event
}

func (c *captureSink) RecordEvent(evt monitor.Event) {
	c.events = append(c.events, evt)
}

// acceptCode verifies any code equal to its fixed value.
type acceptCode struct {
	code string
}

func (a *acceptCode) Verify(_, code string, _ time.Time) bool {
	return code == a.code
}

const (
	testEmail    = "farmer@agro.example"
	testPassword = "Abcdef1!"
)

func newTestService(t *testing.T, cfg identity.Config) (*identity.Service, *captureSink) {
	t.Helper()

	if cfg.JWTSecret == nil {
		cfg.JWTSecret = []byte("test-signing-secret")
	}
	if cfg.MasterKey == "" {
		cfg.MasterKey = "test-master-key"
	}

	sink := &captureSink{}
	svc := identity.NewService(
		zap.NewNop(),
		crypto.NewService(zap.NewNop(), 2),
		memstore.New(),
		sink,
		&acceptCode{code: "123456"},
		cfg,
	)
	t.Cleanup(svc.Close)
	return svc, sink
}

func register(t *testing.T, svc *identity.Service) *identity.Identity {
	t.Helper()
	rec, err := svc.Register(context.Background(), testEmail, testPassword, "")
	require.NoError(t, err)
	return rec
}

func loginReq(password string) identity.LoginRequest {
	return identity.LoginRequest{
		Email:     testEmail,
		Password:  password,
		Source:    "10.0.0.1",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	}
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	ctx := context.Background()

	rec := register(t, svc)
	assert.Equal(t, identity.RoleUser, rec.Role)
	assert.True(t, rec.Active)
	assert.ElementsMatch(t, []string{"read", "write"}, rec.Permissions)
	assert.NotEqual(t, testPassword, rec.PasswordHash)

	_, err := svc.Register(ctx, testEmail, testPassword, "")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	_, err = svc.Register(ctx, "not-an-email", testPassword, "")
	assert.ErrorIs(t, err, identity.ErrInvalidEmail)

	for _, weak := range []string{"alllowercase1!", "ALLUPPERCASE1!", "NoDigitsHere!", "NoSymbols11", "Ab1!"} {
		_, err = svc.Register(ctx, "other@agro.example", weak, "")
		assert.ErrorIs(t, err, identity.ErrWeakPassword, "password %q", weak)
	}
}

func TestLogin_Success(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	register(t, svc)

	result, err := svc.Login(context.Background(), loginReq(testPassword))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, testEmail, result.Identity.Email)
	assert.NotNil(t, result.Identity.LastLogin)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.Session.ExpiresAt, time.Minute)
}

func TestLogin_GenericFailures(t *testing.T) {
	svc, sink := newTestService(t, identity.Config{})
	register(t, svc)
	ctx := context.Background()

	_, err := svc.Login(ctx, loginReq("Wrong-pass1!"))
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	req := loginReq(testPassword)
	req.Email = "nobody@agro.example"
	_, err = svc.Login(ctx, req)
	// Unknown identity and wrong password are indistinguishable.
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	// Both failures were forwarded as medium threat events.
	require.Len(t, sink.events, 2)
	for _, evt := range sink.events {
		assert.Equal(t, monitor.EventThreat, evt.Type)
		assert.Equal(t, monitor.SeverityMedium, evt.Severity)
	}
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{LockDuration: 15 * time.Minute})
	register(t, svc)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, loginReq("Wrong-pass1!"))
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials, "attempt %d", i+1)
	}

	// The correct password is rejected while the lock holds.
	_, err := svc.Login(ctx, loginReq(testPassword))
	var lockErr *identity.LockoutError
	require.ErrorAs(t, err, &lockErr)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), lockErr.Until, time.Minute)
}

func TestLogin_LockoutExpires(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{LockDuration: time.Millisecond})
	register(t, svc)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Login(ctx, loginReq("Wrong-pass1!"))
	}
	time.Sleep(20 * time.Millisecond)

	result, err := svc.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestLogin_SuccessResetsFailureCounter(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	register(t, svc)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		svc.Login(ctx, loginReq("Wrong-pass1!"))
	}
	_, err := svc.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)

	// Counter reset: four more failures do not lock.
	for i := 0; i < 4; i++ {
		_, err = svc.Login(ctx, loginReq("Wrong-pass1!"))
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}
	_, err = svc.Login(ctx, loginReq(testPassword))
	assert.NoError(t, err)
}

func TestLogin_RateLimited(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{
		RateLimitAttempts: 3,
		RateLimitWindow:   time.Hour,
		// Generous lockout budget so the limiter fires first.
		MaxFailedLogins: 100,
	})
	register(t, svc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Login(ctx, loginReq("Wrong-pass1!"))
	}

	_, err := svc.Login(ctx, loginReq(testPassword))
	var rateErr *identity.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
}

func TestTokenLifecycle(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	register(t, svc)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)

	rec, claims, err := svc.VerifyToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, testEmail, rec.Email)
	assert.Equal(t, result.Session.ID, claims.SessionID)
	assert.Equal(t, "agroisync", claims.Issuer)

	require.NoError(t, svc.Logout(ctx, result.Token))

	// The token is still unexpired but revoked.
	_, _, err = svc.VerifyToken(ctx, result.Token)
	assert.ErrorIs(t, err, identity.ErrTokenBlacklisted)
}

func TestVerifyToken_Expired(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{TokenLifetime: time.Millisecond})
	register(t, svc)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq(testPassword))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// Expiry is rejected lazily, no sweep needed.
	_, _, err = svc.VerifyToken(ctx, result.Token)
	assert.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})

	_, _, err := svc.VerifyToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestTwoFactorFlow(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	rec := register(t, svc)
	ctx := context.Background()

	secret, url, err := svc.EnableTwoFactor(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, url, "otpauth://totp/")
	assert.Contains(t, url, "AgroiSync")

	_, _, err = svc.EnableTwoFactor(ctx, rec.ID)
	assert.ErrorIs(t, err, identity.ErrTwoFactorAlreadyOn)

	// Password alone no longer suffices.
	_, err = svc.Login(ctx, loginReq(testPassword))
	assert.ErrorIs(t, err, identity.ErrSecondFactorRequired)

	req := loginReq(testPassword)
	req.SecondFactorCode = "000000"
	_, err = svc.Login(ctx, req)
	assert.ErrorIs(t, err, identity.ErrSecondFactorInvalid)

	req.SecondFactorCode = "123456"
	result, err := svc.Login(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	require.NoError(t, svc.DisableTwoFactor(ctx, rec.ID))
	_, err = svc.Login(ctx, loginReq(testPassword))
	assert.NoError(t, err)
}

func TestRecentAttemptsAndStats(t *testing.T) {
	svc, _ := newTestService(t, identity.Config{})
	register(t, svc)
	ctx := context.Background()

	svc.Login(ctx, loginReq("Wrong-pass1!"))
	svc.Login(ctx, loginReq(testPassword))

	attempts := svc.RecentAttempts(10)
	require.Len(t, attempts, 2)
	assert.True(t, attempts[0].Success) // newest first
	assert.False(t, attempts[1].Success)
	assert.Equal(t, "wrong password", attempts[1].Reason)

	stats := svc.Stats()
	assert.Equal(t, 1, stats["activeSessions"])
	assert.Equal(t, 2, stats["loginAttempts"])
}
