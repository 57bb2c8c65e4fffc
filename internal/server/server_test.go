package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/crypto"
	"github.com/lp24213/agroisync-sub001/internal/firewall"
	"github.com/lp24213/agroisync-sub001/internal/identity"
	"github.com/lp24213/agroisync-sub001/internal/identity/memstore"
	"github.com/lp24213/agroisync-sub001/internal/monitor"
)

type fixture struct {
	srv   *httptest.Server
	store *memstore.Store
	fw    *firewall.Firewall
	mon   *monitor.Monitor
	ids   *identity.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	fw := firewall.New(logger, nil, nil, firewall.Config{})
	t.Cleanup(fw.Close)

	mon := monitor.New(logger, nil, fw.BlacklistSize, monitor.Config{})
	t.Cleanup(mon.Close)

	store := memstore.New()
	ids := identity.NewService(logger, crypto.NewService(logger, 4), store, mon, nil, identity.Config{
		JWTSecret: []byte("server-test-secret-0123456789abcdef"),
	})
	t.Cleanup(ids.Close)

	s := New(logger, Config{RateLimitRPS: 10000, RateLimitBurst: 10000}, ids, fw, mon)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: store, fw: fw, mon: mon, ids: ids}
}

func (f *fixture) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

// registerAndLogin creates an account, optionally promotes it, and returns
// the bearer token.
func (f *fixture) registerAndLogin(t *testing.T, email string, role identity.Role) string {
	t.Helper()
	ctx := context.Background()

	rec, err := f.ids.Register(ctx, email, "Str0ng!pass", "")
	require.NoError(t, err)

	if role != identity.RoleUser {
		rec.Role = role
		require.NoError(t, f.store.Put(ctx, rec))
	}

	res, err := f.ids.Login(ctx, identity.LoginRequest{
		Email:    email,
		Password: "Str0ng!pass",
		Source:   "127.0.0.1",
	})
	require.NoError(t, err)
	return res.Token
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	// Register.
	resp := f.post(t, "/api/auth/register", "", map[string]string{
		"email":    "farmer@example.com",
		"password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created identity.Identity
	decode(t, resp, &created)
	assert.Equal(t, identity.RoleUser, created.Role)

	// Duplicate email.
	resp = f.post(t, "/api/auth/register", "", map[string]string{
		"email":    "farmer@example.com",
		"password": "Str0ng!pass",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Weak password.
	resp = f.post(t, "/api/auth/register", "", map[string]string{
		"email":    "other@example.com",
		"password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Login.
	resp = f.post(t, "/api/auth/login", "", map[string]string{
		"email":    "farmer@example.com",
		"password": "Str0ng!pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login loginResponse
	decode(t, resp, &login)
	require.NotEmpty(t, login.Token)

	// Wrong password is a generic 401.
	resp = f.post(t, "/api/auth/login", "", map[string]string{
		"email":    "farmer@example.com",
		"password": "Wr0ng!pass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Verify with the token.
	resp = f.do(t, http.MethodGet, "/api/auth/verify", login.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var verify map[string]any
	decode(t, resp, &verify)
	assert.NotEmpty(t, verify["sessionId"])

	// Logout, then the token is refused.
	resp = f.post(t, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/auth/verify", login.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestTwoFactorEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "tf@example.com", identity.RoleUser)

	resp := f.post(t, "/api/auth/2fa/enable", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.NotEmpty(t, body["secret"])
	assert.True(t, strings.HasPrefix(body["provisioningUrl"], "otpauth://totp/"))

	// Enabling twice conflicts.
	resp = f.post(t, "/api/auth/2fa/enable", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = f.post(t, "/api/auth/2fa/disable", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminSurface_RequiresAdminRole(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/admin/firewall/rules", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	userToken := f.registerAndLogin(t, "user@example.com", identity.RoleUser)
	resp = f.do(t, http.MethodGet, "/api/admin/firewall/rules", userToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	adminToken := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)
	resp = f.do(t, http.MethodGet, "/api/admin/firewall/rules", adminToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestFirewallRuleCRUD(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)

	resp := f.post(t, "/api/admin/firewall/rules", token, map[string]any{
		"name":    "block scanner",
		"kind":    "address-match",
		"action":  "block",
		"address": "203.0.113.50",
		"enabled": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rule firewall.Rule
	decode(t, resp, &rule)
	require.NotEmpty(t, rule.ID)

	// Invalid rule rejected.
	resp = f.post(t, "/api/admin/firewall/rules", token, map[string]any{
		"name":    "broken",
		"kind":    "pattern-match",
		"action":  "block",
		"pattern": "([",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Disable, then remove.
	req, _ := http.NewRequest(http.MethodPatch, f.srv.URL+"/api/admin/firewall/rules/"+rule.ID, strings.NewReader(`{"enabled":false}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	patchResp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, patchResp.StatusCode)
	patchResp.Body.Close()

	resp = f.do(t, http.MethodDelete, "/api/admin/firewall/rules/"+rule.ID, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodDelete, "/api/admin/firewall/rules/"+rule.ID, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestBlacklistEndpointsAndGate(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)

	resp := f.post(t, "/api/admin/firewall/blacklist", token, map[string]string{
		"address": "198.51.100.66",
		"reason":  "credential stuffing",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/admin/firewall/blacklist", token)
	var list map[string][]string
	decode(t, resp, &list)
	assert.Contains(t, list["addresses"], "198.51.100.66")

	// The gate now refuses that source outright.
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.66")
	blocked, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, blocked.StatusCode)
	blocked.Body.Close()

	resp = f.do(t, http.MethodDelete, "/api/admin/firewall/blacklist/198.51.100.66", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestMonitorEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)

	evt := monitor.NewEvent(monitor.EventThreat, monitor.SeverityMedium, "10.0.0.9", "identity", "failed login attempt", nil)
	f.mon.RecordEvent(evt)
	require.Eventually(t, func() bool { return f.mon.Metrics().TotalEvents >= 1 }, 2*time.Second, 5*time.Millisecond)

	resp := f.do(t, http.MethodGet, "/api/admin/monitor/dashboard", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dash monitor.DashboardData
	decode(t, resp, &dash)
	require.NotEmpty(t, dash.RecentEvents)

	resp = f.post(t, fmt.Sprintf("/api/admin/monitor/events/%s/resolve", evt.ID), token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.post(t, "/api/admin/monitor/events/nope/resolve", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/admin/monitor/alerts", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLiveFeedWebsocket(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/admin/monitor/live"
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	evt := monitor.NewEvent(monitor.EventBlock, monitor.SeverityHigh, "10.0.0.5", "firewall", "blacklisted", nil)
	f.mon.RecordEvent(evt)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var got monitor.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, evt.ID, got.ID)
}

func TestIdentityAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.registerAndLogin(t, "admin@example.com", identity.RoleAdmin)

	resp := f.do(t, http.MethodGet, "/api/admin/identity/stats", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]int
	decode(t, resp, &stats)
	assert.GreaterOrEqual(t, stats["activeSessions"], 1)

	resp = f.do(t, http.MethodGet, "/api/admin/identity/attempts?limit=5", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var attempts map[string][]identity.LoginAttempt
	decode(t, resp, &attempts)
	assert.NotEmpty(t, attempts["attempts"])
}
