// Package server exposes the security services over HTTP: the public auth
// endpoints, the admin surface for firewall and monitor management, the
// Prometheus scrape endpoint and a websocket live event feed. Handlers only
// adapt transport to the services; no business rules live here.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lp24213/agroisync-sub001/internal/firewall"
	"github.com/lp24213/agroisync-sub001/internal/identity"
	applog "github.com/lp24213/agroisync-sub001/internal/logger"
	"github.com/lp24213/agroisync-sub001/internal/middleware"
	"github.com/lp24213/agroisync-sub001/internal/monitor"
	"github.com/lp24213/agroisync-sub001/pkg/trace"
)

// Config holds the HTTP server settings.
type Config struct {
	Host            string                    `yaml:"host"`
	Port            int                       `yaml:"port"`
	ReadTimeout     time.Duration             `yaml:"read_timeout"`
	WriteTimeout    time.Duration             `yaml:"write_timeout"`
	IdleTimeout     time.Duration             `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration             `yaml:"shutdown_timeout"`
	RateLimitRPS    float64                   `yaml:"rate_limit_rps"`
	RateLimitBurst  int                       `yaml:"rate_limit_burst"`
	Security        middleware.SecurityConfig `yaml:"security"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8443
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server wires the services to their HTTP surface.
type Server struct {
	logger   *zap.Logger
	config   Config
	identity *identity.Service
	firewall *firewall.Firewall
	monitor  *monitor.Monitor

	httpServer *http.Server
}

// New builds the server and its router.
func New(logger *zap.Logger, cfg Config, ids *identity.Service, fw *firewall.Firewall, mon *monitor.Monitor) *Server {
	cfg.applyDefaults()

	s := &Server{
		logger:   logger,
		config:   cfg,
		identity: ids,
		firewall: fw,
		monitor:  mon,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     log.New(applog.NewZapWriter(logger, zapcore.ErrorLevel, "http"), "", 0),
	}

	return s
}

// router assembles the middleware chain and the route tree. Order matters:
// tracing and logging wrap everything, the firewall gate runs before any
// handler, authentication only guards the routes that need it.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(trace.WithRequestID().Middleware)
	r.Use(middleware.NewLoggingMiddleware(s.logger, middleware.WithExcludePaths([]string{"/metrics", "/healthz"})).Middleware)
	r.Use(middleware.NewSecurityHeaders(s.config.Security).Middleware)
	r.Use(middleware.NewRateLimiterMiddleware(s.config.RateLimitRPS, s.config.RateLimitBurst).Middleware)
	r.Use(middleware.NewFirewallGate(s.firewall).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthenticator(s.logger, s.identity).Middleware)
			r.Post("/logout", s.handleLogout)
			r.Get("/verify", s.handleVerify)
			r.Post("/2fa/enable", s.handleEnableTwoFactor)
			r.Post("/2fa/disable", s.handleDisableTwoFactor)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewAuthenticator(s.logger, s.identity).Middleware)
		r.Use(middleware.NewRequireRole(identity.RoleAdmin).Middleware)

		r.Route("/firewall", func(r chi.Router) {
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleAddRule)
			r.Delete("/rules/{id}", s.handleRemoveRule)
			r.Patch("/rules/{id}", s.handleToggleRule)

			r.Get("/blacklist", s.handleGetBlacklist)
			r.Post("/blacklist", s.handleAddToBlacklist)
			r.Delete("/blacklist/{address}", s.handleRemoveFromBlacklist)

			r.Get("/whitelist", s.handleGetWhitelist)
			r.Post("/whitelist", s.handleAddToWhitelist)
			r.Delete("/whitelist/{address}", s.handleRemoveFromWhitelist)

			r.Get("/stats", s.handleFirewallStats)
		})

		r.Route("/monitor", func(r chi.Router) {
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/alerts", s.handleAlerts)
			r.Post("/events/{id}/resolve", s.handleResolveEvent)
			r.Get("/live", s.handleLiveFeed)
		})

		r.Route("/identity", func(r chi.Router) {
			r.Get("/attempts", s.handleLoginAttempts)
			r.Get("/stats", s.handleIdentityStats)
		})
	})

	return r
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"threatScore": s.monitor.Metrics().ThreatScore,
	})
}
