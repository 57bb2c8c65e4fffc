package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/config"
	"github.com/lp24213/agroisync-sub001/internal/crypto"
	"github.com/lp24213/agroisync-sub001/internal/firewall"
	"github.com/lp24213/agroisync-sub001/internal/identity"
	"github.com/lp24213/agroisync-sub001/internal/identity/memstore"
	"github.com/lp24213/agroisync-sub001/internal/identity/sqlitestore"
	"github.com/lp24213/agroisync-sub001/internal/logger"
	"github.com/lp24213/agroisync-sub001/internal/middleware"
	"github.com/lp24213/agroisync-sub001/internal/monitor"
	"github.com/lp24213/agroisync-sub001/internal/notify"
	"github.com/lp24213/agroisync-sub001/internal/server"
	"github.com/lp24213/agroisync-sub001/internal/shutdown"
)

// application holds the wired component graph. Construction order follows
// the dependency arrows: crypto has none, the firewall and identity feed
// the monitor, the server sits on top of everything.
type application struct {
	server   *server.Server
	identity *identity.Service
	firewall *firewall.Firewall
	monitor  *monitor.Monitor
	closers  []func() error
}

func buildApp(cfg *config.AgroSec, logManager *logger.Manager) (*application, error) {
	app := &application{}

	cryptoSvc := crypto.NewService(logManager.Get("crypto"), cfg.Crypto.MaxConcurrentDerivations)

	channels, err := buildChannels(cfg.Notify, logManager.Get("notify"))
	if err != nil {
		return nil, err
	}

	// The monitor probes the firewall's blacklist, the firewall emits events
	// into the monitor. The closure breaks the construction cycle: the health
	// loop only fires long after both exist.
	app.monitor = monitor.New(logManager.Get("monitor"), channels, func() int {
		if app.firewall == nil {
			return 0
		}
		return app.firewall.BlacklistSize()
	}, monitor.Config{
		QueueSize:       cfg.Monitor.QueueSize,
		ScoreWindow:     cfg.Monitor.ScoreWindow,
		HealthInterval:  cfg.Monitor.HealthInterval,
		CleanupInterval: cfg.Monitor.CleanupInterval,
		Retention:       cfg.Monitor.Retention,
	})

	app.firewall = firewall.New(logManager.Get("firewall"), nil, app.monitor, firewall.Config{
		SweepInterval: cfg.Firewall.SweepInterval,
		StaleAfter:    cfg.Firewall.StaleAfter,
	})

	store, closeStore, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	app.identity = identity.NewService(
		logManager.Get("identity"),
		cryptoSvc,
		store,
		app.monitor,
		nil,
		identity.Config{
			JWTSecret:         []byte(cfg.Identity.JWTSecret),
			TokenLifetime:     cfg.Identity.TokenLifetime,
			Issuer:            cfg.Identity.Issuer,
			Audience:          cfg.Identity.Audience,
			MaxFailedLogins:   cfg.Identity.MaxFailedLogins,
			LockDuration:      cfg.Identity.LockDuration,
			RateLimitAttempts: cfg.Identity.RateLimitAttempts,
			RateLimitWindow:   cfg.Identity.RateLimitWindow,
			SweepInterval:     cfg.Identity.SweepInterval,
			MasterKey:         cfg.Crypto.MasterKey,
			TwoFactorIssuer:   cfg.Identity.TwoFactorIssuer,
		},
	)

	if err := firewall.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("registering firewall metrics: %w", err)
	}
	if err := monitor.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("registering monitor metrics: %w", err)
	}

	app.server = server.New(logManager.Get("server"), server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		Security: middleware.SecurityConfig{
			HSTS:                  cfg.Server.Security.HSTS,
			HSTSMaxAge:            cfg.Server.Security.HSTSMaxAge,
			HSTSIncludeSubDomains: cfg.Server.Security.HSTSIncludeSubDomains,
			HSTSPreload:           cfg.Server.Security.HSTSPreload,
			FrameOptions:          cfg.Server.Security.FrameOptions,
			ContentTypeOptions:    cfg.Server.Security.ContentTypeOptions,
			XSSProtection:         cfg.Server.Security.XSSProtection,
		},
	}, app.identity, app.firewall, app.monitor)

	return app, nil
}

// buildChannels wires the configured alert channels.
func buildChannels(cfg config.Notify, logger *zap.Logger) ([]monitor.AlertChannel, error) {
	var channels []monitor.AlertChannel

	if cfg.Email != nil {
		email, err := notify.NewEmailChannel(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			From:     cfg.Email.From,
			Password: cfg.Email.Password,
			To:       cfg.Email.To,
		})
		if err != nil {
			return nil, fmt.Errorf("building email channel: %w", err)
		}
		channels = append(channels, email)
	}

	if cfg.ChatWebhookURL != "" {
		channels = append(channels, notify.NewChatChannel(cfg.ChatWebhookURL, nil))
	}

	if cfg.SMSEnabled {
		channels = append(channels, notify.NewSMSChannel(logger))
	}

	return channels, nil
}

// buildStore selects the identity store backend. The returned closer is
// nil for backends without resources to release.
func buildStore(cfg config.Storage) (identity.Store, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.New(), nil, nil
	case "sqlite":
		store, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// registerShutdown orders teardown: listener first so no new work arrives,
// then the services behind it.
func (app *application) registerShutdown(mgr *shutdown.Manager) {
	mgr.Register("http", app.server.Shutdown)
	mgr.Register("identity", func(context.Context) error {
		app.identity.Close()
		return nil
	})
	mgr.Register("monitor", func(context.Context) error {
		app.monitor.Close()
		return nil
	})
	mgr.Register("firewall", func(context.Context) error {
		app.firewall.Close()
		return nil
	})
	for _, c := range app.closers {
		mgr.Register("store", func(context.Context) error { return c() })
	}
}
