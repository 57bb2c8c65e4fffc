// Package config loads the application configuration: a YAML file for
// structure and tuning, environment variables for secrets. Secrets never
// live in the YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// AgroSec is the root configuration structure.
type AgroSec struct {
	Env      string   `yaml:"env"` // "development" or "production"
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Crypto   Crypto   `yaml:"crypto"`
	Identity Identity `yaml:"identity"`
	Firewall Firewall `yaml:"firewall"`
	Monitor  Monitor  `yaml:"monitor"`
	Notify   Notify   `yaml:"notify"`
	Storage  Storage  `yaml:"storage"`
}

// Server configures the HTTP listener and its middleware.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	Security        Security      `yaml:"security"`
}

// Security holds configuration settings for security-related HTTP headers.
type Security struct {
	HSTS                  bool   `yaml:"hsts"`
	HSTSMaxAge            int    `yaml:"hsts_max_age"`
	HSTSIncludeSubDomains bool   `yaml:"hsts_include_subdomains"`
	HSTSPreload           bool   `yaml:"hsts_preload"`
	FrameOptions          string `yaml:"frame_options"`
	ContentTypeOptions    bool   `yaml:"content_type_options"`
	XSSProtection         bool   `yaml:"xss_protection"`
}

// Logging points at the logger manager's JSON config files.
type Logging struct {
	ConfigPaths []string `yaml:"config_paths"`
	LoggerName  string   `yaml:"logger_name"` // named logger to use, default "default"
}

// Crypto tunes the key-derivation concurrency gate. The master key itself
// comes from MASTER_ENCRYPTION_KEY.
type Crypto struct {
	MaxConcurrentDerivations int64 `yaml:"max_concurrent_derivations"`

	MasterKey string `yaml:"-"`
}

// Identity configures login policy and token issuance. The signing secret
// comes from JWT_SECRET.
type Identity struct {
	TokenLifetime     time.Duration `yaml:"token_lifetime"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	MaxFailedLogins   int           `yaml:"max_failed_logins"`
	LockDuration      time.Duration `yaml:"lock_duration"`
	RateLimitAttempts int           `yaml:"rate_limit_attempts"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	TwoFactorIssuer   string        `yaml:"two_factor_issuer"`

	JWTSecret string `yaml:"-"`
}

// Firewall tunes the stats sweep.
type Firewall struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// Monitor tunes the event pipeline.
type Monitor struct {
	QueueSize       int           `yaml:"queue_size"`
	ScoreWindow     time.Duration `yaml:"score_window"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Retention       time.Duration `yaml:"retention"`
}

// Notify configures the alert channels. A channel with a zero value is not
// wired. The SMTP password comes from SMTP_PASSWORD.
type Notify struct {
	Email          *Email `yaml:"email,omitempty"`
	ChatWebhookURL string `yaml:"chat_webhook_url"`
	SMSEnabled     bool   `yaml:"sms_enabled"`
}

// Email holds SMTP settings for the email alert channel.
type Email struct {
	Host string   `yaml:"host"`
	Port int      `yaml:"port"`
	From string   `yaml:"from"`
	To   []string `yaml:"to"`

	Password string `yaml:"-"`
}

// Storage selects the identity store backend.
type Storage struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`    // sqlite file path
}

// Load reads the YAML file, overlays secrets from the environment and
// validates the result.
func Load(path string) (*AgroSec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AgroSec
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the secret material. Environment always wins.
func (cfg *AgroSec) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Identity.JWTSecret = v
	}
	if v := os.Getenv("MASTER_ENCRYPTION_KEY"); v != "" {
		cfg.Crypto.MasterKey = v
	}
	if cfg.Notify.Email != nil {
		if v := os.Getenv("SMTP_PASSWORD"); v != "" {
			cfg.Notify.Email.Password = v
		}
	}
}

// Validate rejects configurations that cannot start safely.
func (cfg *AgroSec) Validate() error {
	if cfg.Identity.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.Identity.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(cfg.Identity.JWTSecret))
	}
	if cfg.Crypto.MasterKey == "" {
		return fmt.Errorf("MASTER_ENCRYPTION_KEY is required")
	}

	switch cfg.Storage.Backend {
	case "", "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Notify.Email != nil {
		e := cfg.Notify.Email
		if e.Host == "" || e.From == "" || len(e.To) == 0 {
			return fmt.Errorf("notify.email requires host, from and at least one recipient")
		}
		if e.Password == "" {
			return fmt.Errorf("SMTP_PASSWORD is required when notify.email is configured")
		}
	}

	return nil
}
