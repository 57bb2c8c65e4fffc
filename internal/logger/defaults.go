package logger

// DefaultConfig is the fallback for any logger not present in the config
// files. The sensitive field list covers everything the security services
// attach to log entries.
var DefaultConfig = Config{
	Level:        "info",
	OutputPaths:  []string{"stdout"},
	LogToConsole: true,
	Encoding: Encoding{
		TimeKey:         "time",
		LevelKey:        "level",
		NameKey:         "logger",
		CallerKey:       "caller",
		MessageKey:      "msg",
		StacktraceKey:   "stacktrace",
		LevelEncoder:    "lowercase",
		TimeEncoder:     "iso8601",
		DurationEncoder: "string",
		CallerEncoder:   "short",
	},
	Rotation: Rotation{
		Enabled:    true,
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 30,
		Compress:   true,
	},
	Sanitization: Sanitization{
		SensitiveFields: []string{
			"password",
			"passwordHash",
			"token",
			"secret",
			"twoFactorSecret",
			"apiKey",
		},
		Mask: "****",
	},
}

func applyDefaults(cfg *Config) {
	if cfg.Level == "" {
		cfg.Level = DefaultConfig.Level
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = DefaultConfig.OutputPaths
	}
	if cfg.Encoding.TimeKey == "" {
		cfg.Encoding.TimeKey = DefaultConfig.Encoding.TimeKey
	}
	if cfg.Encoding.LevelKey == "" {
		cfg.Encoding.LevelKey = DefaultConfig.Encoding.LevelKey
	}
	if cfg.Encoding.MessageKey == "" {
		cfg.Encoding.MessageKey = DefaultConfig.Encoding.MessageKey
	}
	if cfg.Encoding.LevelEncoder == "" {
		cfg.Encoding.LevelEncoder = DefaultConfig.Encoding.LevelEncoder
	}
	if cfg.Encoding.TimeEncoder == "" {
		cfg.Encoding.TimeEncoder = DefaultConfig.Encoding.TimeEncoder
	}
	if cfg.Encoding.DurationEncoder == "" {
		cfg.Encoding.DurationEncoder = DefaultConfig.Encoding.DurationEncoder
	}
	if cfg.Encoding.CallerEncoder == "" {
		cfg.Encoding.CallerEncoder = DefaultConfig.Encoding.CallerEncoder
	}
	if cfg.Rotation.MaxSizeMB == 0 {
		cfg.Rotation.MaxSizeMB = DefaultConfig.Rotation.MaxSizeMB
	}
	if cfg.Rotation.MaxBackups == 0 {
		cfg.Rotation.MaxBackups = DefaultConfig.Rotation.MaxBackups
	}
	if cfg.Rotation.MaxAgeDays == 0 {
		cfg.Rotation.MaxAgeDays = DefaultConfig.Rotation.MaxAgeDays
	}
	if len(cfg.Sanitization.SensitiveFields) == 0 {
		cfg.Sanitization.SensitiveFields = DefaultConfig.Sanitization.SensitiveFields
	}
	if cfg.Sanitization.Mask == "" {
		cfg.Sanitization.Mask = DefaultConfig.Sanitization.Mask
	}
}
