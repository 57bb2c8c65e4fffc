// Package logger builds the zap loggers used across the service: JSON
// file output with rotation behind an async batching core, optional
// console output for development, and field sanitization so credentials
// never reach a log file.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level        string       `json:"level"`
	OutputPaths  []string     `json:"outputPaths"`
	Development  bool         `json:"development"`
	LogToConsole bool         `json:"logToConsole"`
	Encoding     Encoding     `json:"encoding"`
	Rotation     Rotation     `json:"rotation"`
	Sanitization Sanitization `json:"sanitization"`
}

type Encoding struct {
	TimeKey         string `json:"timeKey"`
	LevelKey        string `json:"levelKey"`
	NameKey         string `json:"nameKey"`
	CallerKey       string `json:"callerKey"`
	MessageKey      string `json:"messageKey"`
	StacktraceKey   string `json:"stacktraceKey"`
	LevelEncoder    string `json:"levelEncoder"`
	TimeEncoder     string `json:"timeEncoder"`
	DurationEncoder string `json:"durationEncoder"`
	CallerEncoder   string `json:"callerEncoder"`
}

type Rotation struct {
	Enabled    bool `json:"enabled"`
	MaxSizeMB  int  `json:"maxSizeMB"`
	MaxBackups int  `json:"maxBackups"`
	MaxAgeDays int  `json:"maxAgeDays"`
	Compress   bool `json:"compress"`
}

// Sanitization configures sensitive field masking.
type Sanitization struct {
	SensitiveFields []string `json:"sensitiveFields"`
	Mask            string   `json:"mask"`
}

// Build constructs a named logger from the config. File outputs go through
// the async core; console output stays synchronous.
func Build(name string, cfg Config) (*zap.Logger, error) {
	applyDefaults(&cfg)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        cfg.Encoding.TimeKey,
		LevelKey:       cfg.Encoding.LevelKey,
		NameKey:        cfg.Encoding.NameKey,
		CallerKey:      cfg.Encoding.CallerKey,
		MessageKey:     cfg.Encoding.MessageKey,
		StacktraceKey:  cfg.Encoding.StacktraceKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder(cfg.Encoding.LevelEncoder),
		EncodeTime:     timeEncoder(cfg.Encoding.TimeEncoder),
		EncodeDuration: durationEncoder(cfg.Encoding.DurationEncoder),
		EncodeCaller:   callerEncoder(cfg.Encoding.CallerEncoder),
	}

	consoleEncoderConfig := encoderConfig
	consoleEncoderConfig.EncodeLevel = coloredLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)
	atomicLevel := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var cores []zapcore.Core
	if cfg.Development || cfg.LogToConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), atomicLevel))
	}

	for _, path := range cfg.OutputPaths {
		if path == "stdout" || path == "stderr" {
			// Already covered by the console core.
			continue
		}

		var ws zapcore.WriteSyncer
		if cfg.Rotation.Enabled {
			ws = zapcore.AddSync(&lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.Rotation.MaxSizeMB,
				MaxBackups: cfg.Rotation.MaxBackups,
				MaxAge:     cfg.Rotation.MaxAgeDays,
				Compress:   cfg.Rotation.Compress,
			})
		} else {
			file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil, fmt.Errorf("opening log file %s: %w", path, err)
			}
			ws = zapcore.AddSync(file)
		}

		fileCore := zapcore.NewCore(jsonEncoder, ws, atomicLevel)
		cores = append(cores, NewAsyncCore(fileCore, 1000, 100, 500*time.Millisecond))
	}

	combined := zapcore.NewTee(cores...)
	if len(cfg.Sanitization.SensitiveFields) > 0 {
		combined = NewSanitizerCore(combined, cfg.Sanitization.SensitiveFields, cfg.Sanitization.Mask)
	}

	return zap.New(combined,
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	).Named(name), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "dpanic":
		return zap.DPanicLevel
	case "panic":
		return zap.PanicLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func levelEncoder(encoder string) zapcore.LevelEncoder {
	switch strings.ToLower(encoder) {
	case "uppercase", "capital":
		return zapcore.CapitalLevelEncoder
	default:
		return zapcore.LowercaseLevelEncoder
	}
}

func timeEncoder(encoder string) zapcore.TimeEncoder {
	switch strings.ToLower(encoder) {
	case "epoch":
		return zapcore.EpochTimeEncoder
	case "millis":
		return zapcore.EpochMillisTimeEncoder
	case "nanos":
		return zapcore.EpochNanosTimeEncoder
	default:
		return zapcore.ISO8601TimeEncoder
	}
}

func durationEncoder(encoder string) zapcore.DurationEncoder {
	switch strings.ToLower(encoder) {
	case "seconds":
		return zapcore.SecondsDurationEncoder
	case "millis":
		return zapcore.MillisDurationEncoder
	case "nanos":
		return zapcore.NanosDurationEncoder
	default:
		return zapcore.StringDurationEncoder
	}
}

func callerEncoder(encoder string) zapcore.CallerEncoder {
	switch strings.ToLower(encoder) {
	case "full":
		return zapcore.FullCallerEncoder
	default:
		return zapcore.ShortCallerEncoder
	}
}

// adds color codes to log levels for console output - this is a bit slow so only in dev
func coloredLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var level string
	switch l {
	case zapcore.DebugLevel:
		level = "\x1b[36m" + l.String() + "\x1b[0m" // Cyan
	case zapcore.InfoLevel:
		level = "\x1b[32m" + l.String() + "\x1b[0m" // Green
	case zapcore.WarnLevel:
		level = "\x1b[33m" + l.String() + "\x1b[0m" // Yellow
	case zapcore.ErrorLevel:
		level = "\x1b[31m" + l.String() + "\x1b[0m" // Red
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		level = "\x1b[35m" + l.String() + "\x1b[0m" // Magenta
	default:
		level = l.String()
	}
	enc.AppendString(level)
}
