package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapWriter adapts a zap logger to io.Writer so stdlib components that
// insist on a *log.Logger (like http.Server.ErrorLog) write structured
// entries.
type ZapWriter struct {
	logger *zap.Logger
	level  zapcore.Level
	prefix string
}

func NewZapWriter(logger *zap.Logger, level zapcore.Level, prefix string) *ZapWriter {
	return &ZapWriter{
		logger: logger,
		level:  level,
		prefix: prefix,
	}
}

func (w *ZapWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	var fields []zap.Field
	if w.prefix != "" {
		fields = append(fields, zap.String("prefix", w.prefix))
	}

	switch w.level {
	case zapcore.DebugLevel:
		w.logger.Debug(msg, fields...)
	case zapcore.WarnLevel:
		w.logger.Warn(msg, fields...)
	case zapcore.ErrorLevel:
		w.logger.Error(msg, fields...)
	default:
		w.logger.Info(msg, fields...)
	}

	return len(p), nil
}
