package logging

import (
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across the connector.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

// maxStatementLen bounds how much of a SQL statement ends up in a log line.
const maxStatementLen = 256

type zapLogger struct {
	logger *zap.Logger
}

// NewLogger builds a zap-backed logger. environment is "development" or
// "production"; an unparseable level falls back to info.
func NewLogger(environment, logLevel string) (Logger, error) {
	var config zap.Config

	if environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	}

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &zapLogger{logger: logger.With(zap.String("service", "mysql-connector"))}, nil
}

// NewDevelopmentLogger creates a console logger at debug level.
func NewDevelopmentLogger() (Logger, error) {
	return NewLogger("development", "debug")
}

// NewProductionLogger creates a JSON logger at info level.
func NewProductionLogger() (Logger, error) {
	return NewLogger("production", "info")
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.logger.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...zap.Field) { l.logger.Fatal(msg, fields...) }

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// Zap returns the underlying *zap.Logger of a zap-backed Logger, or a no-op
// zap logger for any other implementation. gin-contrib/zap needs the
// concrete type.
func Zap(l Logger) *zap.Logger {
	if zl, ok := l.(*zapLogger); ok {
		return zl.logger.WithOptions(zap.AddCallerSkip(-1))
	}
	return zap.NewNop()
}

// Op tags a log line with the session operation that produced it.
func Op(name string) zap.Field {
	return zap.String("op", name)
}

// Table tags a log line with a cached table name.
func Table(name string) zap.Field {
	return zap.String("table", name)
}

// Statement tags a log line with a SQL statement. Credentials are masked
// and long statements are cut short.
func Statement(sql string) zap.Field {
	return zap.String("sql", SanitizeSQL(sql, maxStatementLen))
}

const redactedSecret = "'*****'"

// quoted matches a single- or double-quoted SQL string literal.
const quoted = `('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*")`

var secretPatterns = []*regexp.Regexp{
	// CREATE/ALTER USER ... IDENTIFIED [WITH plugin] BY|AS '...'
	regexp.MustCompile(`(?i)(\bIDENTIFIED(?:\s+WITH\s+\S+)?\s+(?:BY|AS)\s+)` + quoted),
	// SET PASSWORD [FOR user] = '...', PASSWORD('...')
	regexp.MustCompile(`(?i)(\bPASSWORD(?:\s+FOR\s+\S+)?\s*(?:=|\()\s*)` + quoted),
}

// SanitizeSQL masks password literals in sql and truncates the result to
// at most maxBytes bytes plus an ellipsis, never splitting a UTF-8 rune.
// maxBytes <= 0 disables truncation.
func SanitizeSQL(sql string, maxBytes int) string {
	for _, re := range secretPatterns {
		sql = re.ReplaceAllString(sql, "${1}"+redactedSecret)
	}
	return truncate(sql, maxBytes)
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// NoOpLogger discards everything. Useful for testing.
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields ...zap.Field) {}
func (l *NoOpLogger) Info(msg string, fields ...zap.Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...zap.Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...zap.Field) {}
func (l *NoOpLogger) Fatal(msg string, fields ...zap.Field) {}
func (l *NoOpLogger) With(fields ...zap.Field) Logger       { return l }
func (l *NoOpLogger) Sync() error                           { return nil }

// NewNoOpLogger creates a no-op logger for testing.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}
