package fakes

import (
	"sync"

	"github.com/dhima/mysql-connector/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one line captured by RecordingLogger.
type LogEntry struct {
	Level   zapcore.Level
	Message string
	Fields  []zap.Field
}

// RecordingLogger keeps every log line in memory. Loggers derived with
// With share the parent's entries.
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []zap.Field
}

// NewRecordingLogger returns an empty recording logger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (l *RecordingLogger) record(level zapcore.Level, msg string, fields []zap.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]zap.Field{}, l.fields...), fields...)
	*l.entries = append(*l.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

func (l *RecordingLogger) Debug(msg string, fields ...zap.Field) {
	l.record(zapcore.DebugLevel, msg, fields)
}

func (l *RecordingLogger) Info(msg string, fields ...zap.Field) {
	l.record(zapcore.InfoLevel, msg, fields)
}

func (l *RecordingLogger) Warn(msg string, fields ...zap.Field) {
	l.record(zapcore.WarnLevel, msg, fields)
}

func (l *RecordingLogger) Error(msg string, fields ...zap.Field) {
	l.record(zapcore.ErrorLevel, msg, fields)
}

func (l *RecordingLogger) Fatal(msg string, fields ...zap.Field) {
	l.record(zapcore.FatalLevel, msg, fields)
}

func (l *RecordingLogger) Sync() error { return nil }

func (l *RecordingLogger) With(fields ...zap.Field) logging.Logger {
	return &RecordingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]zap.Field{}, l.fields...), fields...),
	}
}

// Entries returns a copy of the captured lines.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry{}, *l.entries...)
}

// Count returns how many lines were logged at level with message msg.
func (l *RecordingLogger) Count(level zapcore.Level, msg string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == msg {
			n++
		}
	}
	return n
}

// CountLevel returns how many lines were logged at level.
func (l *RecordingLogger) CountLevel(level zapcore.Level) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
