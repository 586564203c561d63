package logging

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger on top of a logrus entry. It is the logger
// used by the server and the CLI; Fatal exits through logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a logrus-backed logger writing to out. format is
// "json" or "text" (anything else falls back to text).
func NewLogrusLogger(out io.Writer, format string, level Level) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(out)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetLevel(toLogrusLevel(level))
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// FromLogrus wraps an existing logrus logger so applications that already use
// logrus can hand it to this library.
func FromLogrus(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *LogrusLogger) with(fields ...Fields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(mergeFields(nil, fields...)))
}

func (l *LogrusLogger) Debug(msg string, fields ...Fields) {
	l.with(fields...).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...Fields) {
	l.with(fields...).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...Fields) {
	l.with(fields...).Warn(msg)
}

func (l *LogrusLogger) Error(err error, msg string, fields ...Fields) {
	l.with(fields...).WithError(err).Error(msg)
}

func (l *LogrusLogger) Fatal(err error, msg string, fields ...Fields) {
	l.with(fields...).WithError(err).Fatal(msg)
}

func (l *LogrusLogger) WithFields(fields Fields) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	next := &LogrusLogger{entry: l.entry.WithContext(ctx)}
	if fields, ok := FieldsFromContext(ctx); ok {
		return next.WithFields(fields)
	}
	return next
}

// SetLevel changes the level of the underlying logrus logger, which is shared
// by every logger derived through WithFields.
func (l *LogrusLogger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(toLogrusLevel(level))
}
