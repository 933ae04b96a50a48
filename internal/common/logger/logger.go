package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger emits one JSON line per action, tagged with the owning service.
type Logger struct {
	service string
	l       *logrus.Logger
}

func New(service string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	if os.Getenv("LOG_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{service: service, l: l}
}

func (l *Logger) entry(action string, fields map[string]any) *logrus.Entry {
	e := l.l.WithFields(logrus.Fields{"service": l.service, "action": action})
	if fields != nil {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

func (l *Logger) Info(action string, fields map[string]any)  { l.entry(action, fields).Info(action) }
func (l *Logger) Debug(action string, fields map[string]any) { l.entry(action, fields).Debug(action) }

func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.entry(action, fields).WithError(err).Error(action)
}
