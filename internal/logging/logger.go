package logging

import (
	"context"
	"io"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

var std = logrus.New()

// Init configures the process logger. Unknown levels fall back to info.
func Init(level string, json bool) *logrus.Logger {
	return configure(std, os.Stdout, level, json)
}

// New returns a standalone logger, mostly useful in tests.
func New(out io.Writer, level string, json bool) *logrus.Logger {
	return configure(logrus.New(), out, level, json)
}

func configure(l *logrus.Logger, out io.Writer, level string, json bool) *logrus.Logger {
	l.SetOutput(out)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// L returns the process logger.
func L() *logrus.Logger {
	return std
}

// Component tags log lines with the subsystem that produced them.
func Component(name string) *logrus.Entry {
	return std.WithField("component", name)
}

// FromContext returns an entry carrying the chi request id when present.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(std)
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		entry = entry.WithField("request_id", reqID)
	}
	return entry
}
