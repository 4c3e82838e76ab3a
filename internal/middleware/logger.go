package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per request through logrus.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return chimw.RequestLogger(&structuredLogger{logger: logger})
}

type structuredLogger struct {
	logger *logrus.Logger
}

func (l *structuredLogger) NewLogEntry(r *http.Request) chimw.LogEntry {
	fields := logrus.Fields{
		"component":   "http",
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		fields["request_id"] = reqID
	}
	return &structuredLogEntry{entry: l.logger.WithFields(fields)}
}

type structuredLogEntry struct {
	entry *logrus.Entry
}

func (e *structuredLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := e.entry.WithFields(logrus.Fields{
		"status":     status,
		"bytes":      bytes,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
	})
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request completed")
	case status >= http.StatusBadRequest:
		entry.Warn("request completed")
	default:
		entry.Info("request completed")
	}
}

func (e *structuredLogEntry) Panic(v interface{}, stack []byte) {
	e.entry.WithFields(logrus.Fields{
		"panic": v,
		"stack": string(stack),
	}).Error("request panicked")
}
