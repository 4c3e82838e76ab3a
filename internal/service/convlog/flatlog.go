// Package convlog keeps the session-agnostic audit trail of every exchange.
package convlog

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const unknownAddr = "Unknown"

// FlatLog appends one JSON line per exchange to a single file. Write errors
// are reported to the process logger and otherwise ignored.
type FlatLog struct {
	path      string
	formatter logrus.Formatter
	fallback  *logrus.Entry
	now       func() time.Time

	mu sync.Mutex
}

// New creates a flat log at path. Parent directories are created lazily.
func New(path string, fallback *logrus.Entry) *FlatLog {
	if fallback == nil {
		fallback = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FlatLog{
		path: path,
		formatter: &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
			},
		},
		fallback: fallback.WithField("component", "convlog"),
		now:      time.Now,
	}
}

// Path returns the log file location.
func (l *FlatLog) Path() string {
	return l.path
}

// LogConversation records one exchange with a masked client address.
func (l *FlatLog) LogConversation(persona, userMessage, botResponse, clientAddr string) {
	entry := &logrus.Entry{
		Logger: logrus.StandardLogger(),
		Data: logrus.Fields{
			"ip":           MaskIP(clientAddr),
			"chatbot_type": persona,
			"user_message": userMessage,
			"bot_response": botResponse,
		},
		Time:    l.now(),
		Level:   logrus.InfoLevel,
		Message: "conversation",
	}

	line, err := l.formatter.Format(entry)
	if err != nil {
		l.fallback.WithError(err).Warn("failed to encode conversation line")
		return
	}

	if err := l.append(line); err != nil {
		l.fallback.WithError(err).Warn("failed to write conversation log")
	}
}

func (l *FlatLog) append(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// MaskIP hides the host part of private IPv4 addresses (10/8, 172.16/12,
// 192.168/16). Public addresses are returned unchanged; anything that is
// not a dotted quad becomes "Unknown".
func MaskIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return unknownAddr
	}
	octets := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strings.HasPrefix(p, "+") {
			return unknownAddr
		}
		octets[i] = n
	}

	if isPrivate(octets[0], octets[1]) {
		return parts[0] + "." + parts[1] + ".xxx.xxx"
	}
	return addr
}

func isPrivate(first, second int) bool {
	switch {
	case first == 10:
		return true
	case first == 172 && second >= 16 && second <= 31:
		return true
	case first == 192 && second == 168:
		return true
	default:
		return false
	}
}
