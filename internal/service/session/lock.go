package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
)

// ErrLockTimeout is returned when a session lock could not be acquired in time.
var ErrLockTimeout = errors.New("session lock timeout")

const (
	defaultLockTimeout = 2 * time.Second
	lockRetry          = 20 * time.Millisecond
	lockStaleAfter     = 30 * time.Second
	redisLockPrefix    = "apt:session-lock:"
)

// Locker serialises the read-modify-write cycle of one session across
// goroutines and, depending on the implementation, across worker processes.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// OpenLocker builds the locker every tool touching cfg.SessionDir must share:
// Redis when RedisURL is set (checked with a ping), otherwise lock files in
// SessionDir/.locks. The returned close func is never nil.
func OpenLocker(ctx context.Context, cfg config.StorageConfig) (Locker, func(), error) {
	if cfg.RedisURL == "" {
		return NewFileLocker(filepath.Join(cfg.SessionDir, lockDir), cfg.LockTimeout), func() {}, nil
	}

	locker, err := NewRedisLocker(cfg.RedisURL, cfg.LockTimeout)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := locker.Ping(pingCtx); err != nil {
		_ = locker.Close()
		return nil, nil, fmt.Errorf("redis is unreachable: %w", err)
	}
	return locker, func() { _ = locker.Close() }, nil
}

// FileLocker uses an O_EXCL lock file per session next to the session files.
// A process-local mutex is taken first so goroutines do not spin on the file.
type FileLocker struct {
	dir        string
	timeout    time.Duration
	staleAfter time.Duration
	local      sync.Map
}

// NewFileLocker creates lock files under dir.
func NewFileLocker(dir string, timeout time.Duration) *FileLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &FileLocker{dir: dir, timeout: timeout, staleAfter: lockStaleAfter}
}

func (l *FileLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock directory: %w", err)
	}
	lockPath := filepath.Join(l.dir, sessionID+".lock")

	mu := l.processLock(lockPath)
	mu.Lock()

	deadline := time.Now().Add(l.timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			stamp, _ := json.Marshal(map[string]any{
				"pid":        os.Getpid(),
				"created_at": time.Now().UTC().Format(time.RFC3339Nano),
			})
			_, _ = f.Write(stamp)
			_ = f.Close()
			return func() {
				_ = os.Remove(lockPath)
				mu.Unlock()
			}, nil
		}
		if !os.IsExist(err) {
			mu.Unlock()
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if l.stale(lockPath) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, sessionID)
		}

		select {
		case <-ctx.Done():
			mu.Unlock()
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

func (l *FileLocker) processLock(path string) *sync.Mutex {
	actual, _ := l.local.LoadOrStore(path, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// stale reports whether a lock file outlived staleAfter, i.e. its holder died.
func (l *FileLocker) stale(lockPath string) bool {
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	var stamp struct {
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(content, &stamp); err != nil {
		return false
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stamp.CreatedAt)
	if err != nil {
		return false
	}
	return time.Since(createdAt) > l.staleAfter
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares session locks between workers on different hosts.
type RedisLocker struct {
	client  *redis.Client
	timeout time.Duration
	ttl     time.Duration
}

// NewRedisLocker parses a redis:// URL and returns a locker on it.
func NewRedisLocker(redisURL string, timeout time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLockerWithClient(redis.NewClient(opts), timeout), nil
}

// NewRedisLockerWithClient wraps an existing client.
func NewRedisLockerWithClient(client *redis.Client, timeout time.Duration) *RedisLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &RedisLocker{client: client, timeout: timeout, ttl: lockStaleAfter}
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := redisLockPrefix + sessionID
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			return func() {
				// Release with a fresh context so a cancelled request still unlocks.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, sessionID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}
