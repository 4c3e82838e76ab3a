package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/model/chat"
	"github.com/zhouzirui/apt-chat/backend/internal/validate"
)

var (
	// ErrInvalidSessionID rejects ids that are not UUIDs; it keeps caller
	// input from naming arbitrary paths.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionNotFound is returned when no active files exist for a session.
	ErrSessionNotFound = errors.New("session not found")
)

const (
	activeDir    = "active"
	completedDir = "completed"
	lockDir      = ".locks"
	csvExt       = ".csv"
	metadataExt  = "_metadata.json"
)

// LogInput is one exchange to append to a session.
type LogInput struct {
	SessionID   string
	Persona     string
	UserMessage string
	BotResponse string
	ClientAddr  string
	RiskScore   *int
	Context     map[string]any
}

// Store persists sessions as one CSV plus one metadata file each, under
// <dir>/active or <dir>/completed. The disk is the source of truth for
// entries; the resident set only records which sessions this process has
// created or logged to, since only those may be ended here.
type Store struct {
	dir    string
	locker Locker
	logger *logrus.Entry
	now    func() time.Time

	mu       sync.Mutex
	resident map[string]struct{}
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates the directory layout under dir. A nil locker falls back
// to a FileLocker inside dir.
func NewStore(dir string, locker Locker, logger *logrus.Entry, opts ...Option) (*Store, error) {
	for _, sub := range []string{activeDir, completedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}
	if locker == nil {
		locker = NewFileLocker(filepath.Join(dir, lockDir), 0)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		dir:      dir,
		locker:   locker,
		logger:   logger.WithField("component", "session"),
		now:      time.Now,
		resident: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidID reports whether id is a well-formed session identifier.
func ValidID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

func (s *Store) csvPath(id, area string) string {
	return filepath.Join(s.dir, area, id+csvExt)
}

func (s *Store) metadataPath(id, area string) string {
	return filepath.Join(s.dir, area, id+metadataExt)
}

// CreateSession registers a new active session for clientAddr.
func (s *Store) CreateSession(ctx context.Context, clientAddr string) (string, error) {
	id := uuid.NewString()
	meta := chat.Session{
		ID:        id,
		UserIP:    clientAddr,
		StartTime: s.now().Format(time.RFC3339),
		Status:    chat.StatusActive,
	}
	if err := writeMetadata(s.metadataPath(id, activeDir), meta); err != nil {
		return "", fmt.Errorf("write session metadata: %w", err)
	}

	s.setResident(id, true)

	s.logger.WithField("session_id", id).Info("session created")
	return id, nil
}

// LogConversation appends one entry to an active session. It returns false
// without error when the session is unknown or already completed, so the
// caller can decide to start a new one.
//
// The persisted rows are reloaded under the session lock before appending,
// which keeps sequence numbers dense and prevents lost updates when several
// workers serve the same session.
func (s *Store) LogConversation(ctx context.Context, in LogInput) (bool, error) {
	if !ValidID(in.SessionID) {
		return false, nil
	}

	unlock, err := s.locker.Lock(ctx, in.SessionID)
	if err != nil {
		return false, err
	}
	defer unlock()

	entries, ok, err := s.loadActive(in.SessionID)
	if err != nil || !ok {
		return false, err
	}

	entry := chat.Entry{
		Timestamp:          s.now().Format(chat.TimeLayout),
		ConversationNumber: len(entries) + 1,
		ChatbotType:        in.Persona,
		UserMessage:        in.UserMessage,
		BotResponse:        in.BotResponse,
		UserIP:             in.ClientAddr,
	}
	if in.RiskScore != nil {
		entry.RiskScore = strconv.Itoa(*in.RiskScore)
	}
	if n, ok := validate.Scenario(in.Context); ok {
		entry.Scenario = strconv.Itoa(n)
	}
	if len(in.Context) > 0 {
		raw, err := json.Marshal(in.Context)
		if err != nil {
			return false, fmt.Errorf("encode conversation context: %w", err)
		}
		entry.Context = string(raw)
	}

	entries = append(entries, entry)
	if err := writeEntries(s.csvPath(in.SessionID, activeDir), entries); err != nil {
		return false, fmt.Errorf("write session log: %w", err)
	}

	s.setResident(in.SessionID, true)
	return true, nil
}

// loadActive reads the active entries of id from disk. ok is false when the
// session has no active files, e.g. it was ended by another worker.
func (s *Store) loadActive(id string) ([]chat.Entry, bool, error) {
	csvPath := s.csvPath(id, activeDir)
	entries, err := readEntries(csvPath)
	if err == nil {
		return entries, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	// Created but nothing logged yet.
	if fileExists(s.metadataPath(id, activeDir)) {
		return []chat.Entry{}, true, nil
	}

	s.setResident(id, false)
	return nil, false, nil
}

// EndSession completes an active session: metadata is stamped and moved,
// the CSV is renamed into the completed area and the session is dropped
// from memory.
//
// Sessions this process never created or logged to are left alone and nil
// is returned, even when their files are still active on disk. Another
// worker (or a restarted process) cannot end them.
func (s *Store) EndSession(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidSessionID
	}
	if !s.isResident(id) {
		s.logger.WithField("session_id", id).Debug("end skipped, session not resident")
		return nil
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	entries, ok, err := s.loadActive(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	activeMeta := s.metadataPath(id, activeDir)
	meta, err := readMetadata(activeMeta)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Sessions whose metadata was lost still get a completed record.
		meta = chat.Session{ID: id}
	case err != nil:
		return err
	}

	total := len(entries)
	meta.Status = chat.StatusCompleted
	meta.EndTime = s.now().Format(time.RFC3339)
	meta.TotalConversations = &total

	if err := writeMetadata(s.metadataPath(id, completedDir), meta); err != nil {
		return fmt.Errorf("write completed metadata: %w", err)
	}
	if err := os.Remove(activeMeta); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove active metadata: %w", err)
	}

	activeCSV := s.csvPath(id, activeDir)
	if fileExists(activeCSV) {
		if err := os.Rename(activeCSV, s.csvPath(id, completedDir)); err != nil {
			return fmt.Errorf("move session log: %w", err)
		}
	}

	s.setResident(id, false)

	s.logger.WithFields(logrus.Fields{"session_id": id, "total": total}).Info("session completed")
	return nil
}

// SessionFilePath returns the session's CSV, looking in the active area
// first and then in the completed one.
func (s *Store) SessionFilePath(id string) (string, bool) {
	if !ValidID(id) {
		return "", false
	}
	for _, area := range []string{activeDir, completedDir} {
		p := s.csvPath(id, area)
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// ListSessions lists session ids by area, based on the CSV files present.
func (s *Store) ListSessions() (chat.Listing, error) {
	active, err := s.listArea(activeDir)
	if err != nil {
		return chat.Listing{}, err
	}
	completed, err := s.listArea(completedDir)
	if err != nil {
		return chat.Listing{}, err
	}
	return chat.Listing{Active: active, Completed: completed}, nil
}

func (s *Store) listArea(area string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, area))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s sessions: %w", area, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, csvExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, csvExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) isResident(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resident[id]
	return ok
}

func (s *Store) setResident(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.resident[id] = struct{}{}
	} else {
		delete(s.resident, id)
	}
}
