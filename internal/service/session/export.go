package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/apt-chat/backend/internal/model/chat"
)

// ExportRow is one entry tagged with its session and area.
type ExportRow struct {
	SessionID string
	Status    chat.Status
	chat.Entry
}

// Collect reads every session CSV in both areas and returns all rows sorted
// by timestamp. The sort is stable, so rows with equal timestamps keep their
// per-session order.
func (s *Store) Collect(ctx context.Context) ([]ExportRow, error) {
	listing, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	var rows []ExportRow
	areas := []struct {
		name   string
		status chat.Status
		ids    []string
	}{
		{activeDir, chat.StatusActive, listing.Active},
		{completedDir, chat.StatusCompleted, listing.Completed},
	}
	for _, area := range areas {
		for _, id := range area.ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entries, err := readEntries(s.csvPath(id, area.name))
			if err != nil {
				if os.IsNotExist(err) {
					// Ended between listing and reading; picked up from the other area next time.
					continue
				}
				return nil, err
			}
			for _, e := range entries {
				rows = append(rows, ExportRow{SessionID: id, Status: area.status, Entry: e})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp < rows[j].Timestamp
	})
	return rows, nil
}

// ExportAll writes the consolidated CSV to outputPath and returns the number
// of rows. Nothing is written when there are no rows.
func (s *Store) ExportAll(ctx context.Context, outputPath string) (int, error) {
	rows, err := s.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("collect sessions: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, append([]string{r.SessionID, string(r.Status)}, entryRecord(r.Entry)...))
	}
	if err := writeCSV(outputPath, chat.ExportHeader, records); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(rows), nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id          TEXT NOT NULL,
	session_status      TEXT NOT NULL,
	timestamp           TEXT NOT NULL,
	conversation_number INTEGER NOT NULL,
	chatbot_type        TEXT NOT NULL,
	user_message        TEXT NOT NULL,
	bot_response        TEXT NOT NULL,
	user_ip             TEXT NOT NULL DEFAULT '',
	risk_score          TEXT NOT NULL DEFAULT '',
	scenario            TEXT NOT NULL DEFAULT '',
	context             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp);
`

// ExportSQLite writes the consolidated rows into a fresh SQLite database at
// dbPath, for analysis with SQL tooling. An existing file is replaced.
func (s *Store) ExportSQLite(ctx context.Context, dbPath string) (int, error) {
	rows, err := s.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("collect sessions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("replace export: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO conversations
		(session_id, session_status, timestamp, conversation_number, chatbot_type,
		 user_message, bot_response, user_ip, risk_score, scenario, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.SessionID, string(r.Status), r.Timestamp, r.ConversationNumber, r.ChatbotType,
			r.UserMessage, r.BotResponse, r.UserIP, r.RiskScore, r.Scenario, r.Context,
		); err != nil {
			return 0, fmt.Errorf("insert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}
