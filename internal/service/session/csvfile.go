package session

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zhouzirui/apt-chat/backend/internal/model/chat"
)

// utf8BOM keeps spreadsheet tools from guessing the wrong encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readRows returns the header-keyed rows of a BOM-prefixed CSV file.
// Columns missing from older files read as "".
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
}

func readEntries(path string) ([]chat.Entry, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	entries := make([]chat.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromRow(row))
	}
	return entries, nil
}

func entryFromRow(row map[string]string) chat.Entry {
	n, _ := strconv.Atoi(row["conversation_number"])
	return chat.Entry{
		Timestamp:          row["timestamp"],
		ConversationNumber: n,
		ChatbotType:        row["chatbot_type"],
		UserMessage:        row["user_message"],
		BotResponse:        row["bot_response"],
		UserIP:             row["user_ip"],
		RiskScore:          row["risk_score"],
		Scenario:           row["scenario"],
		Context:            row["context"],
	}
}

func entryRecord(e chat.Entry) []string {
	return []string{
		e.Timestamp,
		strconv.Itoa(e.ConversationNumber),
		e.ChatbotType,
		e.UserMessage,
		e.BotResponse,
		e.UserIP,
		e.RiskScore,
		e.Scenario,
		e.Context,
	}
}

// writeCSV writes header and records to path through a temp file + rename,
// so a concurrent reader sees either the old or the new file, never a torn one.
func writeCSV(path string, header []string, records [][]string) error {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

func writeEntries(path string, entries []chat.Entry) error {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, entryRecord(e))
	}
	return writeCSV(path, chat.EntryHeader, records)
}

func readMetadata(path string) (chat.Session, error) {
	var meta chat.Session
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

func writeMetadata(path string, meta chat.Session) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
