package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
)

// TimestampFormat is the layout of Entry.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Entry represents a single activity log entry. Entries never carry
// plaintext content or key material, only names the user already sees.
type Entry struct {
	Timestamp string `json:"ts"`
	User      string `json:"user"`
	Operation string `json:"op"`

	Files       []string `json:"files,omitempty"`    // Local paths for upload/download.
	FileIDs     []string `json:"file_ids,omitempty"` // Remote ids.
	FolderID    string   `json:"folder_id,omitempty"`
	Recipients  []string `json:"recipients,omitempty"` // For share.
	AccessLevel string   `json:"access_level,omitempty"`
	Bytes       int64    `json:"bytes,omitempty"`
	FilesCount  int      `json:"files_count,omitempty"`
	FailedCount int      `json:"failed_count,omitempty"`
	OutputPath  string   `json:"output_path,omitempty"`
}

// Log appends an entry to the activity log. Failures are ignored:
// operations never fail because the log could not be written.
func Log(entry Entry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}

	logPath := LogPath()
	if logPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = f.Write(append(data, '\n'))
}

// LogWithUser returns an entry for op with the account email filled in.
func LogWithUser(op string) Entry {
	entry := Entry{Operation: op}

	account, err := configs.LoadAccount()
	if err != nil {
		return entry
	}
	entry.User = account.User.Email
	return entry
}

// LogPath returns the path to the activity log file.
func LogPath() string {
	if configs.UserCryptdriveSettings == nil || configs.UserCryptdriveSettings.DataDir == "" {
		return ""
	}
	return configs.UserCryptdriveSettings.ActivityLogPath()
}

// ReadEntries reads all entries from the activity log. A missing log yields
// no entries and no error.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data. Malformed lines, such as a torn
// final write, are skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
