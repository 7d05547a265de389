package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
)

// useTempDataDir points the activity log at a temporary directory.
func useTempDataDir(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	original := *configs.UserCryptdriveSettings
	configs.UserCryptdriveSettings.DataDir = filepath.Join(tempDir, "data")
	configs.UserCryptdriveSettings.ConfigDir = filepath.Join(tempDir, "config")
	t.Cleanup(func() {
		*configs.UserCryptdriveSettings = original
	})
	return configs.UserCryptdriveSettings.ActivityLogPath()
}

func TestLog_CreatesFile(t *testing.T) {
	logPath := useTempDataDir(t)

	Log(Entry{
		User:      "test@example.com",
		Operation: "upload",
		Files:     []string{"report.pdf"},
	})

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("Activity log file was not created: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		t.Errorf("Activity log should be private, got %o", info.Mode().Perm())
	}
}

func TestLog_AppendsEntries(t *testing.T) {
	useTempDataDir(t)

	Log(Entry{User: "alice@example.com", Operation: "upload"})
	Log(Entry{User: "alice@example.com", Operation: "download"})
	Log(Entry{User: "alice@example.com", Operation: "share", Recipients: []string{"bob@example.com"}})

	entries, err := ReadEntries()
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	want := []string{"upload", "download", "share"}
	for i, op := range want {
		if entries[i].Operation != op {
			t.Errorf("Entry %d: expected operation %s, got %s", i, op, entries[i].Operation)
		}
	}
	if len(entries[2].Recipients) != 1 || entries[2].Recipients[0] != "bob@example.com" {
		t.Errorf("Expected share recipients to survive, got %v", entries[2].Recipients)
	}
}

func TestLog_TimestampFormat(t *testing.T) {
	logPath := useTempDataDir(t)

	Log(Entry{User: "test@example.com", Operation: "upload"})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read activity log: %v", err)
	}

	var parsed Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &parsed); err != nil {
		t.Fatalf("Entry is not valid JSON: %v", err)
	}

	if _, err := time.Parse(TimestampFormat, parsed.Timestamp); err != nil {
		t.Errorf("Timestamp %q does not match %s: %v", parsed.Timestamp, TimestampFormat, err)
	}
}

func TestLog_KeepsExplicitTimestamp(t *testing.T) {
	useTempDataDir(t)

	Log(Entry{Timestamp: "2024-01-15T10:30:00.123456Z", Operation: "mkdir"})

	entries, err := ReadEntries()
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Timestamp != "2024-01-15T10:30:00.123456Z" {
		t.Errorf("Expected explicit timestamp to be kept, got %+v", entries)
	}
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	logPath := useTempDataDir(t)

	Log(Entry{User: "test@example.com", Operation: "lock"})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read activity log: %v", err)
	}

	line := strings.TrimSpace(string(data))
	for _, field := range []string{`"files"`, `"file_ids"`, `"recipients"`, `"bytes"`, `"failed_count"`} {
		if strings.Contains(line, field) {
			t.Errorf("Empty %s field should be omitted: %s", field, line)
		}
	}
}

func TestLog_UnwritableDirectory(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	original := *configs.UserCryptdriveSettings
	configs.UserCryptdriveSettings.DataDir = filepath.Join(blocker, "data")
	defer func() {
		*configs.UserCryptdriveSettings = original
	}()

	// Must not panic even though the directory cannot be created.
	Log(Entry{Operation: "upload"})
}

func TestLogWithUser(t *testing.T) {
	useTempDataDir(t)

	entry := LogWithUser("upload")
	if entry.Operation != "upload" || entry.User != "" {
		t.Errorf("Expected anonymous upload entry without an account, got %+v", entry)
	}

	if err := configs.SaveAccount(&configs.Account{
		User: configs.AccountUser{Email: "alice@example.com", Username: "alice"},
	}); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}

	entry = LogWithUser("share")
	if entry.User != "alice@example.com" {
		t.Errorf("Expected account email, got %q", entry.User)
	}
}

func TestReadEntries_NoLog(t *testing.T) {
	useTempDataDir(t)

	entries, err := ReadEntries()
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if entries != nil {
		t.Errorf("Expected no entries, got %v", entries)
	}
}

func TestParseEntries_ValidData(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice@example.com","op":"upload"}
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob@example.com","op":"download","file_ids":["f1"]}
`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].User != "alice@example.com" {
		t.Errorf("Expected first user alice@example.com, got %s", entries[0].User)
	}
	if len(entries[1].FileIDs) != 1 || entries[1].FileIDs[0] != "f1" {
		t.Errorf("Expected file ids [f1], got %v", entries[1].FileIDs)
	}
}

func TestParseEntries_SkipsMalformedLines(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice@example.com","op":"upload"}
this is not valid json
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob@example.com","op":"download"}
{"ts":"2024-01-15T10:40:00.0`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("Expected 2 valid entries (malformed should be skipped), got %d", len(entries))
	}
}

func TestParseEntries_EmptyData(t *testing.T) {
	entries, err := ParseEntries([]byte{})
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if entries != nil {
		t.Errorf("Expected nil entries for empty data, got %v", entries)
	}
}
