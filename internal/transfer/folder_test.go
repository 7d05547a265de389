package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/api/apitest"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"github.com/klauspost/compress/zip"
)

// addFolder creates a named folder owned by the env owner.
func (e *env) addFolder(t *testing.T, parentID, name string) string {
	t.Helper()
	key, err := secrets.GenerateDataKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	defer key.Zero()

	sealed, err := secrets.EncryptJSON(secrets.FolderMetadata{FolderName: name}, key)
	if err != nil {
		t.Fatalf("failed to seal folder name: %v", err)
	}
	wrapped, err := e.keys.WrapForSelf(key)
	if err != nil {
		t.Fatalf("failed to wrap folder key: %v", err)
	}
	return e.backend.AddFolder(e.owner, parentID, codec.EncodeBase64(sealed), codec.EncodeBase64(wrapped))
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read %s: %v", f.Name, err)
		}
		files[f.Name] = string(content)
	}
	return files
}

func TestDownloadFolder(t *testing.T) {
	e := newEnv(t, smallConfig(), apitest.Hooks{})

	rootID := e.addFolder(t, api.RootFolderID, "project")
	docsID := e.addFolder(t, rootID, "docs")
	nestedID := e.addFolder(t, docsID, "../escape")

	big := randomData(t, 3000)
	e.upload(t, "readme.md", []byte("# project"), rootID)
	e.upload(t, "notes.txt", []byte("same"), docsID)
	e.upload(t, "notes.txt", []byte("same"), docsID)
	e.upload(t, "blob.bin", big, nestedID)
	broken := e.upload(t, "broken.bin", randomData(t, 2048), docsID)
	e.backend.TamperChunk(broken, 0, codec.EncodeBase64(randomData(t, 1024+secrets.TagSize)))

	var out bytes.Buffer
	result, err := e.mgr.DownloadFolder(context.Background(), rootID, &out)
	if !errors.Is(err, kerrors.ErrCorruptedChunk) {
		t.Fatalf("expected ErrCorruptedChunk for the broken file, got %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].FileID != broken {
		t.Errorf("expected one failure for %s, got %+v", broken, result.Failures)
	}

	files := readArchive(t, out.Bytes())
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	want := []string{"docs/.._escape/blob.bin", "docs/notes (1).txt", "docs/notes.txt", "readme.md"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	if files["readme.md"] != "# project" {
		t.Errorf("unexpected readme content %q", files["readme.md"])
	}
	if files["docs/.._escape/blob.bin"] != string(big) {
		t.Error("nested file content differs")
	}
}

func TestDownloadFolder_Empty(t *testing.T) {
	e := newEnv(t, smallConfig(), apitest.Hooks{})
	rootID := e.addFolder(t, api.RootFolderID, "empty")

	var out bytes.Buffer
	result, err := e.mgr.DownloadFolder(context.Background(), rootID, &out)
	if err != nil {
		t.Fatalf("DownloadFolder failed: %v", err)
	}
	if len(result.Files) != 0 {
		t.Errorf("expected no files, got %v", result.Files)
	}
	if files := readArchive(t, out.Bytes()); len(files) != 0 {
		t.Errorf("expected empty archive, got %d entries", len(files))
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"a/b", "a_b"},
		{`a\b`, "a_b"},
		{"..", "fallback"},
		{".", "fallback"},
		{"   ", "fallback"},
		{"tab\there", "tab_here"},
		{"cafe\u0301.txt", "caf\u00e9.txt"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in, "fallback"); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueName(t *testing.T) {
	used := make(map[string]int)
	got := []string{
		uniqueName(used, "a.txt"),
		uniqueName(used, "a.txt"),
		uniqueName(used, "a.txt"),
		uniqueName(used, "a (1).txt"),
		uniqueName(used, "noext"),
		uniqueName(used, "noext"),
	}
	want := []string{"a.txt", "a (1).txt", "a (2).txt", "a (1) (1).txt", "noext", "noext (1)"}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
