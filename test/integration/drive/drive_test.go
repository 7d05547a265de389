package drive

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/PolarWolf314/cryptdrive/internal/api/apitest"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
	"github.com/PolarWolf314/cryptdrive/test/integration/shared"

	"github.com/klauspost/compress/zip"
)

// TestUploadDownloadRoundTrip uploads a 3 MiB file through the CLI and
// downloads it again.
func TestUploadDownloadRoundTrip(t *testing.T) {
	tempDir := shared.SetupTestEnvironment(t)
	shared.InitAccount(t, "owner@example.com")
	backend, _ := shared.SetupBackend(t)

	data := make([]byte, 3*transfer.DefaultChunkSize)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("Failed to generate data: %v", err)
	}
	src := filepath.Join(tempDir, "holiday.mov")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}

	output, err := shared.RunCLI(t, "upload", src)
	if err != nil {
		t.Fatalf("upload failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Uploaded 1 file(s)") {
		t.Errorf("Expected upload summary, got: %s", output)
	}

	if got := backend.Calls("upload_chunk"); got != 3 {
		t.Errorf("Expected 3 upload_chunk calls, got %d", got)
	}
	ids := backend.FileIDs()
	if len(ids) != 1 {
		t.Fatalf("Expected 1 file on the backend, got %d", len(ids))
	}
	if got := backend.UploadedIndices(ids[0]); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("Expected chunk indices [0 1 2], got %v", got)
	}
	if state := backend.FileState(ids[0]); state != apitest.StateCompleted {
		t.Errorf("Expected file state %q, got %q", apitest.StateCompleted, state)
	}

	outDir := filepath.Join(tempDir, "restored")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatalf("Failed to create output dir: %v", err)
	}
	output, err = shared.RunCLI(t, "download", ids[0], "-o", outDir)
	if err != nil {
		t.Fatalf("download failed: %v\nOutput: %s", err, output)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "holiday.mov"))
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Downloaded file differs from the original")
	}

	output, err = shared.RunCLI(t, "download", ids[0], "-o", outDir)
	if err == nil {
		t.Fatalf("Expected second download without --force to fail, output: %s", output)
	}
	if _, err := shared.RunCLI(t, "download", ids[0], "-o", outDir, "--force"); err != nil {
		t.Errorf("download --force failed: %v", err)
	}
}

func TestUploadWithoutServer(t *testing.T) {
	tempDir := shared.SetupTestEnvironment(t)
	shared.InitAccount(t, "owner@example.com")

	src := filepath.Join(tempDir, "notes.txt")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	output, err := shared.RunCLI(t, "upload", src)
	if err == nil {
		t.Fatalf("Expected upload without a server to fail, output: %s", output)
	}
	if !strings.Contains(output, "server") {
		t.Errorf("Expected a hint about the server, got: %s", output)
	}
}

func TestMkdirUploadDownloadFolder(t *testing.T) {
	tempDir := shared.SetupTestEnvironment(t)
	shared.InitAccount(t, "owner@example.com")
	shared.SetupBackend(t)

	output, err := shared.RunCLI(t, "mkdir", "Reports")
	if err != nil {
		t.Fatalf("mkdir failed: %v\nOutput: %s", err, output)
	}
	folderID := lastField(output, "Created folder")
	if folderID == "" {
		t.Fatalf("Folder id not found in output: %s", output)
	}

	src := filepath.Join(tempDir, "q1.csv")
	if err := os.WriteFile(src, []byte("month,total\njan,10\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if output, err := shared.RunCLI(t, "upload", src, "--folder", folderID); err != nil {
		t.Fatalf("upload failed: %v\nOutput: %s", err, output)
	}

	if output, err := shared.RunCLI(t, "download-folder", folderID, "-o", tempDir); err != nil {
		t.Fatalf("download-folder failed: %v\nOutput: %s", err, output)
	}

	archive := filepath.Join(tempDir, "Reports.zip")
	r, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer r.Close()

	if len(r.File) != 1 || r.File[0].Name != "q1.csv" {
		names := make([]string, 0, len(r.File))
		for _, f := range r.File {
			names = append(names, f.Name)
		}
		t.Errorf("Expected archive to hold q1.csv, got %v", names)
	}
}

// lastField returns the last whitespace-separated field of the first line
// containing marker, without the parentheses plain output puts around ids.
func lastField(output, marker string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, marker) {
			fields := strings.Fields(line)
			return strings.Trim(fields[len(fields)-1], "()")
		}
	}
	return ""
}
