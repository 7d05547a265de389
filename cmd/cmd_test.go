package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
)

func TestKeysInitStatusLock(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("NO_COLOR", "1")

	output, err := runCLI(t, "keys", "init", "--email", "alice@example.com")
	if err != nil {
		t.Fatalf("keys init failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Save your recovery key now") {
		t.Errorf("expected the recovery key to be shown, got: %s", output)
	}
	if !strings.Contains(output, "Keys created for 'alice@example.com'") {
		t.Errorf("expected success message, got: %s", output)
	}

	output, err = runCLI(t, "keys", "init", "--email", "alice@example.com")
	if err != nil {
		t.Fatalf("second keys init should not error: %v", err)
	}
	if !strings.Contains(output, "already exists") {
		t.Errorf("expected account exists message, got: %s", output)
	}

	output, err = runCLI(t, "keys", "status", "--json")
	if err != nil {
		t.Fatalf("keys status failed: %v", err)
	}
	var status keysStatusJSON
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("invalid JSON %q: %v", output, err)
	}
	if !status.Account || status.Keys != "ready" || status.Email != "alice@example.com" {
		t.Errorf("unexpected status: %+v", status)
	}

	if output, err := runCLI(t, "keys", "lock"); err != nil {
		t.Fatalf("keys lock failed: %v\nOutput: %s", err, output)
	}
	output, err = runCLI(t, "keys", "status")
	if err != nil {
		t.Fatalf("keys status failed: %v", err)
	}
	if !strings.Contains(output, "locked") {
		t.Errorf("expected locked keys, got: %s", output)
	}

	t.Setenv(configs.EnvPassword, "wrong")
	output, err = runCLI(t, "keys", "unlock")
	if err != nil {
		t.Fatalf("unlock with a wrong password should only print: %v", err)
	}
	if !strings.Contains(output, "Wrong password") {
		t.Errorf("expected wrong password message, got: %s", output)
	}

	t.Setenv(configs.EnvPassword, "test password")
	output, err = runCLI(t, "keys", "unlock")
	if err != nil {
		t.Fatalf("keys unlock failed: %v", err)
	}
	if !strings.Contains(output, "Keys unlocked until") {
		t.Errorf("expected unlock message, got: %s", output)
	}
}

func TestDriveCommandsRequireServer(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("NO_COLOR", "1")

	if _, err := runCLI(t, "keys", "init", "--email", "alice@example.com"); err != nil {
		t.Fatalf("keys init failed: %v", err)
	}

	tests := [][]string{
		{"upload", "file.txt"},
		{"download", "some-id"},
		{"download-folder", "some-id"},
		{"mkdir", "Photos"},
		{"share", "folder", "some-id", "--to", "bob@example.com"},
	}
	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			output, err := runCLI(t, args...)
			if err != nil {
				t.Fatalf("expected a message, not an error: %v", err)
			}
			if !strings.Contains(output, "No server configured") {
				t.Errorf("expected not configured message, got: %s", output)
			}
		})
	}
}

func TestLogCommand(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("NO_COLOR", "1")

	output, err := runCLI(t, "log")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(output, "No activity yet") {
		t.Errorf("expected empty log message, got: %s", output)
	}

	if _, err := runCLI(t, "keys", "init", "--email", "alice@example.com"); err != nil {
		t.Fatalf("keys init failed: %v", err)
	}
	output, err = runCLI(t, "log", "--operation", "keys_init")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(output, "alice@example.com") || !strings.Contains(output, "keys_init") {
		t.Errorf("expected keys_init entry, got: %s", output)
	}

	output, err = runCLI(t, "log", "--since", "yesterday")
	if err != nil {
		t.Fatalf("invalid date should only print: %v", err)
	}
	if !strings.Contains(output, "YYYY-MM-DD") {
		t.Errorf("expected date format hint, got: %s", output)
	}
}

func TestFormatError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		err        error
		want       string
		unexpected bool
	}{
		{kerrors.ErrKeyExpired, "keys unlock", false},
		{kerrors.ErrPassphraseRequired, configs.EnvVaultPassphrase, false},
		{fmt.Errorf("%w: out.txt", kerrors.ErrFileExists), "--force", false},
		{kerrors.ErrCancelled, "Cancelled", true},
		{&sharing.RecipientErrors{Failures: []sharing.RecipientError{{Recipient: "bob@example.com", Err: errors.New("user not found")}}}, "bob@example.com", true},
		{errors.New("boom"), "boom", true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := formatError(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("formatError() = %q, want it to contain %q", got, tt.want)
			}
			if got := isUnexpectedError(tt.err); got != tt.unexpected {
				t.Errorf("isUnexpectedError() = %t, want %t", got, tt.unexpected)
			}
		})
	}
}

func TestRenderProgress(t *testing.T) {
	statuses := map[string]transfer.Status{
		"a": {ID: "a", State: transfer.StateUploading, Size: 2048, Done: 1024, BytesPerSecond: 1024, ETA: time.Second},
		"b": {ID: "b", State: transfer.StateCompleted, Size: 2048, Done: 2048},
	}

	got := renderProgress(statuses)
	for _, want := range []string{"3.0 KiB / 4.0 KiB (75%)", "1.0 KiB/s", "1s left"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderProgress() = %q, want it to contain %q", got, want)
		}
	}
}
