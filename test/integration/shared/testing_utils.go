// Package shared contains testing utilities shared between integration tests.
// This file provides common functions for setting up test environments,
// running the CLI against an in-memory backend and capturing output.
package shared

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PolarWolf314/cryptdrive/cmd"
	"github.com/PolarWolf314/cryptdrive/internal/api/apitest"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/99designs/keyring"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// TestPassword is supplied to every command that asks for the account password.
const TestPassword = "integration password"

// SetupTestEnvironment points the user settings at a temporary directory,
// writes a config with small RSA keys and installs an in-memory key vault.
// It returns the temporary directory.
func SetupTestEnvironment(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	old := *configs.UserCryptdriveSettings
	oldNoColor := color.NoColor
	color.NoColor = true
	configs.UserCryptdriveSettings.ConfigDir = filepath.Join(tempDir, "config")
	configs.UserCryptdriveSettings.DataDir = filepath.Join(tempDir, "data")
	configs.UserCryptdriveSettings.Username = "testuser"
	t.Cleanup(func() {
		*configs.UserCryptdriveSettings = old
		color.NoColor = oldNoColor
		cmd.ResetGlobalState()
	})

	t.Setenv(configs.EnvServerURL, "")
	t.Setenv(configs.EnvToken, "")
	t.Setenv(configs.EnvVaultPassphrase, "")
	t.Setenv(configs.EnvPassword, TestPassword)

	config := configs.DefaultConfig()
	config.Keys.Bits = secrets.MinKeyBits
	if err := configs.SaveConfig(config); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	cmd.ResetGlobalState()
	cmd.SetVaultOptions(workflows.VaultOptions{
		Passphrase: []byte("vault passphrase"),
		Ring:       keyring.NewArrayKeyring(nil),
		KDF:        secrets.KDFParams{Algorithm: secrets.KDFPBKDF2, Iterations: 1000},
	})
	return tempDir
}

// SetupBackend starts an in-memory drive server, registers the local
// account's public key with it and points the CLI at it through the
// environment. keys init must have run first.
func SetupBackend(t *testing.T) (*apitest.Backend, *apitest.User) {
	t.Helper()

	account, err := configs.LoadAccount()
	if err != nil {
		t.Fatalf("Failed to load account: %v", err)
	}

	backend := apitest.NewBackend()
	srv := apitest.NewServer(t, backend)
	user := backend.AddUser(account.User.Email, account.User.Username, account.PublicKey)

	t.Setenv(configs.EnvServerURL, srv.URL)
	t.Setenv(configs.EnvToken, user.Token)
	return backend, user
}

// CaptureOutput captures both stdout and stderr during function execution.
func CaptureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	outputChan := make(chan string, 2)
	for _, r := range []io.Reader{stdoutReader, stderrReader} {
		go func() {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, r); err != nil {
				log.Fatalf("Failed to run copy command: %s", err)
			}
			outputChan <- buf.String()
		}()
	}

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-outputChan + <-outputChan, err
}

// WithStdin runs fn with os.Stdin replaced by a pipe holding input.
func WithStdin(t *testing.T, input string, fn func() error) error {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	if _, err := w.WriteString(input); err != nil {
		t.Fatalf("Failed to write stdin: %v", err)
	}
	w.Close()

	original := os.Stdin
	os.Stdin = r
	defer func() {
		os.Stdin = original
		r.Close()
	}()
	return fn()
}

// CreateTestCLI creates a complete CLI instance running args.
func CreateTestCLI(args ...string) *cobra.Command {
	cmd.SetLogger(logger.Logger{})

	rootCmd := &cobra.Command{
		Use:           "cryptdrive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Register(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd
}

// RunCLI executes args and returns the combined output.
func RunCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return CaptureOutput(func() error {
		return CreateTestCLI(args...).Execute()
	})
}

// InitAccount runs keys init and returns the recovery key it printed.
func InitAccount(t *testing.T, email string) string {
	t.Helper()
	output, err := RunCLI(t, "keys", "init", "--email", email)
	if err != nil {
		t.Fatalf("keys init failed: %v\nOutput: %s", err, output)
	}

	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if strings.Contains(line, "will not be shown again") {
			for _, next := range lines[i+1:] {
				if key := strings.TrimSpace(next); key != "" {
					return key
				}
			}
		}
	}
	t.Fatalf("recovery key not found in output: %s", output)
	return ""
}
