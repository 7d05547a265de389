// Package cmd contains testing utilities shared between command tests.
// This file provides common functions for setting up test environments
// and capturing output.
package cmd

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"
)

// setupTestEnvironment points the user settings at a temporary directory,
// clears the environment overrides and uses an in-memory key vault.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	old := *configs.UserCryptdriveSettings
	configs.UserCryptdriveSettings.ConfigDir = filepath.Join(tempDir, "config")
	configs.UserCryptdriveSettings.DataDir = filepath.Join(tempDir, "data")
	configs.UserCryptdriveSettings.Username = "testuser"
	t.Cleanup(func() {
		*configs.UserCryptdriveSettings = old
		ResetGlobalState()
	})

	t.Setenv(configs.EnvServerURL, "")
	t.Setenv(configs.EnvToken, "")
	t.Setenv(configs.EnvVaultPassphrase, "")
	t.Setenv(configs.EnvPassword, "test password")

	config := configs.DefaultConfig()
	config.Keys.Bits = secrets.MinKeyBits
	if err := configs.SaveConfig(config); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	ResetGlobalState()
	SetVaultOptions(workflows.VaultOptions{
		Passphrase: []byte("vault passphrase"),
		Ring:       keyring.NewArrayKeyring(nil),
		KDF:        secrets.KDFParams{Algorithm: secrets.KDFPBKDF2, Iterations: 1000},
	})
	return tempDir
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
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

// createTestCLI creates a complete CLI instance running args.
func createTestCLI(args ...string) *cobra.Command {
	Logger = logger.Logger{}

	rootCmd := &cobra.Command{
		Use:           "cryptdrive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	Register(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd
}

// runCLI executes args and returns the combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return captureOutput(func() error {
		return createTestCLI(args...).Execute()
	})
}
