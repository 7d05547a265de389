package cmd

import (
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	// vaultDefaults is used by every command that opens the key vault.
	vaultDefaults workflows.VaultOptions
)

// Register adds the global flags and every cryptdrive command to root.
func Register(root *cobra.Command) {
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Logger = logger.Logger{
			Verbose: verbose,
			Debug:   debug,
		}
		Logger.Debugf("Running %s with verbose=%t, debug=%t", cmd.CommandPath(), verbose, debug)
	}

	root.AddCommand(KeysCmd)
	root.AddCommand(uploadCmd)
	root.AddCommand(downloadCmd)
	root.AddCommand(downloadFolderCmd)
	root.AddCommand(ShareCmd)
	root.AddCommand(mkdirCmd)
	root.AddCommand(logCmd)
}

// Helper functions for testing

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	vaultDefaults = workflows.VaultOptions{}
	resetKeysCommandState()
	resetDriveCommandState()
	resetShareCommandState()
	resetLogCommandState()
}

// SetVerbose sets the verbose flag for testing.
func SetVerbose(v bool) {
	verbose = v
}

// SetDebug sets the debug flag for testing.
func SetDebug(d bool) {
	debug = d
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}

// SetVaultOptions replaces the vault settings used by commands, for example
// with an in-memory keyring.
func SetVaultOptions(opts workflows.VaultOptions) {
	vaultDefaults = opts
}
