package cmd

import (
	"github.com/spf13/cobra"
)

var KeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage your encryption keys",
	Long: `Creates, unlocks and recovers the key pair that protects your drive.

Your private key never leaves this machine unencrypted. It is stored in
account.toml wrapped under your password, and kept unlocked in the local
key vault for a limited time.`,
}

func init() {
	KeysCmd.AddCommand(keysInitCmd)
	KeysCmd.AddCommand(keysUnlockCmd)
	KeysCmd.AddCommand(keysRecoverCmd)
	KeysCmd.AddCommand(keysStatusCmd)
	KeysCmd.AddCommand(keysLockCmd)
}

func resetKeysCommandState() {
	initEmail = ""
	initUsername = ""
	initForce = false
	statusJSONOutput = false
}
