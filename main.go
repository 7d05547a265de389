package main

import (
	"fmt"
	"os"

	"github.com/PolarWolf314/cryptdrive/cmd"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryptdrive",
	Short: "cryptdrive - end-to-end encrypted cloud drive client.",
	Long: `cryptdrive encrypts files on your machine before they are uploaded, so the
server only ever stores ciphertext.

Features:
  - Chunked, resumable uploads and downloads with automatic retry
  - Sharing by re-wrapping keys for other users, never re-encrypting content
  - Password protected keys with a one-time recovery key

Usage:
  cryptdrive <command> [flags]

Available Commands:
  keys             Create, unlock and recover your keys
  upload           Encrypt and upload files
  download         Download and decrypt a file
  download-folder  Download a folder as a zip archive
  share            Share folders and files
  mkdir            Create an encrypted folder
  log              View your local activity log

Run 'cryptdrive help <command>' for more details on a specific command.
`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to cryptdrive! Run 'cryptdrive --help' to see available commands.")
	},
}

func init() {
	cmd.Register(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
