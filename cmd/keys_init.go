package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	initEmail    string
	initUsername string
	initForce    bool
)

func init() {
	keysInitCmd.Flags().StringVarP(&initEmail, "email", "e", "", "email address of your drive account")
	keysInitCmd.Flags().StringVarP(&initUsername, "username", "u", "", "display name (defaults to the system user)")
	keysInitCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing account")
	_ = keysInitCmd.MarkFlagRequired("email")
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate your key pair and recovery key",
	Long: `Generates an RSA key pair, wraps the private key under your password and
creates a recovery key. The recovery key is shown exactly once.

The public key in account.toml is what you register with the drive server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys init command")
		spinner, cleanup := startSpinner("Generating keys...")
		defer cleanup()

		password, err := readPassword(spinner, "New password: ", true)
		if err != nil {
			return fail(spinner, err)
		}
		defer clear(password)

		vault, err := vaultOptions(spinner)
		if err != nil {
			return fail(spinner, err)
		}

		result, err := workflows.Init(context.Background(), workflows.InitOptions{
			Email:    initEmail,
			Username: initUsername,
			Password: password,
			Vault:    vault,
			Force:    initForce,
		})
		if err != nil {
			return fail(spinner, err)
		}
		Logger.Infof("Created account for %s", result.Account.User.Email)

		if err := showRecoveryKey(spinner, result.RecoveryKey); err != nil {
			return err
		}

		spinner.FinalMSG = ui.Tick() + " Keys created for " + ui.Highlight.Sprint(result.Account.User.Email) + "\n" +
			"    Fingerprint: " + ui.Muted.Sprint(result.Fingerprint) + "\n" +
			ui.Arrow() + " Register the public key in " + ui.Path.Sprint(accountPath()) + " with your drive server"
		return nil
	},
}

// showRecoveryKey displays the recovery key. On a terminal the screen is
// cleared once the user confirms they saved it.
func showRecoveryKey(spinner interface{ Stop() }, key string) error {
	spinner.Stop()

	message := ui.Caution() + " Save your recovery key now. It will not be shown again.\n\n" +
		"    " + ui.Highlight.Sprint(key) + "\n\n"

	if !utils.IsOutputTerminal() || !utils.IsTTYAvailable() {
		fmt.Print(message)
		return nil
	}

	if err := utils.WriteToTTY(message + "Press Enter once you have stored it safely..."); err != nil {
		return err
	}
	if err := utils.WaitForEnterFromTTY(); err != nil {
		return err
	}
	return utils.ClearScreen()
}
