package cmd

import (
	"context"
	"strings"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var keysUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock your private key into the local vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys unlock command")
		spinner, cleanup := startSpinner("Unlocking keys...")
		defer cleanup()

		password, err := readPassword(spinner, "Password: ", false)
		if err != nil {
			return fail(spinner, err)
		}
		defer clear(password)

		vault, err := vaultOptions(spinner)
		if err != nil {
			return fail(spinner, err)
		}

		result, err := workflows.Unlock(context.Background(), workflows.UnlockOptions{
			Password: password,
			Vault:    vault,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.Tick() + " Keys unlocked until " +
			ui.Highlight.Sprint(result.ExpiresAt.Local().Format("2006-01-02 15:04")) + "\n" +
			"    Fingerprint: " + ui.Muted.Sprint(result.Fingerprint)
		return nil
	},
}

var keysRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Set a new password using your recovery key",
	Long: `Opens the recovery bundle with your recovery key, protects the private key
with a new password and unlocks it.

The recovery key is read from stdin when piped, otherwise it is prompted for:

  cat recovery.txt | cryptdrive keys recover`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys recover command")
		spinner, cleanup := startSpinner("Recovering keys...")
		defer cleanup()

		recoveryKey, err := readRecoveryKey(spinner)
		if err != nil {
			return fail(spinner, err)
		}

		password, err := readPassword(spinner, "New password: ", true)
		if err != nil {
			return fail(spinner, err)
		}
		defer clear(password)

		vault, err := vaultOptions(spinner)
		if err != nil {
			return fail(spinner, err)
		}

		result, err := workflows.Recover(context.Background(), workflows.RecoverOptions{
			RecoveryKey: recoveryKey,
			NewPassword: password,
			Vault:       vault,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.Tick() + " Password replaced and keys unlocked\n" +
			"    Fingerprint: " + ui.Muted.Sprint(result.Fingerprint)
		return nil
	},
}

func readRecoveryKey(spinner interface{ Stop() }) (string, error) {
	if !utils.IsTerminal() {
		data, err := utils.ReadStdin()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	spinner.Stop()
	key, err := utils.ReadPassphrase("Recovery key: ")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(key)), nil
}

var keysLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Remove your unlocked keys from the local vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys lock command")
		spinner, cleanup := startSpinner("Locking keys...")
		defer cleanup()

		vault, err := vaultOptions(spinner)
		if err != nil {
			return fail(spinner, err)
		}
		if err := workflows.Lock(context.Background(), workflows.LockOptions{Vault: vault}); err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.Tick() + " Keys locked\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys unlock") + " to use your drive again"
		return nil
	},
}

func accountPath() string {
	return configs.UserCryptdriveSettings.AccountPath()
}
