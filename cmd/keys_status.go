package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/vault"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var statusJSONOutput bool

func init() {
	keysStatusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

type keysStatusJSON struct {
	Account          bool   `json:"account"`
	Email            string `json:"email,omitempty"`
	Username         string `json:"username,omitempty"`
	Fingerprint      string `json:"fingerprint,omitempty"`
	Recovery         bool   `json:"recovery"`
	Keys             string `json:"keys"`
	VaultMismatch    bool   `json:"vault_mismatch,omitempty"`
	ServerConfigured bool   `json:"server_configured"`
}

var keysStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show your account and whether your keys are unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys status command")

		result, err := workflows.Status(context.Background(), workflows.StatusOptions{Vault: vaultDefaults})
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read status: %v", err)
		}

		if statusJSONOutput {
			data, err := json.MarshalIndent(keysStatusJSON{
				Account:          result.HasAccount,
				Email:            result.Email,
				Username:         result.Username,
				Fingerprint:      result.Fingerprint,
				Recovery:         result.HasRecovery,
				Keys:             string(result.KeyStatus),
				VaultMismatch:    result.VaultMismatch,
				ServerConfigured: result.ServerConfigured,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Print(formatKeysStatus(result))
		return nil
	},
}

func formatKeysStatus(result *workflows.StatusResult) string {
	if !result.HasAccount {
		return ui.Cross() + " No cryptdrive account found\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys init") + " first\n"
	}

	out := "Account:     " + ui.Highlight.Sprint(result.Email) + " " + ui.Muted.Sprint(result.Username) + "\n" +
		"Fingerprint: " + result.Fingerprint + "\n"

	switch result.KeyStatus {
	case vault.KeyStatusReady:
		out += "Keys:        " + ui.Success.Sprint("unlocked") + "\n"
	case vault.KeyStatusExpired:
		out += "Keys:        " + ui.Warning.Sprint("expired") + "\n"
	default:
		out += "Keys:        " + ui.Error.Sprint("locked") + "\n"
	}
	if result.HasRecovery {
		out += "Recovery:    available\n"
	} else {
		out += "Recovery:    " + ui.Warning.Sprint("none") + "\n"
	}
	if !result.ServerConfigured {
		out += "Server:      " + ui.Warning.Sprint("not configured") + "\n"
	}

	if result.VaultMismatch {
		out += ui.Caution() + " The vault holds a different key pair than account.toml\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys unlock") + " to replace it\n"
	} else if result.KeyStatus != vault.KeyStatusReady {
		out += ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys unlock") + " to use your drive\n"
	}
	return out
}
