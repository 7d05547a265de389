package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	logLimit     int
	logReverse   bool
	logOperation string
	logSince     string
	logUntil     string
	logJSON      bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	logCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	logCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	logCmd.Flags().StringVar(&logSince, "since", "", "show entries from date (YYYY-MM-DD)")
	logCmd.Flags().StringVar(&logUntil, "until", "", "show entries up to date (YYYY-MM-DD)")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

// resetLogCommandState resets the log command's global state for testing.
func resetLogCommandState() {
	logLimit = 0
	logReverse = false
	logOperation = ""
	logSince = ""
	logUntil = ""
	logJSON = false
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View your local activity log",
	Long: `Displays what this machine uploaded, downloaded and shared.

The log only holds names and ids you already see; it never contains file
content or keys.

Examples:
  cryptdrive log -n 10                    # Last 10 entries
  cryptdrive log --reverse                # Most recent first
  cryptdrive log --operation upload,share_folder
  cryptdrive log --since 2024-01-01       # Filter by date
  cryptdrive log --json                   # JSON output`,
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	Logger.Infof("Starting log command")

	result, err := workflows.Log(context.Background(), workflows.LogOptions{
		Limit:      logLimit,
		Reverse:    logReverse,
		Operations: logOperation,
		Since:      logSince,
		Until:      logUntil,
	})
	if err != nil {
		fmt.Println(formatLogError(err))
		if errors.Is(err, kerrors.ErrNoFilesFound) || errors.Is(err, kerrors.ErrInvalidDateFormat) {
			return nil
		}
		return err
	}

	Logger.Debugf("Parsed %d entries, %d after filtering", result.Total, len(result.Entries))

	if len(result.Entries) == 0 {
		fmt.Println("No activity log entries found matching the filters.")
		return nil
	}

	if logJSON {
		return outputLogJSON(result.Entries)
	}
	outputLogDefault(result.Entries)
	return nil
}

func formatLogError(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrNoFilesFound):
		return ui.Info.Sprint("ℹ") + " No activity yet. Operations are logged once you upload, download or share."
	case errors.Is(err, kerrors.ErrInvalidDateFormat):
		return ui.Cross() + " " + err.Error()
	default:
		return ui.Cross() + " Failed to read activity log: " + err.Error()
	}
}

func outputLogJSON(entries []audit.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func outputLogDefault(entries []audit.Entry) {
	for _, e := range entries {
		fmt.Printf("%-19s  %-25s  %-15s  %s\n", workflows.FormatDateTime(e.Timestamp), e.User, e.Operation, workflows.FormatDetails(e))
	}
}
