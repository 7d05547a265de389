package cmd

import (
	"context"
	"strings"

	"github.com/PolarWolf314/cryptdrive/internal/sharing"
	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	shareTo     []string
	shareAccess = sharing.AccessRead
)

func init() {
	for _, c := range []*cobra.Command{shareFolderCmd, shareFileCmd} {
		addShareFlags(c.Flags())
		_ = c.MarkFlagRequired("to")
		ShareCmd.AddCommand(c)
	}
}

func addShareFlags(flags *pflag.FlagSet) {
	flags.StringSliceVarP(&shareTo, "to", "t", nil, "recipient email (repeat or comma separate)")
	flags.VarP(&shareAccess, "access", "a", "access level: read, write or admin")
}

func resetShareCommandState() {
	shareTo = nil
	shareAccess = sharing.AccessRead
}

var ShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share folders and files with other users",
	Long: `Grants other users access by wrapping the item's key with their public
key. Content is never re-encrypted.

Examples:
  cryptdrive share folder 6f1c... --to alice@example.com,bob@example.com
  cryptdrive share file 9a2e... --to carol@example.com --access write`,
}

var shareFolderCmd = &cobra.Command{
	Use:   "folder <folder-id>",
	Short: "Share a folder and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare(args[0], "folder", workflows.ShareFolder)
	},
}

var shareFileCmd = &cobra.Command{
	Use:   "file <file-id>",
	Short: "Share a single file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare(args[0], "file", workflows.ShareFile)
	},
}

type shareFunc func(ctx context.Context, s *workflows.Session, opts workflows.ShareOptions) (*sharing.ShareResult, error)

func runShare(id, kind string, share shareFunc) error {
	Logger.Infof("Starting share %s command", kind)
	spinner, cleanup := startSpinner("Sharing " + kind + "...")
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	sess, closeSession, err := openSession(ctx, spinner, nil)
	if err != nil {
		return fail(spinner, err)
	}
	defer closeSession()

	result, err := share(ctx, sess, workflows.ShareOptions{
		ID:          id,
		Recipients:  shareTo,
		AccessLevel: shareAccess,
	})
	if result == nil {
		return fail(spinner, err)
	}

	var b strings.Builder
	if len(result.Shared) > 0 {
		b.WriteString(ui.Tick() + " Shared " + kind + " " + ui.Muted.Sprint(id) +
			" with " + ui.Highlight.Sprint(strings.Join(result.Shared, ", ")) + " " + ui.Muted.Sprint(string(shareAccess)))
		if kind == "folder" {
			b.WriteString("\n    " + ui.FormatCount(result.FolderCount) + " folder(s), " + ui.FormatCount(result.FileCount) + " file(s)")
		}
		if result.SkippedItems > 0 {
			b.WriteString("\n" + ui.Caution() + " " + ui.FormatCount(result.SkippedItems) + " item(s) were skipped because their key could not be opened")
		}
		b.WriteString("\n")
	}
	if err != nil {
		b.WriteString(formatError(err))
		spinner.FinalMSG = b.String()
		return err
	}
	spinner.FinalMSG = b.String()
	return nil
}
