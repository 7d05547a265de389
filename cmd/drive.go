package cmd

import (
	"fmt"
	"strings"

	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	uploadFolder        string
	uploadIncludeHidden bool
	downloadOutput      string
	downloadForce       bool
	mkdirParent         string
)

func init() {
	uploadCmd.Flags().StringVarP(&uploadFolder, "folder", "f", "", "destination folder id (defaults to the drive root)")
	uploadCmd.Flags().BoolVar(&uploadIncludeHidden, "include-hidden", false, "include dotfiles when uploading directories")

	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file or directory")
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "overwrite an existing file")

	downloadFolderCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output archive or directory")
	downloadFolderCmd.Flags().BoolVar(&downloadForce, "force", false, "overwrite an existing archive")

	mkdirCmd.Flags().StringVarP(&mkdirParent, "parent", "p", "", "parent folder id (defaults to the drive root)")
}

func resetDriveCommandState() {
	uploadFolder = ""
	uploadIncludeHidden = false
	downloadOutput = ""
	downloadForce = false
	mkdirParent = ""
}

var uploadCmd = &cobra.Command{
	Use:   "upload <paths...>",
	Short: "Encrypt and upload files",
	Long: `Encrypts files locally and uploads them in chunks. Paths may be files,
directories or globs such as "photos/**/*.jpg".

Files uploaded into a shared folder are shared with the folder's users.

Examples:
  cryptdrive upload report.pdf
  cryptdrive upload ./photos --folder 6f1c...
  cryptdrive upload "docs/**/*.md"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting upload command")
		spinner, cleanup := startSpinner("Uploading...")
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		sess, closeSession, err := openSession(ctx, spinner, progressReporter(spinner, "Uploading..."))
		if err != nil {
			return fail(spinner, err)
		}
		defer closeSession()

		result, err := workflows.Upload(ctx, sess, workflows.UploadOptions{
			Patterns:      args,
			FolderID:      uploadFolder,
			IncludeHidden: uploadIncludeHidden,
		})
		if result == nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = formatUploadResult(result)
		if err != nil {
			Logger.Errorf("%v", err)
			return fmt.Errorf("%d of %d uploads failed", result.Failures, len(result.Files))
		}
		return nil
	},
}

func formatUploadResult(result *workflows.UploadResult) string {
	var b strings.Builder
	succeeded := len(result.Files) - result.Failures
	if succeeded > 0 {
		b.WriteString(ui.Tick() + " Uploaded " + ui.FormatCount(succeeded) + " file(s), " + ui.FormatBytes(result.Bytes) + "\n")
		for _, f := range result.Files {
			if f.Err == nil {
				b.WriteString("    - " + ui.Path.Sprint(f.Path) + " " + ui.Muted.Sprint(f.FileID) + "\n")
			}
		}
	}
	if result.Failures > 0 {
		b.WriteString(ui.Cross() + " " + ui.FormatCount(result.Failures) + " upload(s) failed\n")
		for _, f := range result.Files {
			if f.Err != nil {
				b.WriteString("    - " + ui.Path.Sprint(f.Path) + ": " + f.Err.Error() + "\n")
			}
		}
	}
	return b.String()
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download and decrypt a file",
	Long: `Downloads a file, verifies and decrypts every chunk, and writes it under
its original name. Nothing is written unless the whole file decrypts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting download command")
		spinner, cleanup := startSpinner("Downloading...")
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		sess, closeSession, err := openSession(ctx, spinner, progressReporter(spinner, "Downloading..."))
		if err != nil {
			return fail(spinner, err)
		}
		defer closeSession()

		result, err := workflows.Download(ctx, sess, workflows.DownloadOptions{
			FileID: args[0],
			Output: downloadOutput,
			Force:  downloadForce,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.Tick() + " Downloaded " + ui.Path.Sprint(result.Path) +
			" " + ui.Muted.Sprint(ui.FormatBytes(result.Size))
		return nil
	},
}

var downloadFolderCmd = &cobra.Command{
	Use:   "download-folder <folder-id>",
	Short: "Download a folder as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting download-folder command")
		spinner, cleanup := startSpinner("Downloading folder...")
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		sess, closeSession, err := openSession(ctx, spinner, progressReporter(spinner, "Downloading folder..."))
		if err != nil {
			return fail(spinner, err)
		}
		defer closeSession()

		result, err := workflows.DownloadFolder(ctx, sess, workflows.DownloadFolderOptions{
			FolderID: args[0],
			Output:   downloadOutput,
			Force:    downloadForce,
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.Tick() + " Saved " + ui.FormatCount(len(result.Files)) + " file(s) to " + ui.Path.Sprint(result.Path)
		if len(result.Failures) > 0 {
			msg += "\n" + ui.Caution() + " " + ui.FormatCount(len(result.Failures)) + " file(s) could not be downloaded:"
			for _, f := range result.Failures {
				msg += "\n    - " + f.Error()
			}
		}
		spinner.FinalMSG = msg
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "Create an encrypted folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting mkdir command")
		spinner, cleanup := startSpinner("Creating folder...")
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		sess, closeSession, err := openSession(ctx, spinner, nil)
		if err != nil {
			return fail(spinner, err)
		}
		defer closeSession()

		result, err := workflows.CreateFolder(ctx, sess, workflows.MkdirOptions{
			Name:     args[0],
			ParentID: mkdirParent,
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.Tick() + " Created folder " + ui.Highlight.Sprint(args[0]) + " " + ui.Muted.Sprint(result.FolderID)
		switch {
		case result.PropagationErr != nil:
			msg += "\n" + ui.Caution() + " Could not share it with the parent folder's users: " + result.PropagationErr.Error()
		case result.Propagation.Propagated:
			msg += "\n    Shared with " + ui.FormatCount(result.Propagation.UserCount) + " user(s) of the parent folder"
		}
		spinner.FinalMSG = msg
		return nil
	},
}
