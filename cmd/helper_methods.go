package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/configs"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/sharing"
	"github.com/PolarWolf314/cryptdrive/internal/transfer"
	"github.com/PolarWolf314/cryptdrive/internal/ui"
	"github.com/PolarWolf314/cryptdrive/internal/utils"
	"github.com/PolarWolf314/cryptdrive/internal/workflows"

	"github.com/briandowns/spinner"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	// Ignore color errors - continue without colored spinner if it fails.
	_ = s.Color("cyan")

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stdout)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// pauseSpinner stops the spinner while fn talks to the terminal.
func pauseSpinner(s *spinner.Spinner, fn func() error) error {
	active := s.Active()
	if active {
		s.Stop()
	}
	err := fn()
	if active {
		s.Start()
	}
	return err
}

// signalContext returns a context cancelled by SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// vaultOptions returns the vault settings for a command, prompting for the
// vault passphrase when it is not in the environment.
func vaultOptions(s *spinner.Spinner) (workflows.VaultOptions, error) {
	opts := vaultDefaults
	if len(opts.Passphrase) > 0 || os.Getenv(configs.EnvVaultPassphrase) != "" {
		return opts, nil
	}
	if !utils.IsTerminal() {
		return opts, kerrors.ErrPassphraseRequired
	}

	err := pauseSpinner(s, func() error {
		passphrase, err := utils.ReadPassphrase("Vault passphrase: ")
		opts.Passphrase = passphrase
		return err
	})
	return opts, err
}

// readPassword returns the account password from CRYPTDRIVE_PASSWORD or a
// prompt. With confirm set, a new password is read twice.
func readPassword(s *spinner.Spinner, prompt string, confirm bool) ([]byte, error) {
	if env := os.Getenv(configs.EnvPassword); env != "" {
		return []byte(env), nil
	}
	if !utils.IsTerminal() {
		return nil, fmt.Errorf("cannot read password: set %s or run in a terminal", configs.EnvPassword)
	}

	var password []byte
	err := pauseSpinner(s, func() error {
		var err error
		if confirm {
			password, err = utils.ReadNewPassphrase(prompt, "Confirm password: ")
		} else {
			password, err = utils.ReadPassphrase(prompt)
		}
		return err
	})
	return password, err
}

// openSession unlocks the vault and connects to the backend. Transfers are
// cancelled when ctx is.
func openSession(ctx context.Context, s *spinner.Spinner, onProgress func(transfer.Status)) (*workflows.Session, func(), error) {
	vault, err := vaultOptions(s)
	if err != nil {
		return nil, nil, err
	}

	sess, err := workflows.OpenSession(ctx, workflows.SessionOptions{
		Vault:      vault,
		OnProgress: onProgress,
		Log:        Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		if n := sess.Transfers.CancelAll(); n > 0 {
			Logger.Infof("Cancelled %d transfer(s)", n)
		}
	})
	closeFn := func() {
		stop()
		sess.Close()
	}
	return sess, closeFn, nil
}

// progressReporter renders the combined progress of all transfers into the
// spinner suffix.
func progressReporter(s *spinner.Spinner, label string) func(transfer.Status) {
	var mu sync.Mutex
	latest := make(map[string]transfer.Status)

	return func(st transfer.Status) {
		mu.Lock()
		latest[st.ID] = st
		suffix := " " + label + " " + renderProgress(latest)
		mu.Unlock()

		s.Lock()
		s.Suffix = suffix
		s.Unlock()
	}
}

func renderProgress(statuses map[string]transfer.Status) string {
	var done, size int64
	var speed float64
	var eta time.Duration
	for _, st := range statuses {
		done += st.Done
		size += st.Size
		if st.State.Terminal() {
			continue
		}
		speed += st.BytesPerSecond
		eta = max(eta, st.ETA)
	}

	parts := []string{ui.FormatProgress(done, size)}
	if s := ui.FormatSpeed(speed); s != "" {
		parts = append(parts, s)
	}
	if e := ui.FormatETA(eta); e != "" {
		parts = append(parts, e)
	}
	return strings.Join(parts, "  ")
}

// formatError turns an error from a workflow into a user-facing message.
func formatError(err error) string {
	var recipientErrs *sharing.RecipientErrors
	switch {
	case errors.Is(err, kerrors.ErrAccountNotInitialized):
		return ui.Cross() + " No cryptdrive account found\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys init") + " first"

	case errors.Is(err, kerrors.ErrAccountExists):
		return ui.Cross() + " A cryptdrive account already exists\n" +
			ui.Arrow() + " Use " + ui.Flag.Sprint("--force") + " to replace it"

	case errors.Is(err, kerrors.ErrNotConfigured):
		return ui.Cross() + " No server configured\n" +
			ui.Arrow() + " Set " + ui.Code.Sprint("base_url") + " and " + ui.Code.Sprint("token") +
			" in " + ui.Path.Sprint(configs.UserCryptdriveSettings.ConfigPath()) +
			" or export " + ui.Code.Sprint(configs.EnvServerURL) + " and " + ui.Code.Sprint(configs.EnvToken)

	case errors.Is(err, kerrors.ErrKeyNotFound):
		return ui.Cross() + " Your keys are locked\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys unlock")

	case errors.Is(err, kerrors.ErrKeyExpired):
		return ui.Cross() + " Your unlocked keys have expired\n" +
			ui.Arrow() + " Run " + ui.Code.Sprint("cryptdrive keys unlock")

	case errors.Is(err, kerrors.ErrPassphraseRequired):
		return ui.Cross() + " The key vault is protected by a passphrase\n" +
			ui.Arrow() + " Export " + ui.Code.Sprint(configs.EnvVaultPassphrase) + " or run in a terminal"

	case errors.Is(err, kerrors.ErrInvalidPassword):
		return ui.Cross() + " Wrong password or recovery key"

	case errors.Is(err, kerrors.ErrNoFilesFound):
		return ui.Cross() + " No files matched"

	case errors.Is(err, kerrors.ErrFileExists):
		return ui.Cross() + " " + err.Error() + "\n" +
			ui.Arrow() + " Use " + ui.Flag.Sprint("--force") + " to overwrite it"

	case errors.Is(err, kerrors.ErrCancelled):
		return ui.Caution() + " Cancelled"

	case errors.As(err, &recipientErrs):
		var b strings.Builder
		b.WriteString(ui.Cross() + " Could not share with some recipients:")
		for _, f := range recipientErrs.Failures {
			b.WriteString("\n    - " + ui.Highlight.Sprint(f.Recipient) + ": " + f.Err.Error())
		}
		return b.String()

	default:
		return ui.Cross() + " " + err.Error()
	}
}

// isUnexpectedError reports whether err should make the command exit
// non-zero beyond the message already printed.
func isUnexpectedError(err error) bool {
	switch {
	case errors.Is(err, kerrors.ErrAccountNotInitialized),
		errors.Is(err, kerrors.ErrAccountExists),
		errors.Is(err, kerrors.ErrNotConfigured),
		errors.Is(err, kerrors.ErrKeyNotFound),
		errors.Is(err, kerrors.ErrKeyExpired),
		errors.Is(err, kerrors.ErrPassphraseRequired),
		errors.Is(err, kerrors.ErrInvalidPassword),
		errors.Is(err, kerrors.ErrNoFilesFound),
		errors.Is(err, kerrors.ErrFileExists):
		return false
	default:
		return true
	}
}

// fail sets the spinner's final message for err and returns the error when
// it is unexpected.
func fail(s *spinner.Spinner, err error) error {
	Logger.Errorf("%v", err)
	s.FinalMSG = formatError(err)
	if isUnexpectedError(err) {
		return err
	}
	return nil
}
