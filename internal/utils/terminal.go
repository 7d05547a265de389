package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

// ErrNoTerminal is returned by prompts when there is no terminal to ask on.
var ErrNoTerminal = errors.New("no terminal available")

// IsTerminal reports whether stdin is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsOutputTerminal reports whether stdout is a terminal.
func IsOutputTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ReadPassphrase prompts on stderr and reads a line from stdin without echo.
func ReadPassphrase(prompt string) ([]byte, error) {
	if !IsTerminal() {
		return nil, fmt.Errorf("%w: stdin is not a terminal", ErrNoTerminal)
	}
	return readHidden(int(os.Stdin.Fd()), prompt)
}

// ReadNewPassphrase asks twice and fails unless both entries match and are
// non-empty.
func ReadNewPassphrase(prompt, confirmPrompt string) ([]byte, error) {
	first, err := ReadPassphrase(prompt)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}

	second, err := ReadPassphrase(confirmPrompt)
	if err != nil {
		clear(first)
		return nil, err
	}
	defer clear(second)

	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}

func readHidden(fd int, prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return secret, nil
}

// ttyPath is the controlling terminal, which stays reachable when stdin
// and stdout are redirected.
func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CON"
	}
	return "/dev/tty"
}

func openTTY(flag int) (*os.File, error) {
	tty, err := os.OpenFile(ttyPath(), flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTerminal, err)
	}
	return tty, nil
}

// IsTTYAvailable reports whether a controlling terminal can be opened.
func IsTTYAvailable() bool {
	tty, err := openTTY(os.O_RDONLY)
	if err != nil {
		return false
	}
	defer tty.Close()
	return term.IsTerminal(int(tty.Fd()))
}

// WriteToTTY writes content to the controlling terminal, bypassing stdout.
// Secrets shown this way stay out of redirected output.
func WriteToTTY(content string) error {
	tty, err := openTTY(os.O_WRONLY)
	if err != nil {
		return err
	}
	defer tty.Close()

	if _, err := tty.WriteString(content); err != nil {
		return fmt.Errorf("writing to terminal: %w", err)
	}
	return nil
}

// ClearScreen clears the controlling terminal and homes the cursor.
func ClearScreen() error {
	return WriteToTTY("\033[2J\033[H")
}

// WaitForEnterFromTTY blocks until Enter is pressed on the controlling
// terminal.
func WaitForEnterFromTTY() error {
	tty, err := openTTY(os.O_RDONLY)
	if err != nil {
		return err
	}
	defer tty.Close()

	buf := make([]byte, 1)
	for {
		if _, err := tty.Read(buf); err != nil {
			return fmt.Errorf("reading from terminal: %w", err)
		}
		if buf[0] == '\n' || buf[0] == '\r' {
			return nil
		}
	}
}
