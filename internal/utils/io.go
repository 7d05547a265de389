package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// maxPiped bounds what ReadStdin accepts. Piped input is a recovery key or
// a password, never file content.
const maxPiped = 64 << 10

var errNothingPiped = errors.New("nothing was piped to stdin")

// ReadStdin returns the data piped to the process. A terminal on stdin or
// an empty pipe is an error.
func ReadStdin() ([]byte, error) {
	if IsTerminal() {
		return nil, fmt.Errorf("%w (pipe it, for example: cat recovery.txt | cryptdrive keys recover)", errNothingPiped)
	}

	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxPiped+1))
	switch {
	case err != nil:
		return nil, fmt.Errorf("reading stdin: %w", err)
	case len(data) == 0:
		return nil, errNothingPiped
	case len(data) > maxPiped:
		return nil, fmt.Errorf("stdin holds more than %d bytes", maxPiped)
	}
	return data, nil
}
