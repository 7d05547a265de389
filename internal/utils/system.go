package utils

import (
	"os"
	"os/user"
)

// CurrentUsername returns the login name used as the default account
// username. It falls back to $USER, then to "unknown".
func CurrentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
