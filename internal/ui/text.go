package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Style colours a kind of text. Without colour it falls back to a plain
// decoration so the kind stays recognisable in logs and pipes.
type Style struct {
	attrs []color.Attribute
	open  string
	close string
}

func newStyle(open, close string, attrs ...color.Attribute) Style {
	return Style{attrs: attrs, open: open, close: close}
}

// Sprint formats the arguments like fmt.Sprint and styles the result.
func (s Style) Sprint(a ...any) string {
	text := fmt.Sprint(a...)
	if !ColorEnabled() {
		return s.open + text + s.close
	}
	return color.New(s.attrs...).Sprint(text)
}

// Sprintf formats like fmt.Sprintf and styles the result.
func (s Style) Sprintf(format string, a ...any) string {
	return s.Sprint(fmt.Sprintf(format, a...))
}

// ColorEnabled reports whether output is coloured. NO_COLOR (any value) and
// fatih/color's terminal detection both turn it off.
func ColorEnabled() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return !color.NoColor
}

var (
	// Code is a command the user can run: `backticks` without colour.
	Code = newStyle("`", "`", color.FgYellow)

	// Path is a local file or directory.
	Path = newStyle("", "", color.FgYellow)

	// Flag is a CLI flag such as --force.
	Flag = newStyle("", "", color.FgYellow)

	Success = newStyle("", "", color.FgGreen)
	Error   = newStyle("", "", color.FgRed)
	Warning = newStyle("", "", color.FgYellow)
	Info    = newStyle("", "", color.FgCyan)

	// Highlight is a user supplied value such as an email or a folder name:
	// 'quoted' without colour.
	Highlight = newStyle("'", "'", color.FgCyan)

	// Muted is secondary detail such as object ids: (parenthesised) without
	// colour.
	Muted = newStyle("(", ")", color.FgHiBlack)
)

// Tick marks a line reporting success.
func Tick() string { return Success.Sprint("✓") }

// Cross marks a line reporting failure.
func Cross() string { return Error.Sprint("✗") }

// Caution marks a warning line.
func Caution() string { return Warning.Sprint("⚠") }

// Arrow marks a hint telling the user what to do next.
func Arrow() string { return Info.Sprint("→") }

// EnsureNewline appends a newline to s unless it already ends with one.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}
