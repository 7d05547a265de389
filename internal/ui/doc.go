// Package ui renders cryptdrive's terminal output.
//
// Styles name what a piece of text is rather than how it looks:
//
//	ui.Code.Sprint("cryptdrive keys unlock")
//	ui.Highlight.Sprint("alice@example.com")
//	ui.Muted.Sprint(fileID)
//
// Colour is dropped when NO_COLOR is set or stdout is not a terminal. Code,
// Highlight and Muted then fall back to backticks, quotes and parentheses.
//
// Result lines start with Tick, Cross, Caution or Arrow.
//
// Transfer figures (FormatBytes, FormatSpeed, FormatETA, FormatProgress)
// use binary units and go through a golang.org/x/text message printer so
// large counts get thousands separators.
package ui
