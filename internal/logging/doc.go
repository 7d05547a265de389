// Package logger provides leveled logging for cryptdrive commands and the
// transfer engines.
//
// The logger supports multiple verbosity levels controlled by command-line
// flags. Output is prefixed with a coloured level tag.
//
// # Verbosity Levels
//
//   - --verbose: Shows info and warning messages
//   - --debug: Shows all messages including debug details and errors
//
// Without flags, only WarnfAlways output is shown.
//
// # Log Methods
//
//	Logger.Infof()          // Shown with --verbose or --debug
//	Logger.Debugf()         // Shown only with --debug
//	Logger.Warnf()          // Shown with --verbose or --debug
//	Logger.WarnfAlways()    // Always shown
//	Logger.Errorf()         // Shown with --debug
//	Logger.ErrorfAndReturn  // Errorf, then returns the message as an error
//
// The zero value is a silent logger, which is what tests and library callers
// get unless they opt in.
package logger
