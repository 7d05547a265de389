// Package utils provides shared helpers for the cryptdrive CLI.
//
// # Files
//
//   - ResolveUploadPaths: expands paths, directories and ** globs into the
//     list of files to upload
//   - FormatPaths: formats file paths for human-readable output
//
// # Terminal
//
// Passphrase prompts read from the terminal without echo:
//   - ReadPassphrase, ReadNewPassphrase: prompt on stdin
//   - WriteToTTY, ClearScreen, WaitForEnterFromTTY: show a recovery key on
//     the controlling terminal and wipe it once the user confirms
//
// # Input
//
//   - ReadStdin: reads piped input such as a recovery key
//   - IsValidEmail, SplitEmails: validate and normalise share recipients
//   - CurrentUsername: the default account username
package utils
