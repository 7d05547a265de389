// Package configs manages the cryptdrive configuration and local account.
//
// Two TOML files live under <UserConfigDir>/cryptdrive:
//
//   - config.toml: server address and token, transfer tuning, key and
//     vault settings
//   - account.toml: the password-wrapped private key, the public key and
//     the recovery bundle produced when the account was created
//
// # Configuration
//
// LoadConfig starts from DefaultConfig, overlays config.toml and then the
// CRYPTDRIVE_SERVER_URL, CRYPTDRIVE_TOKEN and CRYPTDRIVE_VAULT_PASSPHRASE
// environment variables. Durations are written as strings such as "1s".
// Unknown keys are rejected so typos do not silently fall back to defaults.
//
// # Settings
//
// UserCryptdriveSettings is initialised at startup from the XDG directories
// and is independent of the working directory. Tests point its fields at a
// temporary directory.
package configs
