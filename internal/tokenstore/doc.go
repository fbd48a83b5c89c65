// Package tokenstore provides persistent storage for the OAuth token record.
//
// Two storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and owner-only permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Exactly one record is stored at a time; saves replace the whole record, never
// parts of it.
package tokenstore
