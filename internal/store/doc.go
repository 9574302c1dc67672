// Package store provides file-based persistence for client settings.
//
// SettingsFileStore implements domain.SettingsStore, serialising the settings
// as JSON under the configured home directory. Writes go through a temp file
// and a rename so a crash never leaves a half-written file. All methods are
// concurrency-safe via internal locking.
package store
