package store

import (
	"path/filepath"
	"strings"
	"sync"

	"enclavelink/internal/domain"
)

const settingsFile = "settings.json"

// SettingsFileStore persists client settings to disk.
type SettingsFileStore struct {
	dir string
	mu  sync.Mutex
}

var _ domain.SettingsStore = (*SettingsFileStore)(nil)

// NewSettingsFileStore returns a SettingsFileStore rooted at dir.
func NewSettingsFileStore(dir string) *SettingsFileStore {
	return &SettingsFileStore{dir: dir}
}

// SaveAddress records addr, replacing any earlier one. A blank addr clears it.
func (s *SettingsFileStore) SaveAddress(addr domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, settingsFile)
	var settings domain.Settings
	if _, err := readJSON(path, &settings); err != nil {
		return err
	}
	settings.Address = domain.Address(strings.TrimSpace(addr.String()))
	return writeJSON(path, settings, 0o600)
}

// LoadAddress returns the saved address.
func (s *SettingsFileStore) LoadAddress() (domain.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings domain.Settings
	found, err := readJSON(filepath.Join(s.dir, settingsFile), &settings)
	if err != nil || !found || settings.Address.IsZero() {
		return "", false, err
	}
	return settings.Address, true, nil
}
