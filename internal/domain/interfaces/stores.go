package interfaces

import domaintypes "enclavelink/internal/domain/types"

// SettingsStore persists the connection address chosen by the user.
type SettingsStore interface {
	SaveAddress(addr domaintypes.Address) error
	// LoadAddress reports ok=false when nothing has been saved yet.
	LoadAddress() (addr domaintypes.Address, ok bool, err error)
}
