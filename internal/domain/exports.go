package domain

import (
	interfaces "enclavelink/internal/domain/interfaces"
	types "enclavelink/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address  = types.Address
	Settings = types.Settings
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Conn           = interfaces.Conn
	Dialer         = interfaces.Dialer
	SettingsStore  = interfaces.SettingsStore
	AddressService = interfaces.AddressService
)
