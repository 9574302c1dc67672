package interfaces

import domaintypes "enclavelink/internal/domain/types"

// AddressService decides which server the client talks to.
type AddressService interface {
	// ResolveAddress picks override if set, then the saved address, then the
	// configured fallback.
	ResolveAddress(override domaintypes.Address) (domaintypes.Address, error)
	SetAddress(addr domaintypes.Address) error
}
