//go:build !linux

package bluez

// AdapterPowered is Linux-only; other platforms report their power
// state through the portable stack's Enable error.
func AdapterPowered(adapter string) (bool, error) {
	return false, ErrUnsupported
}

// DeviceCharacteristics is Linux-only; elsewhere characteristics stay
// undecorated.
func DeviceCharacteristics(adapter, address string) ([]CharacteristicInfo, error) {
	return nil, ErrUnsupported
}
