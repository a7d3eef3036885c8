package bluetooth

import (
	"math"
	"time"
)

// DeviceType distinguishes BLE from Classic Bluetooth.
type DeviceType int

const (
	DeviceTypeBLE DeviceType = iota
	DeviceTypeClassic
)

func (dt DeviceType) String() string {
	if dt == DeviceTypeClassic {
		return "Classic"
	}
	return "BLE"
}

// Device represents a discovered Bluetooth device.
type Device struct {
	MAC          string
	Name         string
	RSSI         float64
	Type         DeviceType
	LastSeen     time.Time
	Distance     float64 // Estimated distance in meters
	CompanyID    uint16  // Manufacturer-data company identifier
	HasCompany   bool
	ServiceUUIDs []string // Service UUIDs seen across advertisements
}

// DisplayName returns the device name or "[unnamed]" if empty.
func (d *Device) DisplayName() string {
	if d.Name == "" {
		return "[unnamed]"
	}
	return d.Name
}

// Company returns the manufacturer name behind the advertised company
// identifier, "" when unknown.
func (d *Device) Company() string {
	if !d.HasCompany {
		return ""
	}
	return LookupManufacturer(d.CompanyID)
}

// Connectable reports whether an LE connection can be attempted.
// Classic devices are listed but refuse connection.
func (d *Device) Connectable() bool {
	return d.Type == DeviceTypeBLE
}

// RSSIToDistance estimates distance from RSSI using the log-distance path loss model.
// Formula: d = 10^((measuredPower - rssi) / (10 * n))
func RSSIToDistance(rssi, measuredPower, pathLossExp float64) float64 {
	if rssi >= 0 {
		return 0.1
	}
	d := math.Pow(10, (measuredPower-rssi)/(10*pathLossExp))
	if d < 0.1 {
		return 0.1
	}
	return d
}
