// Package ble abstracts the Bluetooth LE host stack behind a small
// backend interface so the rest of the application can run against
// real hardware or an in-memory demo world.
package ble

import (
	"context"

	"github.com/pkg/errors"
)

// Sentinel errors for conditions the UI reports with specific advice.
var (
	// ErrPoweredOff reports the adapter radio is off.
	ErrPoweredOff = errors.New("bluetooth is powered off")
	// ErrUnsupported reports no usable Bluetooth stack on this platform.
	ErrUnsupported = errors.New("bluetooth is not available on this platform")
	// ErrPermission reports missing OS-level Bluetooth permissions.
	ErrPermission = errors.New("missing bluetooth permissions")
	// ErrNotConnected reports an operation on a torn-down connection.
	ErrNotConnected = errors.New("not connected")
	// ErrReadNotSupported reports a read on a characteristic without
	// the read property.
	ErrReadNotSupported = errors.New("characteristic does not support read")
	// ErrNotifyNotSupported reports a subscription on a characteristic
	// without the notify or indicate property.
	ErrNotifyNotSupported = errors.New("characteristic does not support notifications")
)

// ScanEvent is one advertisement report.
type ScanEvent struct {
	Address      string
	Name         string
	RSSI         int16
	CompanyIDs   []uint16 // manufacturer-data company identifiers
	ServiceUUIDs []string // from service-data AD structures
}

// Backend is the host-stack surface the application drives. Two
// implementations exist: TinygoBackend (real hardware) and DemoBackend
// (fake world, no hardware access).
type Backend interface {
	// Enable initializes the adapter. Must be called once before Scan
	// or Connect.
	Enable() error

	// Scan streams advertisement reports to cb until StopScan is
	// called. Blocks; run it on its own goroutine.
	Scan(cb func(ScanEvent)) error

	// StopScan halts a running scan. Safe to call when idle.
	StopScan() error

	// Connect dials the peripheral at address. Honors the context
	// deadline. The returned Connection is live until Disconnect or an
	// unsolicited drop.
	Connect(ctx context.Context, address string) (Connection, error)

	// SetDisconnectHandler registers cb for unsolicited connection
	// drops. cb receives the peripheral address and may be invoked
	// from a stack-owned goroutine.
	SetDisconnectHandler(cb func(address string))
}

// Connection is a live link to one peripheral.
type Connection interface {
	Address() string

	// DiscoverServices walks the peripheral's GATT database and
	// returns its primary services.
	DiscoverServices() ([]Service, error)

	Disconnect() error
}

// Service is one discovered GATT service.
type Service interface {
	UUID() string

	// Characteristics discovers the service's characteristics.
	Characteristics() ([]Characteristic, error)
}

// Characteristic is one discovered GATT characteristic.
type Characteristic interface {
	UUID() string

	// Properties reports the GATT property bits. The bool is false
	// when the stack does not expose them (then reads and
	// subscriptions are attempted on demand).
	Properties() (Properties, bool)

	// Descriptors lists descriptor UUIDs when known.
	Descriptors() []string

	// Read fetches the current value.
	Read() ([]byte, error)

	// Subscribe enables notifications (the stack writes the CCCD) and
	// delivers value updates to cb until Unsubscribe.
	Subscribe(cb func([]byte)) error

	Unsubscribe() error
}

// readBufSize bounds a single characteristic read. 512 is the ATT
// maximum attribute value length.
const readBufSize = 512
