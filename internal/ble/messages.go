package ble

import "time"

// ConnState tracks the connection lifecycle. Transitions:
// idle -> connecting -> discovering -> connected -> disconnecting -> idle.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateDiscovering
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// CharKey addresses one characteristic row by its service and
// characteristic indexes. Peripherals may expose the same
// characteristic UUID more than once, so a UUID is not an identity.
type CharKey struct {
	Service int
	Char    int
}

// ValueSource distinguishes how a characteristic value arrived.
type ValueSource int

const (
	SourceRead ValueSource = iota
	SourceNotify
)

// ServiceInfo describes one discovered service for the UI.
type ServiceInfo struct {
	UUID string
}

// CharInfo describes one discovered characteristic for the UI.
type CharInfo struct {
	UUID        string
	Props       Properties
	PropsKnown  bool
	Descriptors []string
}

// Messages sent into the UI loop via Program.Send. Every message
// carries the generation of the connection it belongs to; the model
// drops messages whose generation is stale.

// ConnStateMsg reports a connection state transition.
type ConnStateMsg struct {
	Gen     uint64
	Address string
	State   ConnState
}

// ConnErrorMsg reports a failed connect or service discovery. The
// client has already returned to idle when this is sent.
type ConnErrorMsg struct {
	Gen     uint64
	Address string
	Err     error
}

// ServicesDiscoveredMsg delivers the peripheral's primary services.
type ServicesDiscoveredMsg struct {
	Gen      uint64
	Address  string
	Services []ServiceInfo
}

// CharacteristicsDiscoveredMsg delivers one service's characteristics.
type CharacteristicsDiscoveredMsg struct {
	Gen     uint64
	Service int
	Chars   []CharInfo
}

// ServiceErrorMsg reports a failed characteristic discovery for one
// service. The connection stays up.
type ServiceErrorMsg struct {
	Gen     uint64
	Service int
	Err     error
}

// ValueMsg delivers a characteristic value from a read or a
// notification, or the error that produced neither.
type ValueMsg struct {
	Gen    uint64
	Key    CharKey
	Source ValueSource
	Value  []byte
	At     time.Time
	Err    error
}

// SubscribedMsg reports a subscription state change (or its failure).
type SubscribedMsg struct {
	Gen     uint64
	Key     CharKey
	Enabled bool
	Err     error
}

// DisconnectedMsg reports the connection is gone. Err is nil for a
// requested disconnect and non-nil for an unsolicited drop.
type DisconnectedMsg struct {
	Gen     uint64
	Address string
	Err     error
}
