package ble

import "strings"

// Properties is the GATT characteristic property bitmask, in the bit
// order of the Core spec (Vol 3, Part G, 3.3.1.1).
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

// CanRead reports whether the read property is set.
func (p Properties) CanRead() bool { return p&PropRead != 0 }

// CanNotify reports whether notifications or indications are
// available (either flips the CCCD).
func (p Properties) CanNotify() bool { return p&(PropNotify|PropIndicate) != 0 }

// CanWrite reports whether any write form is set.
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse|PropSignedWrite) != 0
}

var propNames = []struct {
	bit  Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// String renders the set bits as "read|notify". Zero renders as "".
func (p Properties) String() string {
	var parts []string
	for _, pn := range propNames {
		if p&pn.bit != 0 {
			parts = append(parts, pn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Compact renders the set bits as a fixed-width tag string for list
// rows: one letter per property, "." when unset. Order: B R w W N I.
func (p Properties) Compact() string {
	letters := []struct {
		bit Properties
		on  byte
	}{
		{PropBroadcast, 'B'},
		{PropRead, 'R'},
		{PropWriteWithoutResponse, 'w'},
		{PropWrite, 'W'},
		{PropNotify, 'N'},
		{PropIndicate, 'I'},
	}
	out := make([]byte, len(letters))
	for i, l := range letters {
		if p&l.bit != 0 {
			out[i] = l.on
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// blueZFlagBits maps org.bluez.GattCharacteristic1 Flags strings to
// property bits. Flags outside the core property byte
// (e.g. "reliable-write", "encrypt-read") are ignored.
var blueZFlagBits = map[string]Properties{
	"broadcast":                   PropBroadcast,
	"read":                        PropRead,
	"write-without-response":      PropWriteWithoutResponse,
	"write":                       PropWrite,
	"notify":                      PropNotify,
	"indicate":                    PropIndicate,
	"authenticated-signed-writes": PropSignedWrite,
	"extended-properties":         PropExtended,
}

// ParseBlueZFlags converts a BlueZ characteristic Flags array into a
// Properties bitmask.
func ParseBlueZFlags(flags []string) Properties {
	var p Properties
	for _, f := range flags {
		p |= blueZFlagBits[strings.ToLower(f)]
	}
	return p
}
