// Package uuids maps Bluetooth SIG assigned numbers to human-readable
// names. See: https://www.bluetooth.com/specifications/assigned-numbers/
package uuids

import (
	"fmt"
	"strconv"
	"strings"
)

// baseSuffix is the tail of the Bluetooth Base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb shared by all 16-bit UUIDs.
const baseSuffix = "-0000-1000-8000-00805f9b34fb"

// Short renders a Bluetooth-Base 128-bit UUID in its 16-bit form
// ("0x2A37"). Custom 128-bit UUIDs are returned lowercase, verbatim.
func Short(uuid string) string {
	if v, ok := shortValue(uuid); ok {
		return fmt.Sprintf("0x%04X", v)
	}
	return strings.ToLower(uuid)
}

// Name returns the assigned-numbers name for a service, characteristic
// or descriptor UUID, or "" when unknown.
func Name(uuid string) string {
	if v, ok := shortValue(uuid); ok {
		if n, ok := serviceNames[v]; ok {
			return n
		}
		if n, ok := characteristicNames[v]; ok {
			return n
		}
		if n, ok := descriptorNames[v]; ok {
			return n
		}
		return ""
	}
	return customNames[strings.ToLower(uuid)]
}

// shortValue extracts the 16-bit value from a Bluetooth-Base UUID.
// Accepts both the bare 4-digit form ("2a37") and the expanded
// 128-bit form, case-insensitively.
func shortValue(uuid string) (uint16, bool) {
	s := strings.ToLower(strings.TrimSpace(uuid))

	if len(s) == 4 {
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return 0, false
		}
		return uint16(v), true
	}

	if len(s) == 36 && strings.HasSuffix(s, baseSuffix) && strings.HasPrefix(s, "0000") {
		v, err := strconv.ParseUint(s[4:8], 16, 16)
		if err != nil {
			return 0, false
		}
		return uint16(v), true
	}

	return 0, false
}

var serviceNames = map[uint16]string{
	0x1800: "Generic Access",
	0x1801: "Generic Attribute",
	0x1802: "Immediate Alert",
	0x1803: "Link Loss",
	0x1804: "Tx Power",
	0x1805: "Current Time",
	0x180A: "Device Information",
	0x180D: "Heart Rate",
	0x180F: "Battery",
	0x1810: "Blood Pressure",
	0x1812: "Human Interface Device",
	0x1816: "Cycling Speed and Cadence",
	0x1818: "Cycling Power",
	0x1819: "Location and Navigation",
	0x181A: "Environmental Sensing",
	0x181C: "User Data",
	0x1826: "Fitness Machine",
	0xFE9F: "Google Fast Pair",
	0xFEAA: "Eddystone",
}

var characteristicNames = map[uint16]string{
	0x2A00: "Device Name",
	0x2A01: "Appearance",
	0x2A04: "Peripheral Preferred Connection Parameters",
	0x2A05: "Service Changed",
	0x2A19: "Battery Level",
	0x2A23: "System ID",
	0x2A24: "Model Number String",
	0x2A25: "Serial Number String",
	0x2A26: "Firmware Revision String",
	0x2A27: "Hardware Revision String",
	0x2A28: "Software Revision String",
	0x2A29: "Manufacturer Name String",
	0x2A2B: "Current Time",
	0x2A37: "Heart Rate Measurement",
	0x2A38: "Body Sensor Location",
	0x2A39: "Heart Rate Control Point",
	0x2A4D: "Report",
	0x2A6D: "Pressure",
	0x2A6E: "Temperature",
	0x2A6F: "Humidity",
	0x2AA6: "Central Address Resolution",
}

var descriptorNames = map[uint16]string{
	0x2900: "Characteristic Extended Properties",
	0x2901: "Characteristic User Description",
	0x2902: "Client Characteristic Configuration",
	0x2903: "Server Characteristic Configuration",
	0x2904: "Characteristic Presentation Format",
	0x2905: "Characteristic Aggregate Format",
}

// customNames covers well-known 128-bit UUIDs outside the Bluetooth
// Base range.
var customNames = map[string]string{
	"6e400001-b5a3-f393-e0a9-e50e24dcca9e": "Nordic UART Service",
	"6e400002-b5a3-f393-e0a9-e50e24dcca9e": "Nordic UART RX",
	"6e400003-b5a3-f393-e0a9-e50e24dcca9e": "Nordic UART TX",
	"8ec90001-f315-4f60-9fb8-838830daea50": "Nordic DFU Control Point",
	"d0611e78-bbb4-4591-a5f8-487910ae4366": "Apple Continuity",
}
