// Package bluez reads GATT metadata from the BlueZ object tree that
// the portable stack API does not expose: adapter power state,
// characteristic property flags and descriptor UUIDs.
package bluez

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	busName          = "org.bluez"
	adapterInterface = "org.bluez.Adapter1"
	serviceInterface = "org.bluez.GattService1"
	charInterface    = "org.bluez.GattCharacteristic1"
	descInterface    = "org.bluez.GattDescriptor1"
)

// ErrUnsupported reports that the BlueZ bus is not reachable on this
// platform.
var ErrUnsupported = errors.New("bluez: not available on this platform")

// CharacteristicInfo is one characteristic's metadata from the BlueZ
// object tree.
type CharacteristicInfo struct {
	ServiceUUID string
	UUID        string
	Flags       []string
	Descriptors []string
}

// managedObjects is the ObjectManager.GetManagedObjects result shape.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// DevicePath builds the BlueZ object path for a device address,
// e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func DevicePath(adapter, address string) string {
	return "/org/bluez/" + adapter + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_")
}

// collectCharacteristics extracts characteristic metadata under
// devicePath from a managed-object dump. BlueZ numbers attribute paths
// with fixed-width hex in discovery order, so a lexical sort of the
// paths recovers the handle order.
func collectCharacteristics(objects managedObjects, devicePath string) []CharacteristicInfo {
	prefix := devicePath + "/"

	var paths []string
	for path := range objects {
		if strings.HasPrefix(string(path), prefix) {
			paths = append(paths, string(path))
		}
	}
	sort.Strings(paths)

	serviceUUIDs := make(map[string]string) // service path -> uuid
	charIndex := make(map[string]int)       // char path -> index in out
	var out []CharacteristicInfo

	// Sorted paths visit every parent before its children.
	for _, p := range paths {
		ifaces := objects[dbus.ObjectPath(p)]
		if props, ok := ifaces[serviceInterface]; ok {
			if uuid, ok := variantString(props["UUID"]); ok {
				serviceUUIDs[p] = uuid
			}
		}
		if props, ok := ifaces[charInterface]; ok {
			if uuid, ok := variantString(props["UUID"]); ok {
				charIndex[p] = len(out)
				out = append(out, CharacteristicInfo{
					ServiceUUID: serviceUUIDs[parentPath(p)],
					UUID:        uuid,
					Flags:       variantStrings(props["Flags"]),
				})
			}
		}
		if props, ok := ifaces[descInterface]; ok {
			if uuid, ok := variantString(props["UUID"]); ok {
				if i, ok := charIndex[parentPath(p)]; ok {
					out[i].Descriptors = append(out[i].Descriptors, uuid)
				}
			}
		}
	}
	return out
}

func parentPath(p string) string {
	if i := strings.LastIndex(p, "/"); i > 0 {
		return p[:i]
	}
	return p
}

func variantString(v dbus.Variant) (string, bool) {
	s, ok := v.Value().(string)
	return s, ok
}

func variantStrings(v dbus.Variant) []string {
	s, _ := v.Value().([]string)
	return s
}
