package bluez

import (
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// AdapterPowered reports whether the adapter radio is on.
func AdapterPowered(adapter string) (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, errors.Wrap(err, "system bus")
	}
	obj := conn.Object(busName, dbus.ObjectPath("/org/bluez/"+adapter))
	var powered bool
	err = obj.Call("org.freedesktop.DBus.Properties.Get", 0, adapterInterface, "Powered").Store(&powered)
	if err != nil {
		return false, errors.Wrapf(err, "read Powered on %s", adapter)
	}
	return powered, nil
}

// DeviceCharacteristics walks the managed-object tree for the device
// at address. The device must be connected with services resolved or
// the result is empty.
func DeviceCharacteristics(adapter, address string) ([]CharacteristicInfo, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "system bus")
	}
	var objects managedObjects
	obj := conn.Object(busName, "/")
	err = obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return nil, errors.Wrap(err, "get managed objects")
	}
	return collectCharacteristics(objects, DevicePath(adapter, address)), nil
}
