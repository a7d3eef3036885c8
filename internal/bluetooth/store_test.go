package bluetooth

import (
	"testing"
	"time"
)

func TestUpsertNewDevice(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", Name: "Thingy:52", RSSI: -60, Type: DeviceTypeBLE})

	d, ok := s.Get("AA:BB:CC:DD:EE:FF")
	if !ok {
		t.Fatal("device missing after Upsert")
	}
	if d.Name != "Thingy:52" {
		t.Errorf("Name = %q, want %q", d.Name, "Thingy:52")
	}
	if d.RSSI != -60 {
		t.Errorf("RSSI = %v, want -60", d.RSSI)
	}
	if d.Distance <= 0 {
		t.Errorf("Distance = %v, want a positive estimate", d.Distance)
	}
}

func TestUpsertSmoothsRSSI(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -60})
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -80})

	d, _ := s.Get("AA:BB:CC:DD:EE:FF")
	// EMA keeps the reading between the two samples, closer to the old
	// value for a small alpha.
	if d.RSSI <= -80 || d.RSSI >= -60 {
		t.Errorf("RSSI = %v after smoothing, want between -80 and -60", d.RSSI)
	}
}

func TestUpsertKeepsKnownName(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", Name: "Polar H10", RSSI: -55})
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", Name: "", RSSI: -58})

	d, _ := s.Get("AA:BB:CC:DD:EE:FF")
	if d.Name != "Polar H10" {
		t.Errorf("Name = %q after empty advertisement, want %q", d.Name, "Polar H10")
	}
}

func TestUpsertNameOnly(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -55})
	before, _ := s.Get("AA:BB:CC:DD:EE:FF")

	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", Name: "JBL Flip 6", RSSI: -100, NameOnly: true})

	d, _ := s.Get("AA:BB:CC:DD:EE:FF")
	if d.Name != "JBL Flip 6" {
		t.Errorf("Name = %q, want %q", d.Name, "JBL Flip 6")
	}
	if d.RSSI != before.RSSI {
		t.Errorf("RSSI = %v changed by a name-only update, want %v", d.RSSI, before.RSSI)
	}

	// A name-only report must never create a device.
	s.Upsert(DeviceDiscoveredMsg{MAC: "11:22:33:44:55:66", Name: "Ghost", NameOnly: true})
	if _, ok := s.Get("11:22:33:44:55:66"); ok {
		t.Error("name-only update created a device")
	}
}

func TestUpsertAccumulatesServiceUUIDs(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -55, ServiceUUIDs: []string{"0000180D-0000-1000-8000-00805F9B34FB"}})
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -56, ServiceUUIDs: []string{"0000180f-0000-1000-8000-00805f9b34fb", "0000180d-0000-1000-8000-00805f9b34fb"}})

	d, _ := s.Get("AA:BB:CC:DD:EE:FF")
	if len(d.ServiceUUIDs) != 2 {
		t.Errorf("ServiceUUIDs = %v, want the two distinct UUIDs once each", d.ServiceUUIDs)
	}
}

func TestEvictKeepsConnectedDevice(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -55})
	s.Upsert(DeviceDiscoveredMsg{MAC: "11:22:33:44:55:66", RSSI: -70})

	// Everything is now "stale" for a zero timeout, but the connected
	// peripheral must survive.
	time.Sleep(5 * time.Millisecond)
	evicted := s.Evict(time.Nanosecond, "AA:BB:CC:DD:EE:FF")

	if evicted != 1 {
		t.Errorf("Evict removed %d devices, want 1", evicted)
	}
	if _, ok := s.Get("AA:BB:CC:DD:EE:FF"); !ok {
		t.Error("connected device was evicted")
	}
	if _, ok := s.Get("11:22:33:44:55:66"); ok {
		t.Error("stale device survived eviction")
	}
}

func TestSnapshotSortsByRSSI(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "11:11:11:11:11:11", RSSI: -80})
	s.Upsert(DeviceDiscoveredMsg{MAC: "22:22:22:22:22:22", RSSI: -40})
	s.Upsert(DeviceDiscoveredMsg{MAC: "33:33:33:33:33:33", RSSI: -60})

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot len = %d, want 3", len(snap))
	}
	if snap[0].MAC != "22:22:22:22:22:22" || snap[2].MAC != "11:11:11:11:11:11" {
		t.Errorf("Snapshot order = [%s %s %s], want strongest first",
			snap[0].MAC, snap[1].MAC, snap[2].MAC)
	}
}

func TestCountByType(t *testing.T) {
	s := NewDeviceStore()
	s.Upsert(DeviceDiscoveredMsg{MAC: "11:11:11:11:11:11", RSSI: -80, Type: DeviceTypeBLE})
	s.Upsert(DeviceDiscoveredMsg{MAC: "22:22:22:22:22:22", RSSI: -40, Type: DeviceTypeClassic})
	s.Upsert(DeviceDiscoveredMsg{MAC: "33:33:33:33:33:33", RSSI: -60, Type: DeviceTypeBLE})

	ble, classic := s.CountByType()
	if ble != 2 || classic != 1 {
		t.Errorf("CountByType = (%d, %d), want (2, 1)", ble, classic)
	}
}
