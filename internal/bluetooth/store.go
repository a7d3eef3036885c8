package bluetooth

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gattscope.dev/internal/config"
)

// DeviceStore is a thread-safe store for discovered devices.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewDeviceStore creates a new empty DeviceStore.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		devices: make(map[string]*Device),
	}
}

// Upsert adds or updates a device from one advertisement report. RSSI
// on an existing device is smoothed with EMA; a later empty name never
// erases a known one; advertised service UUIDs accumulate across
// reports (advertising data and scan responses carry different AD
// structures).
func (s *DeviceStore) Upsert(msg DeviceDiscoveredMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Late name resolutions update the name alone; they carry no
	// fresh advertisement, so RSSI and LastSeen stay put.
	if msg.NameOnly {
		if existing, ok := s.devices[msg.MAC]; ok && msg.Name != "" {
			existing.Name = msg.Name
		}
		return
	}

	now := time.Now()
	rssi := float64(msg.RSSI)

	if existing, ok := s.devices[msg.MAC]; ok {
		existing.RSSI = existing.RSSI*(1-config.SmoothingAlpha) + rssi*config.SmoothingAlpha
		existing.Distance = RSSIToDistance(existing.RSSI, config.MeasuredPower, config.PathLossExp)
		existing.LastSeen = now
		if msg.Name != "" {
			existing.Name = msg.Name
		}
		if msg.HasCompany {
			existing.CompanyID = msg.CompanyID
			existing.HasCompany = true
		}
		existing.ServiceUUIDs = mergeUUIDs(existing.ServiceUUIDs, msg.ServiceUUIDs)
		return
	}

	s.devices[msg.MAC] = &Device{
		MAC:          msg.MAC,
		Name:         msg.Name,
		RSSI:         rssi,
		Type:         msg.Type,
		LastSeen:     now,
		Distance:     RSSIToDistance(rssi, config.MeasuredPower, config.PathLossExp),
		CompanyID:    msg.CompanyID,
		HasCompany:   msg.HasCompany,
		ServiceUUIDs: mergeUUIDs(nil, msg.ServiceUUIDs),
	}
}

// Get returns a copy of the device at mac.
func (s *DeviceStore) Get(mac string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[mac]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Evict removes devices not seen within the timeout duration. The
// device at keep (the connected peripheral) is never evicted. Returns
// the number of evicted devices.
func (s *DeviceStore) Evict(timeout time.Duration, keep string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	count := 0
	for mac, dev := range s.devices {
		if mac == keep {
			continue
		}
		if dev.LastSeen.Before(cutoff) {
			delete(s.devices, mac)
			count++
		}
	}
	return count
}

// Snapshot returns a sorted copy of all devices (strongest RSSI first).
func (s *DeviceStore) Snapshot() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		// Copy device to avoid data races
		cp := *d
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RSSI > result[j].RSSI // Strongest first (less negative)
	})
	return result
}

// Count returns the total number of tracked devices.
func (s *DeviceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// CountByType returns counts broken down by device type.
func (s *DeviceStore) CountByType() (ble, classic int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.Type == DeviceTypeClassic {
			classic++
		} else {
			ble++
		}
	}
	return
}

func mergeUUIDs(have, add []string) []string {
	if len(add) == 0 {
		return have
	}
	seen := make(map[string]bool, len(have))
	for _, u := range have {
		seen[u] = true
	}
	for _, u := range add {
		u = strings.ToLower(u)
		if !seen[u] {
			have = append(have, u)
			seen[u] = true
		}
	}
	return have
}
