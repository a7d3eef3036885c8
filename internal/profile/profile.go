// Package profile holds serializable snapshots of an explored GATT
// tree. The cache and the export command work on these; live explorer
// state stays in the app model.
package profile

import (
	"encoding/hex"
	"time"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/uuids"
)

// Profile is one peripheral's discovered tree plus whatever values were
// captured while connected.
type Profile struct {
	Address      string    `json:"address"`
	Name         string    `json:"name,omitempty"`
	Company      string    `json:"company,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Services     []Service `json:"services"`
}

type Service struct {
	UUID            string           `json:"uuid"`
	Name            string           `json:"name,omitempty"`
	Characteristics []Characteristic `json:"characteristics"`
}

type Characteristic struct {
	UUID        string       `json:"uuid"`
	Name        string       `json:"name,omitempty"`
	Properties  string       `json:"properties,omitempty"`
	Descriptors []Descriptor `json:"descriptors,omitempty"`
	Value       *Value       `json:"value,omitempty"`
}

type Descriptor struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// Value is a captured characteristic value. Hex and ASCII hold at most
// the configured preview length; Truncated marks a longer original.
type Value struct {
	Hex       string    `json:"hex"`
	ASCII     string    `json:"ascii,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// NewValue captures data for a snapshot, truncated to previewBytes.
func NewValue(data []byte, source ble.ValueSource, at time.Time, previewBytes int) *Value {
	truncated := false
	if previewBytes > 0 && len(data) > previewBytes {
		data = data[:previewBytes]
		truncated = true
	}
	return &Value{
		Hex:       hex.EncodeToString(data),
		ASCII:     printable(data),
		Truncated: truncated,
		Source:    sourceName(source),
		At:        at,
	}
}

// Build assembles a snapshot from the explorer's discovered tree.
// chars is keyed by service index; values may omit characteristics
// that were never read or notified.
func Build(address, name, company string, services []ble.ServiceInfo, chars map[int][]ble.CharInfo, values map[ble.CharKey]*Value) Profile {
	p := Profile{
		Address:      address,
		Name:         name,
		Company:      company,
		DiscoveredAt: time.Now(),
		Services:     make([]Service, 0, len(services)),
	}
	for si, svc := range services {
		s := Service{
			UUID: svc.UUID,
			Name: uuids.Name(svc.UUID),
		}
		for ci, ch := range chars[si] {
			c := Characteristic{
				UUID:  ch.UUID,
				Name:  uuids.Name(ch.UUID),
				Value: values[ble.CharKey{Service: si, Char: ci}],
			}
			if ch.PropsKnown {
				c.Properties = ch.Props.String()
			}
			for _, d := range ch.Descriptors {
				c.Descriptors = append(c.Descriptors, Descriptor{UUID: d, Name: uuids.Name(d)})
			}
			s.Characteristics = append(s.Characteristics, c)
		}
		p.Services = append(p.Services, s)
	}
	return p
}

func sourceName(s ble.ValueSource) string {
	if s == ble.SourceNotify {
		return "notify"
	}
	return "read"
}

func printable(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b <= 0x7e {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
