package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"gattscope.dev/internal/bluez"
	"gattscope.dev/internal/logging"
)

// TinygoBackend drives real hardware through tinygo.org/x/bluetooth
// (BlueZ on Linux, CoreBluetooth on macOS, WinRT on Windows).
type TinygoBackend struct {
	adapter     *bluetooth.Adapter
	adapterName string
	log         *logrus.Entry

	mu       sync.Mutex
	onDrop   func(string)
	scanning bool
}

// Compile-time check that TinygoBackend implements Backend.
var _ Backend = (*TinygoBackend)(nil)

// NewTinygoBackend wraps the default adapter. adapterName ("hci0") is
// only used for the Linux D-Bus metadata walk.
func NewTinygoBackend(adapterName string) *TinygoBackend {
	return &TinygoBackend{
		adapter:     bluetooth.DefaultAdapter,
		adapterName: adapterName,
		log:         logging.Component("backend"),
	}
}

func (b *TinygoBackend) Enable() error {
	if err := b.adapter.Enable(); err != nil {
		return errors.Wrap(err, "enable adapter")
	}

	// The stack fires this with connected=false when a peripheral
	// drops the link without being asked.
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		b.log.WithField("address", addr).Debug("link down")
		b.mu.Lock()
		cb := b.onDrop
		b.mu.Unlock()
		if cb != nil {
			cb(addr)
		}
	})
	return nil
}

func (b *TinygoBackend) SetDisconnectHandler(cb func(string)) {
	b.mu.Lock()
	b.onDrop = cb
	b.mu.Unlock()
}

func (b *TinygoBackend) Scan(cb func(ScanEvent)) error {
	b.mu.Lock()
	b.scanning = true
	b.mu.Unlock()

	return b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		b.mu.Lock()
		active := b.scanning
		b.mu.Unlock()
		if !active {
			return
		}
		cb(scanEvent(result))
	})
}

func (b *TinygoBackend) StopScan() error {
	b.mu.Lock()
	b.scanning = false
	b.mu.Unlock()
	return b.adapter.StopScan()
}

func scanEvent(result bluetooth.ScanResult) ScanEvent {
	ev := ScanEvent{
		Address: result.Address.String(),
		Name:    result.LocalName(),
		RSSI:    result.RSSI,
	}
	for _, m := range result.ManufacturerData() {
		ev.CompanyIDs = append(ev.CompanyIDs, m.CompanyID)
	}
	for _, s := range result.ServiceData() {
		ev.ServiceUUIDs = append(ev.ServiceUUIDs, s.UUID.String())
	}
	return ev
}

func (b *TinygoBackend) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	// The stack's Connect blocks with its own timeout. Wrap it so ctx
	// expiry returns promptly even though the dial itself cannot be
	// aborted from here.
	type dialResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		device, err := b.adapter.Connect(addr, params)
		ch <- dialResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "connect %s", address)
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "connect %s", address)
		}
		return &tinygoConnection{backend: b, device: r.device, address: address}, nil
	}
}

type tinygoConnection struct {
	backend *TinygoBackend
	device  bluetooth.Device
	address string

	decorOnce sync.Once
	decor     map[decorKey]bluez.CharacteristicInfo
}

type decorKey struct {
	service string
	char    string
}

func (c *tinygoConnection) Address() string { return c.address }

func (c *tinygoConnection) DiscoverServices() ([]Service, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, errors.Wrap(err, "discover services")
	}
	out := make([]Service, len(svcs))
	for i := range svcs {
		out[i] = &tinygoService{conn: c, svc: svcs[i]}
	}
	return out, nil
}

func (c *tinygoConnection) Disconnect() error {
	return c.device.Disconnect()
}

// loadDecorations pulls characteristic flags and descriptor UUIDs from
// BlueZ. Best effort: on other platforms or bus errors the
// characteristics stay undecorated and properties render as unknown.
func (c *tinygoConnection) loadDecorations() {
	c.decorOnce.Do(func() {
		infos, err := bluez.DeviceCharacteristics(c.backend.adapterName, c.address)
		if err != nil {
			c.backend.log.WithError(err).Debug("characteristic metadata unavailable")
			return
		}
		c.decor = make(map[decorKey]bluez.CharacteristicInfo, len(infos))
		for _, info := range infos {
			key := decorKey{strings.ToLower(info.ServiceUUID), strings.ToLower(info.UUID)}
			c.decor[key] = info
		}
	})
}

func (c *tinygoConnection) decoration(serviceUUID, charUUID string) (bluez.CharacteristicInfo, bool) {
	info, ok := c.decor[decorKey{strings.ToLower(serviceUUID), strings.ToLower(charUUID)}]
	return info, ok
}

type tinygoService struct {
	conn *tinygoConnection
	svc  bluetooth.DeviceService
}

func (s *tinygoService) UUID() string { return s.svc.UUID().String() }

func (s *tinygoService) Characteristics() ([]Characteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, errors.Wrap(err, "discover characteristics")
	}

	s.conn.loadDecorations()
	out := make([]Characteristic, len(chars))
	for i := range chars {
		tc := &tinygoCharacteristic{char: chars[i]}
		if info, ok := s.conn.decoration(s.UUID(), tc.UUID()); ok {
			tc.props = ParseBlueZFlags(info.Flags)
			tc.propsKnown = true
			tc.descriptors = info.Descriptors
		}
		out[i] = tc
	}
	return out, nil
}

type tinygoCharacteristic struct {
	char        bluetooth.DeviceCharacteristic
	props       Properties
	propsKnown  bool
	descriptors []string
}

func (c *tinygoCharacteristic) UUID() string                   { return c.char.UUID().String() }
func (c *tinygoCharacteristic) Properties() (Properties, bool) { return c.props, c.propsKnown }
func (c *tinygoCharacteristic) Descriptors() []string          { return c.descriptors }

func (c *tinygoCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, readBufSize)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *tinygoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The stack may reuse buf; hand the consumer its own copy.
		value := make([]byte, len(buf))
		copy(value, buf)
		cb(value)
	})
}

func (c *tinygoCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
