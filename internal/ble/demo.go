package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// charSpec describes one characteristic of a demo peripheral. read is
// called with the backend uptime in seconds so values move over time.
type charSpec struct {
	uuid        string
	props       Properties
	descriptors []string
	read        func(t float64) []byte
	notifyEvery time.Duration
}

type svcSpec struct {
	uuid  string
	chars []charSpec
}

type demoPeripheral struct {
	mac        string
	name       string
	companyIDs []uint16
	advertised []string // service UUIDs carried in the advertisement
	baseRSSI   float64
	phase      float64
	amplitude  float64
	active     bool
	services   []svcSpec
}

// DemoBackend is a fake world for --demo: a handful of peripherals
// with coherent GATT trees, moving values and notification pumps. It
// touches no hardware and no system bus.
type DemoBackend struct {
	start       time.Time
	peripherals []*demoPeripheral

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	onDrop  func(string)
}

// Compile-time check that DemoBackend implements Backend.
var _ Backend = (*DemoBackend)(nil)

// NewDemoBackend builds the demo world.
func NewDemoBackend() *DemoBackend {
	return &DemoBackend{
		start:       time.Now(),
		peripherals: demoWorld(),
	}
}

func (b *DemoBackend) Enable() error { return nil }

// SetDisconnectHandler stores cb for interface parity; demo links
// never drop on their own.
func (b *DemoBackend) SetDisconnectHandler(cb func(string)) {
	b.mu.Lock()
	b.onDrop = cb
	b.mu.Unlock()
}

func (b *DemoBackend) elapsed() float64 {
	return time.Since(b.start).Seconds()
}

func (b *DemoBackend) Scan(cb func(ScanEvent)) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("scan already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.running = true
	b.cancel = cancel
	b.mu.Unlock()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.emit(cb)
		}
	}
}

func (b *DemoBackend) StopScan() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	return nil
}

func (b *DemoBackend) emit(cb func(ScanEvent)) {
	t := b.elapsed()
	for _, p := range b.peripherals {
		// Randomly toggle device visibility (appear/disappear)
		if rand.Float64() < 0.005 {
			p.active = !p.active
		}
		if !p.active {
			continue
		}

		// Sinusoidal RSSI fluctuation + noise
		rssi := p.baseRSSI + p.amplitude*math.Sin(t*0.5+p.phase) + (rand.Float64()-0.5)*4

		name := p.name
		// Some advertisements omit the name (realistic)
		if rand.Float64() < 0.05 {
			name = ""
		}

		cb(ScanEvent{
			Address:      p.mac,
			Name:         name,
			RSSI:         int16(rssi),
			CompanyIDs:   p.companyIDs,
			ServiceUUIDs: p.advertised,
		})
	}
}

func (b *DemoBackend) find(address string) *demoPeripheral {
	for _, p := range b.peripherals {
		if p.mac == address {
			return p
		}
	}
	return nil
}

func (b *DemoBackend) Connect(ctx context.Context, address string) (Connection, error) {
	p := b.find(address)
	if p == nil {
		return nil, errors.Errorf("no peripheral at %s", address)
	}
	// Simulated radio latency.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(300 * time.Millisecond):
	}
	return &demoConnection{backend: b, p: p}, nil
}

type demoConnection struct {
	backend *DemoBackend
	p       *demoPeripheral

	mu    sync.Mutex
	chars []*demoChar
}

func (c *demoConnection) Address() string { return c.p.mac }

func (c *demoConnection) DiscoverServices() ([]Service, error) {
	time.Sleep(150 * time.Millisecond)
	out := make([]Service, len(c.p.services))
	for i := range c.p.services {
		out[i] = &demoService{conn: c, spec: c.p.services[i]}
	}
	return out, nil
}

func (c *demoConnection) Disconnect() error {
	c.mu.Lock()
	chars := c.chars
	c.chars = nil
	c.mu.Unlock()
	for _, ch := range chars {
		_ = ch.Unsubscribe()
	}
	return nil
}

func (c *demoConnection) register(ch *demoChar) {
	c.mu.Lock()
	c.chars = append(c.chars, ch)
	c.mu.Unlock()
}

type demoService struct {
	conn *demoConnection
	spec svcSpec
}

func (s *demoService) UUID() string { return s.spec.uuid }

func (s *demoService) Characteristics() ([]Characteristic, error) {
	time.Sleep(80 * time.Millisecond)
	out := make([]Characteristic, len(s.spec.chars))
	for i := range s.spec.chars {
		ch := &demoChar{backend: s.conn.backend, spec: s.spec.chars[i]}
		s.conn.register(ch)
		out[i] = ch
	}
	return out, nil
}

type demoChar struct {
	backend *DemoBackend
	spec    charSpec

	mu   sync.Mutex
	stop context.CancelFunc
}

func (c *demoChar) UUID() string                   { return c.spec.uuid }
func (c *demoChar) Properties() (Properties, bool) { return c.spec.props, true }
func (c *demoChar) Descriptors() []string          { return c.spec.descriptors }

func (c *demoChar) Read() ([]byte, error) {
	if !c.spec.props.CanRead() || c.spec.read == nil {
		return nil, ErrReadNotSupported
	}
	return c.spec.read(c.backend.elapsed()), nil
}

func (c *demoChar) Subscribe(cb func([]byte)) error {
	if !c.spec.props.CanNotify() {
		return ErrNotifyNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel

	interval := c.spec.notifyEvery
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.spec.read != nil {
					cb(c.spec.read(c.backend.elapsed()))
				}
			}
		}
	}()
	return nil
}

func (c *demoChar) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	return nil
}

// UUID shorthand for the demo trees.
func sig(id string) string {
	return "0000" + id + "-0000-1000-8000-00805f9b34fb"
}

const cccd = "00002902-0000-1000-8000-00805f9b34fb"

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func staticValue(b []byte) func(float64) []byte {
	return func(float64) []byte { return b }
}

func genericAccess(name string, appearance uint16) svcSpec {
	return svcSpec{
		uuid: sig("1800"),
		chars: []charSpec{
			{uuid: sig("2a00"), props: PropRead, read: staticValue([]byte(name))},
			{uuid: sig("2a01"), props: PropRead, read: staticValue(le16(appearance))},
		},
	}
}

func deviceInformation(maker, model, firmware string) svcSpec {
	return svcSpec{
		uuid: sig("180a"),
		chars: []charSpec{
			{uuid: sig("2a29"), props: PropRead, read: staticValue([]byte(maker))},
			{uuid: sig("2a24"), props: PropRead, read: staticValue([]byte(model))},
			{uuid: sig("2a26"), props: PropRead, read: staticValue([]byte(firmware))},
		},
	}
}

func batteryService(initial float64) svcSpec {
	level := func(t float64) []byte {
		l := initial - t/90 // slow drain while the demo runs
		if l < 5 {
			l = 5
		}
		return []byte{byte(l)}
	}
	return svcSpec{
		uuid: sig("180f"),
		chars: []charSpec{
			{
				uuid:        sig("2a19"),
				props:       PropRead | PropNotify,
				descriptors: []string{cccd},
				read:        level,
				notifyEvery: 3 * time.Second,
			},
		},
	}
}

func heartRateService() svcSpec {
	measurement := func(t float64) []byte {
		bpm := 72 + 14*math.Sin(t/5) + (rand.Float64()-0.5)*3
		// Flags 0x00: uint8 heart rate, no RR intervals.
		return []byte{0x00, byte(bpm)}
	}
	return svcSpec{
		uuid: sig("180d"),
		chars: []charSpec{
			{
				uuid:        sig("2a37"),
				props:       PropNotify,
				descriptors: []string{cccd},
				read:        measurement,
				notifyEvery: time.Second,
			},
			// 0x01: chest
			{uuid: sig("2a38"), props: PropRead, read: staticValue([]byte{0x01})},
		},
	}
}

func environmentalService() svcSpec {
	temperature := func(t float64) []byte {
		c := 2150 + 180*math.Sin(t/30) // hundredths of a degree
		return le16(uint16(int16(c)))
	}
	humidity := func(t float64) []byte {
		h := 4800 + 600*math.Sin(t/45+1) // hundredths of a percent
		return le16(uint16(h))
	}
	pressure := func(t float64) []byte {
		p := 1013250 + 800*math.Sin(t/60) // tenths of a pascal
		return le32(uint32(p))
	}
	return svcSpec{
		uuid: sig("181a"),
		chars: []charSpec{
			{uuid: sig("2a6e"), props: PropRead | PropNotify, descriptors: []string{cccd}, read: temperature, notifyEvery: 2 * time.Second},
			{uuid: sig("2a6f"), props: PropRead | PropNotify, descriptors: []string{cccd}, read: humidity, notifyEvery: 2 * time.Second},
			{uuid: sig("2a6d"), props: PropRead, read: pressure},
		},
	}
}

func uartService() svcSpec {
	tx := func(t float64) []byte {
		return []byte(fmt.Sprintf("uptime %ds\r\n", int(t)))
	}
	return svcSpec{
		uuid: "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		chars: []charSpec{
			{uuid: "6e400002-b5a3-f393-e0a9-e50e24dcca9e", props: PropWrite | PropWriteWithoutResponse},
			{
				uuid:        "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
				props:       PropNotify,
				descriptors: []string{cccd},
				read:        tx,
				notifyEvery: 1500 * time.Millisecond,
			},
		},
	}
}

func demoWorld() []*demoPeripheral {
	peripherals := []*demoPeripheral{
		{
			name:       "Polar H10",
			companyIDs: []uint16{0x006B}, // Polar Electro
			advertised: []string{sig("180d")},
			services: []svcSpec{
				genericAccess("Polar H10", 0x0341),
				deviceInformation("Polar Electro Oy", "H10", "3.3.1"),
				heartRateService(),
				batteryService(84),
			},
		},
		{
			name:       "Thingy:52",
			companyIDs: []uint16{0x0059}, // Nordic Semiconductor
			advertised: []string{sig("181a")},
			services: []svcSpec{
				genericAccess("Thingy:52", 0x0200),
				deviceInformation("Nordic Semiconductor", "Thingy:52", "2.2.0"),
				environmentalService(),
				batteryService(67),
			},
		},
		{
			name:       "Flipper Zero",
			companyIDs: []uint16{0x0059},
			services: []svcSpec{
				genericAccess("Flipper Zero", 0x0000),
				deviceInformation("Flipper Devices", "FZ.1", "0.98.3"),
				uartService(),
				batteryService(91),
			},
		},
		{
			name:       "AirPods Pro",
			companyIDs: []uint16{0x004C}, // Apple
			services: []svcSpec{
				genericAccess("AirPods Pro", 0x0941),
				deviceInformation("Apple Inc.", "A2084", "6A305"),
				batteryService(55),
			},
		},
		{
			name:       "Pixel 9 Pro",
			companyIDs: []uint16{0x00E0}, // Google
			services: []svcSpec{
				genericAccess("Pixel 9 Pro", 0x0040),
				deviceInformation("Google", "GC15S", "AP4A.250205.002"),
				batteryService(78),
			},
		},
		{
			name:       "Galaxy Buds3 Pro",
			companyIDs: []uint16{0x0075}, // Samsung
			services: []svcSpec{
				genericAccess("Galaxy Buds3 Pro", 0x0941),
				deviceInformation("Samsung", "SM-R630", "R630XXU0AXH7"),
				batteryService(62),
			},
		},
		{
			// Advertises without a name; the manufacturer fallback
			// has to carry the device list entry.
			name:       "",
			companyIDs: []uint16{0x004C},
			services: []svcSpec{
				genericAccess("Tracker", 0x0200),
				batteryService(33),
			},
		},
	}

	for _, p := range peripherals {
		p.mac = randomMAC()
		p.baseRSSI = -40 - rand.Float64()*45 // -40 to -85 dBm
		p.phase = rand.Float64() * 2 * math.Pi
		p.amplitude = 3 + rand.Float64()*8 // 3-11 dBm fluctuation
		p.active = true
	}
	return peripherals
}

func randomMAC() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(rand.Intn(256))
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
