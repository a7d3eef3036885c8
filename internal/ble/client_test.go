package ble

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

// recorder collects messages the client sends into the UI loop.
type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) snapshot() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tea.Msg, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// waitFor polls until a message matching match arrives.
func (r *recorder) waitFor(t *testing.T, what string, match func(tea.Msg) bool) tea.Msg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range r.snapshot() {
			if match(m) {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; got %#v", what, r.snapshot())
	return nil
}

type fakeChar struct {
	uuid    string
	props   Properties
	known   bool
	value   []byte
	readErr error
	subErr  error

	mu     sync.Mutex
	notify func([]byte)
}

func (f *fakeChar) UUID() string                   { return f.uuid }
func (f *fakeChar) Properties() (Properties, bool) { return f.props, f.known }
func (f *fakeChar) Descriptors() []string          { return nil }

func (f *fakeChar) Read() ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.value, nil
}

func (f *fakeChar) Subscribe(cb func([]byte)) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	f.notify = cb
	f.mu.Unlock()
	return nil
}

func (f *fakeChar) Unsubscribe() error {
	f.mu.Lock()
	f.notify = nil
	f.mu.Unlock()
	return nil
}

// push simulates a notification from the peripheral.
func (f *fakeChar) push(value []byte) {
	f.mu.Lock()
	cb := f.notify
	f.mu.Unlock()
	if cb != nil {
		cb(value)
	}
}

type fakeService struct {
	uuid  string
	chars []Characteristic
	err   error
}

func (f *fakeService) UUID() string { return f.uuid }

func (f *fakeService) Characteristics() ([]Characteristic, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chars, nil
}

type fakeConn struct {
	addr     string
	services []Service
	svcErr   error
	svcHold  chan struct{} // when non-nil, DiscoverServices blocks until closed

	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) Address() string { return f.addr }

func (f *fakeConn) DiscoverServices() ([]Service, error) {
	if f.svcHold != nil {
		<-f.svcHold
	}
	if f.svcErr != nil {
		return nil, f.svcErr
	}
	return f.services, nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeBackend struct {
	conn       *fakeConn
	connectErr error
	onDrop     func(string)
}

func (f *fakeBackend) Enable() error                 { return nil }
func (f *fakeBackend) Scan(cb func(ScanEvent)) error { return nil }
func (f *fakeBackend) StopScan() error               { return nil }

func (f *fakeBackend) Connect(ctx context.Context, address string) (Connection, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.conn, nil
}

func (f *fakeBackend) SetDisconnectHandler(cb func(string)) { f.onDrop = cb }

func newTestClient(backend *fakeBackend) (*Client, *recorder) {
	c := NewClient(backend, time.Second)
	rec := &recorder{}
	c.SetSender(rec)
	return c, rec
}

func isState(state ConnState) func(tea.Msg) bool {
	return func(m tea.Msg) bool {
		cs, ok := m.(ConnStateMsg)
		return ok && cs.State == state
	}
}

func heartRateConn() *fakeConn {
	return &fakeConn{
		addr: "AA:BB:CC:DD:EE:FF",
		services: []Service{
			&fakeService{
				uuid: "0000180d-0000-1000-8000-00805f9b34fb",
				chars: []Characteristic{
					&fakeChar{uuid: "00002a37-0000-1000-8000-00805f9b34fb", props: PropNotify, known: true},
					&fakeChar{uuid: "00002a38-0000-1000-8000-00805f9b34fb", props: PropRead, known: true, value: []byte{0x01}},
				},
			},
			&fakeService{
				uuid: "0000180f-0000-1000-8000-00805f9b34fb",
				chars: []Characteristic{
					&fakeChar{uuid: "00002a19-0000-1000-8000-00805f9b34fb", props: PropRead | PropNotify, known: true, value: []byte{0x5f}},
				},
			},
		},
	}
}

func TestConnectDiscoversServices(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)

	rec.waitFor(t, "connecting state", isState(StateConnecting))
	rec.waitFor(t, "discovering state", isState(StateDiscovering))
	rec.waitFor(t, "connected state", isState(StateConnected))

	msg := rec.waitFor(t, "services", func(m tea.Msg) bool {
		_, ok := m.(ServicesDiscoveredMsg)
		return ok
	}).(ServicesDiscoveredMsg)

	if len(msg.Services) != 2 {
		t.Fatalf("got %d services, want 2", len(msg.Services))
	}
	if msg.Services[0].UUID != "0000180d-0000-1000-8000-00805f9b34fb" {
		t.Errorf("Services[0].UUID = %q, want heart rate", msg.Services[0].UUID)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %v, want %v", c.State(), StateConnected)
	}
	if c.Address() != conn.addr {
		t.Errorf("Address() = %q, want %q", c.Address(), conn.addr)
	}
}

func TestConnectFailureReturnsToIdle(t *testing.T) {
	c, rec := newTestClient(&fakeBackend{connectErr: errors.New("page timeout")})

	c.Connect("AA:BB:CC:DD:EE:FF")

	msg := rec.waitFor(t, "connect error", func(m tea.Msg) bool {
		_, ok := m.(ConnErrorMsg)
		return ok
	}).(ConnErrorMsg)

	if msg.Err == nil {
		t.Fatal("ConnErrorMsg.Err = nil")
	}
	if c.State() != StateIdle {
		t.Errorf("State() after failure = %v, want %v", c.State(), StateIdle)
	}
}

func TestConnectWhileBusyIgnored(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	c.Connect("11:22:33:44:55:66")

	rec.waitFor(t, "connected state", isState(StateConnected))

	var connecting int
	for _, m := range rec.snapshot() {
		if cs, ok := m.(ConnStateMsg); ok && cs.State == StateConnecting {
			connecting++
		}
	}
	if connecting != 1 {
		t.Errorf("got %d connecting transitions, want 1", connecting)
	}
	if c.Address() != conn.addr {
		t.Errorf("Address() = %q, want first target %q", c.Address(), conn.addr)
	}
}

func TestDuplicateCharacteristicUUIDsAddressedByIndex(t *testing.T) {
	// Two characteristics sharing a UUID inside one service must stay
	// separately addressable.
	uuid := "00002a37-0000-1000-8000-00805f9b34fb"
	first := &fakeChar{uuid: uuid, props: PropRead, known: true, value: []byte{0x01}}
	second := &fakeChar{uuid: uuid, props: PropRead, known: true, value: []byte{0x02}}
	conn := &fakeConn{
		addr: "AA:BB:CC:DD:EE:FF",
		services: []Service{
			&fakeService{uuid: "0000180d-0000-1000-8000-00805f9b34fb", chars: []Characteristic{first, second}},
		},
	}
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))

	c.DiscoverCharacteristics(0)
	msg := rec.waitFor(t, "characteristics", func(m tea.Msg) bool {
		_, ok := m.(CharacteristicsDiscoveredMsg)
		return ok
	}).(CharacteristicsDiscoveredMsg)
	if len(msg.Chars) != 2 {
		t.Fatalf("got %d characteristics, want 2", len(msg.Chars))
	}

	c.Read(CharKey{Service: 0, Char: 1})
	val := rec.waitFor(t, "read value", func(m tea.Msg) bool {
		_, ok := m.(ValueMsg)
		return ok
	}).(ValueMsg)

	if val.Key != (CharKey{Service: 0, Char: 1}) {
		t.Errorf("ValueMsg.Key = %+v, want {0 1}", val.Key)
	}
	if len(val.Value) != 1 || val.Value[0] != 0x02 {
		t.Errorf("ValueMsg.Value = %v, want [2] (second row, not first)", val.Value)
	}
}

func TestReadUnsupportedProperty(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))
	c.DiscoverCharacteristics(0)
	rec.waitFor(t, "characteristics", func(m tea.Msg) bool {
		_, ok := m.(CharacteristicsDiscoveredMsg)
		return ok
	})

	// Service 0 char 0 is notify-only.
	c.Read(CharKey{Service: 0, Char: 0})
	msg := rec.waitFor(t, "read error", func(m tea.Msg) bool {
		vm, ok := m.(ValueMsg)
		return ok && vm.Err != nil
	}).(ValueMsg)

	if msg.Err != ErrReadNotSupported {
		t.Errorf("ValueMsg.Err = %v, want ErrReadNotSupported", msg.Err)
	}
}

func TestSubscribeDeliversNotifications(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))
	c.DiscoverCharacteristics(0)
	rec.waitFor(t, "characteristics", func(m tea.Msg) bool {
		_, ok := m.(CharacteristicsDiscoveredMsg)
		return ok
	})

	key := CharKey{Service: 0, Char: 0}
	c.Subscribe(key)
	sub := rec.waitFor(t, "subscribed", func(m tea.Msg) bool {
		_, ok := m.(SubscribedMsg)
		return ok
	}).(SubscribedMsg)
	if sub.Err != nil || !sub.Enabled {
		t.Fatalf("SubscribedMsg = %+v, want enabled with nil error", sub)
	}

	hr := conn.services[0].(*fakeService).chars[0].(*fakeChar)
	hr.push([]byte{0x00, 0x48})

	val := rec.waitFor(t, "notification", func(m tea.Msg) bool {
		vm, ok := m.(ValueMsg)
		return ok && vm.Source == SourceNotify
	}).(ValueMsg)
	if val.Key != key {
		t.Errorf("notification Key = %+v, want %+v", val.Key, key)
	}
	if len(val.Value) != 2 || val.Value[1] != 0x48 {
		t.Errorf("notification Value = %v, want [0 72]", val.Value)
	}
}

func TestSubscribeUnsupportedProperty(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))
	c.DiscoverCharacteristics(0)
	rec.waitFor(t, "characteristics", func(m tea.Msg) bool {
		_, ok := m.(CharacteristicsDiscoveredMsg)
		return ok
	})

	// Service 0 char 1 is read-only.
	c.Subscribe(CharKey{Service: 0, Char: 1})
	msg := rec.waitFor(t, "subscribe error", func(m tea.Msg) bool {
		sm, ok := m.(SubscribedMsg)
		return ok && sm.Err != nil
	}).(SubscribedMsg)

	if msg.Err != ErrNotifyNotSupported {
		t.Errorf("SubscribedMsg.Err = %v, want ErrNotifyNotSupported", msg.Err)
	}
	if msg.Enabled {
		t.Error("SubscribedMsg.Enabled = true after refused subscription")
	}
}

func TestDisconnectResetsAndDropsLateNotifications(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))
	c.DiscoverCharacteristics(0)
	rec.waitFor(t, "characteristics", func(m tea.Msg) bool {
		_, ok := m.(CharacteristicsDiscoveredMsg)
		return ok
	})
	c.Subscribe(CharKey{Service: 0, Char: 0})
	rec.waitFor(t, "subscribed", func(m tea.Msg) bool {
		sm, ok := m.(SubscribedMsg)
		return ok && sm.Enabled
	})

	c.Disconnect()
	done := rec.waitFor(t, "disconnected", func(m tea.Msg) bool {
		_, ok := m.(DisconnectedMsg)
		return ok
	}).(DisconnectedMsg)
	if done.Err != nil {
		t.Errorf("DisconnectedMsg.Err = %v, want nil for requested disconnect", done.Err)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %v, want %v", c.State(), StateIdle)
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Error("backend connection not released")
	}

	// A notification firing after teardown must not surface.
	before := len(rec.snapshot())
	hr := conn.services[0].(*fakeService).chars[0].(*fakeChar)
	hr.push([]byte{0x00, 0x50})
	time.Sleep(50 * time.Millisecond)
	for _, m := range rec.snapshot()[before:] {
		if vm, ok := m.(ValueMsg); ok && vm.Source == SourceNotify {
			t.Errorf("stale notification surfaced after disconnect: %+v", vm)
		}
	}
}

func TestUnsolicitedDropWinsOverDiscovery(t *testing.T) {
	conn := heartRateConn()
	conn.svcHold = make(chan struct{})
	backend := &fakeBackend{conn: conn}
	c, rec := newTestClient(backend)

	c.Connect(conn.addr)
	rec.waitFor(t, "discovering state", isState(StateDiscovering))

	// The link drops while service discovery is in flight.
	backend.onDrop(conn.addr)
	drop := rec.waitFor(t, "disconnected", func(m tea.Msg) bool {
		_, ok := m.(DisconnectedMsg)
		return ok
	}).(DisconnectedMsg)
	if drop.Err == nil {
		t.Error("DisconnectedMsg.Err = nil, want connection lost")
	}

	// Let the stalled discovery finish; its results must be discarded.
	close(conn.svcHold)
	time.Sleep(50 * time.Millisecond)
	for _, m := range rec.snapshot() {
		if _, ok := m.(ServicesDiscoveredMsg); ok {
			t.Error("ServicesDiscoveredMsg surfaced after the connection dropped")
		}
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %v, want %v", c.State(), StateIdle)
	}
}

func TestReconnectBumpsGeneration(t *testing.T) {
	conn := heartRateConn()
	c, rec := newTestClient(&fakeBackend{conn: conn})

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))
	first := c.Gen()

	c.Disconnect()
	rec.waitFor(t, "disconnected", func(m tea.Msg) bool {
		_, ok := m.(DisconnectedMsg)
		return ok
	})

	c.Connect(conn.addr)
	rec.waitFor(t, "reconnected", func(m tea.Msg) bool {
		cs, ok := m.(ConnStateMsg)
		return ok && cs.State == StateConnected && cs.Gen > first
	})
	if c.Gen() <= first {
		t.Errorf("Gen() = %d after reconnect, want > %d", c.Gen(), first)
	}
}

func TestDropForOtherAddressIgnored(t *testing.T) {
	conn := heartRateConn()
	backend := &fakeBackend{conn: conn}
	c, rec := newTestClient(backend)

	c.Connect(conn.addr)
	rec.waitFor(t, "connected state", isState(StateConnected))

	backend.onDrop("11:22:33:44:55:66")
	time.Sleep(50 * time.Millisecond)

	if c.State() != StateConnected {
		t.Errorf("State() = %v after unrelated drop, want %v", c.State(), StateConnected)
	}
	for _, m := range rec.snapshot() {
		if _, ok := m.(DisconnectedMsg); ok {
			t.Error("DisconnectedMsg surfaced for an unrelated address")
		}
	}
}
