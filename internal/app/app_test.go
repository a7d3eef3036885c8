package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/bluetooth"
	"gattscope.dev/internal/config"
	"gattscope.dev/internal/profile"
)

const testMAC = "AA:BB:CC:DD:EE:FF"

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Enabled = false
	backend := ble.NewDemoBackend()
	client := ble.NewClient(backend, time.Second)
	m := New(cfg, backend, client, nil, true)
	m.width = 100
	m.height = 30
	return m
}

func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return out
}

func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	return apply(t, m, msg)
}

func advert(mac, name string, rssi int16) bluetooth.DeviceDiscoveredMsg {
	return bluetooth.DeviceDiscoveredMsg{
		MAC:  mac,
		Name: name,
		RSSI: rssi,
		Type: bluetooth.DeviceTypeBLE,
	}
}

// explorerModel walks a model through a full connect and discovery
// exchange: one device, two services, two characteristics on the
// first service.
func explorerModel(t *testing.T) Model {
	t.Helper()
	m := newTestModel(t)
	m = apply(t, m, advert(testMAC, "Polar H10", -58))
	m = apply(t, m, TickMsg(time.Now()))
	m = apply(t, m, ble.ConnStateMsg{Gen: 1, Address: testMAC, State: ble.StateConnecting})
	m = apply(t, m, ble.ConnStateMsg{Gen: 1, Address: testMAC, State: ble.StateDiscovering})
	m = apply(t, m, ble.ServicesDiscoveredMsg{Gen: 1, Address: testMAC, Services: []ble.ServiceInfo{
		{UUID: "0000180d-0000-1000-8000-00805f9b34fb"},
		{UUID: "0000180f-0000-1000-8000-00805f9b34fb"},
	}})
	m = apply(t, m, ble.CharacteristicsDiscoveredMsg{Gen: 1, Service: 0, Chars: []ble.CharInfo{
		{UUID: "00002a37-0000-1000-8000-00805f9b34fb", Props: ble.PropNotify, PropsKnown: true},
		{UUID: "00002a38-0000-1000-8000-00805f9b34fb", Props: ble.PropRead, PropsKnown: true},
	}})
	return m
}

func TestDiscoveredDeviceAppearsOnTick(t *testing.T) {
	m := newTestModel(t)

	m = apply(t, m, advert(testMAC, "Polar H10", -58))
	if len(m.devices) != 0 {
		t.Fatalf("devices visible before tick: %d", len(m.devices))
	}

	m = apply(t, m, TickMsg(time.Now()))
	if len(m.devices) != 1 {
		t.Fatalf("devices after tick = %d, want 1", len(m.devices))
	}
	if m.devices[0].Name != "Polar H10" {
		t.Errorf("device name = %q, want %q", m.devices[0].Name, "Polar H10")
	}
}

func TestPausedScanIgnoresAdverts(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "p")
	if m.scanning {
		t.Fatal("still scanning after p")
	}

	m = apply(t, m, advert(testMAC, "Polar H10", -58))
	m = apply(t, m, TickMsg(time.Now()))
	if len(m.devices) != 0 {
		t.Errorf("paused scan accepted an advert: %d devices", len(m.devices))
	}
}

func TestNameResolutionAppliesWhilePaused(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, advert(testMAC, "", -58))
	m = press(t, m, "p")

	// A late name lookup still lands on the existing entry.
	m = apply(t, m, bluetooth.DeviceDiscoveredMsg{MAC: testMAC, Name: "JBL Flip", NameOnly: true})
	m = apply(t, m, TickMsg(time.Now()))

	if len(m.devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(m.devices))
	}
	if m.devices[0].Name != "JBL Flip" {
		t.Errorf("device name = %q, want %q", m.devices[0].Name, "JBL Flip")
	}
}

func TestScanFailureOpensOverlay(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, bluetooth.ScanStoppedMsg{
		Err:    ble.ErrPoweredOff,
		Advice: "Bluetooth is powered off.",
	})

	if m.scanning {
		t.Error("still scanning after scan failure")
	}
	if m.errTitle != "SCAN FAILED" {
		t.Fatalf("errTitle = %q, want %q", m.errTitle, "SCAN FAILED")
	}
	if !strings.Contains(m.errText, "powered off") {
		t.Errorf("errText = %q, want advice about power", m.errText)
	}

	m = press(t, m, "enter")
	if m.errTitle != "" {
		t.Errorf("overlay not dismissed by enter: %q", m.errTitle)
	}
}

func TestScanTimeoutNotes(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, advert(testMAC, "Polar H10", -58))
	m = apply(t, m, bluetooth.ScanStoppedMsg{TimedOut: true})

	if m.scanning {
		t.Error("still scanning after timeout")
	}
	if m.errTitle != "" {
		t.Errorf("timeout raised an overlay: %q", m.errTitle)
	}
	if !strings.Contains(m.status, "timed out") {
		t.Errorf("status = %q, want timeout note", m.status)
	}

	// An empty list gets the more pointed note.
	m = newTestModel(t)
	m = apply(t, m, bluetooth.ScanStoppedMsg{TimedOut: true})
	if !strings.Contains(m.status, "no devices found") {
		t.Errorf("status = %q, want no-devices note", m.status)
	}
}

func TestCursorNavigationClamps(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, advert("11:11:11:11:11:11", "One", -50))
	m = apply(t, m, advert("22:22:22:22:22:22", "Two", -70))
	m = apply(t, m, TickMsg(time.Now()))

	m = press(t, m, "j")
	m = press(t, m, "j")
	m = press(t, m, "j")
	if m.cursor != 1 {
		t.Errorf("cursor after j past end = %d, want 1", m.cursor)
	}

	m = press(t, m, "k")
	m = press(t, m, "k")
	if m.cursor != 0 {
		t.Errorf("cursor after k past start = %d, want 0", m.cursor)
	}
}

func TestConnectRejectsClassicDevice(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, bluetooth.DeviceDiscoveredMsg{
		MAC:  testMAC,
		Name: "JBL Flip 6",
		RSSI: -60,
		Type: bluetooth.DeviceTypeClassic,
	})
	m = apply(t, m, TickMsg(time.Now()))

	m = press(t, m, "enter")
	if m.errTitle != "NOT CONNECTABLE" {
		t.Fatalf("errTitle = %q, want %q", m.errTitle, "NOT CONNECTABLE")
	}
	if m.screen != screenScan {
		t.Error("left the scan screen for a classic device")
	}
}

func TestConnectFlowEntersExplorer(t *testing.T) {
	m := explorerModel(t)

	if m.screen != screenExplorer {
		t.Fatal("not on the explorer screen after discovery started")
	}
	if m.gen != 1 {
		t.Errorf("gen = %d, want 1", m.gen)
	}
	if m.connAddr != testMAC {
		t.Errorf("connAddr = %q, want %q", m.connAddr, testMAC)
	}
	if len(m.services) != 2 {
		t.Errorf("services = %d, want 2", len(m.services))
	}
	if len(m.chars[0]) != 2 {
		t.Errorf("chars[0] = %d, want 2", len(m.chars[0]))
	}
}

func TestStaleGenerationMessagesDropped(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, ble.ConnStateMsg{Gen: 2, Address: testMAC, State: ble.StateConnecting})

	key := ble.CharKey{Service: 0, Char: 0}
	m = apply(t, m, ble.ServicesDiscoveredMsg{Gen: 1, Services: []ble.ServiceInfo{{UUID: "180d"}}})
	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: key, Value: []byte{1}, At: time.Now()})
	m = apply(t, m, ble.SubscribedMsg{Gen: 1, Key: key, Enabled: true})
	m = apply(t, m, ble.DisconnectedMsg{Gen: 1, Address: testMAC})

	if m.services != nil {
		t.Error("stale ServicesDiscoveredMsg applied")
	}
	if len(m.values) != 0 {
		t.Error("stale ValueMsg applied")
	}
	if len(m.notifying) != 0 {
		t.Error("stale SubscribedMsg applied")
	}
	if m.connAddr != testMAC {
		t.Error("stale DisconnectedMsg reset the session")
	}
}

func TestValueMsgStoresValue(t *testing.T) {
	m := explorerModel(t)
	key := ble.CharKey{Service: 0, Char: 1}

	at := time.Now()
	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: key, Source: ble.SourceRead, Value: []byte{0x48, 0x69}, At: at})

	v := m.values[key]
	if v == nil {
		t.Fatal("value not stored")
	}
	if string(v.data) != "Hi" {
		t.Errorf("value = % x, want 48 69", v.data)
	}

	rows := m.charRows(0)
	if !rows[1].HasValue {
		t.Error("char row does not carry the value")
	}
	if rows[0].HasValue {
		t.Error("value leaked onto a different row")
	}
}

func TestReadErrorNoted(t *testing.T) {
	m := explorerModel(t)
	key := ble.CharKey{Service: 0, Char: 0}

	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: key, At: time.Now(), Err: ble.ErrReadNotSupported})

	if v := m.values[key]; v == nil || v.err == nil {
		t.Fatal("read error not recorded on the row")
	}
	if !strings.Contains(m.status, "not readable") {
		t.Errorf("status = %q, want not-readable note", m.status)
	}
	if m.errTitle != "" {
		t.Errorf("read error raised an overlay: %q", m.errTitle)
	}
}

func TestSubscribedTogglesNotifying(t *testing.T) {
	m := explorerModel(t)
	key := ble.CharKey{Service: 0, Char: 0}

	m = apply(t, m, ble.SubscribedMsg{Gen: 1, Key: key, Enabled: true})
	if !m.notifying[key] {
		t.Fatal("notifying not set after subscribe")
	}
	if len(m.notifying) != 1 {
		t.Errorf("notifying count = %d, want 1", len(m.notifying))
	}

	m = apply(t, m, ble.SubscribedMsg{Gen: 1, Key: key, Enabled: false})
	if len(m.notifying) != 0 {
		t.Errorf("notifying count after unsubscribe = %d, want 0", len(m.notifying))
	}
}

func TestNotifyUpdatesOnlyItsRow(t *testing.T) {
	m := explorerModel(t)
	notifyKey := ble.CharKey{Service: 0, Char: 0}
	otherKey := ble.CharKey{Service: 0, Char: 1}

	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: notifyKey, Source: ble.SourceNotify, Value: []byte{0x10, 0x48}, At: time.Now()})

	if m.values[notifyKey] == nil {
		t.Fatal("notify value not stored")
	}
	if m.values[otherKey] != nil {
		t.Error("notify touched a row it does not belong to")
	}
}

func TestDisconnectResetsExplorerKeepsDevices(t *testing.T) {
	m := explorerModel(t)
	key := ble.CharKey{Service: 0, Char: 0}
	m = apply(t, m, ble.SubscribedMsg{Gen: 1, Key: key, Enabled: true})
	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: key, Value: []byte{1}, At: time.Now()})

	m = apply(t, m, ble.DisconnectedMsg{Gen: 1, Address: testMAC})

	if m.screen != screenScan {
		t.Error("not back on the scan screen")
	}
	if m.scanning {
		t.Error("scanning resumed on its own after disconnect")
	}
	if m.services != nil || len(m.values) != 0 || len(m.notifying) != 0 {
		t.Error("explorer state survived the disconnect")
	}
	if m.connAddr != "" {
		t.Errorf("connAddr = %q, want empty", m.connAddr)
	}
	if len(m.devices) != 1 {
		t.Errorf("device list lost entries on disconnect: %d", len(m.devices))
	}
	if !strings.Contains(m.status, "disconnected from") {
		t.Errorf("status = %q, want disconnect note", m.status)
	}
}

func TestLateResultFromDeadSessionDropped(t *testing.T) {
	m := explorerModel(t)
	key := ble.CharKey{Service: 0, Char: 0}

	m = apply(t, m, ble.DisconnectedMsg{Gen: 1, Address: testMAC})

	// A read and a subscribe confirmation that were in flight when the
	// link dropped complete late; both carry the dead generation.
	m = apply(t, m, ble.ValueMsg{Gen: 1, Key: key, Source: ble.SourceRead, Value: []byte{0xde, 0xad}, At: time.Now()})
	m = apply(t, m, ble.SubscribedMsg{Gen: 1, Key: key, Enabled: true})

	if len(m.values) != 0 || len(m.notifying) != 0 {
		t.Fatal("late results from the dead session survived the reset")
	}

	// The next session starts clean and on its own generation.
	m = apply(t, m, ble.ConnStateMsg{Gen: 2, Address: testMAC, State: ble.StateConnecting})
	m = apply(t, m, ble.ConnStateMsg{Gen: 2, Address: testMAC, State: ble.StateDiscovering})
	m = apply(t, m, ble.ServicesDiscoveredMsg{Gen: 2, Address: testMAC, Services: []ble.ServiceInfo{
		{UUID: "0000180d-0000-1000-8000-00805f9b34fb"},
	}})
	m = apply(t, m, ble.CharacteristicsDiscoveredMsg{Gen: 2, Service: 0, Chars: []ble.CharInfo{
		{UUID: "00002a37-0000-1000-8000-00805f9b34fb", Props: ble.PropNotify, PropsKnown: true},
	}})

	if v := m.values[key]; v != nil {
		t.Errorf("stale value shown on the new session's row: % x", v.data)
	}
	if m.gen != 2 {
		t.Errorf("gen = %d, want 2", m.gen)
	}
}

func TestDisconnectStoresProfileInCache(t *testing.T) {
	m := explorerModel(t)
	m.shared.cache = profile.NewCache(filepath.Join(t.TempDir(), "profiles.json"))

	m = apply(t, m, ble.DisconnectedMsg{Gen: 1, Address: testMAC})

	p, ok := m.shared.cache.Load(testMAC)
	if !ok {
		t.Fatal("profile not cached on disconnect")
	}
	if len(p.Services) != 2 {
		t.Errorf("cached services = %d, want 2", len(p.Services))
	}
}

func TestUnsolicitedDropShowsOverlay(t *testing.T) {
	m := explorerModel(t)

	m = apply(t, m, ble.DisconnectedMsg{Gen: 1, Address: testMAC, Err: ble.ErrConnectionLost})

	if m.errTitle != "CONNECTION LOST" {
		t.Fatalf("errTitle = %q, want %q", m.errTitle, "CONNECTION LOST")
	}
	if !strings.Contains(m.errText, "out of range") {
		t.Errorf("errText = %q, want drop advice", m.errText)
	}
	if m.screen != screenScan {
		t.Error("not back on the scan screen after the drop")
	}
}

func TestExplorerPaneKeys(t *testing.T) {
	m := explorerModel(t)

	if m.focus != paneServices {
		t.Fatal("focus does not start on the service pane")
	}
	m = press(t, m, "tab")
	if m.focus != paneChars {
		t.Error("tab did not move focus to the characteristic pane")
	}
	m = press(t, m, "tab")
	if m.focus != paneServices {
		t.Error("tab did not move focus back")
	}

	m = press(t, m, "j")
	m = press(t, m, "enter")
	if m.svcSelected != 1 {
		t.Errorf("svcSelected = %d, want 1", m.svcSelected)
	}
	if m.focus != paneChars {
		t.Error("selecting a service did not focus its characteristics")
	}
}

func TestHelpOverlayToggles(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, "?")
	if !m.helpOpen {
		t.Fatal("? did not open help")
	}

	// Any key closes help without acting on the screen below.
	m = press(t, m, "p")
	if m.helpOpen {
		t.Error("help still open")
	}
	if !m.scanning {
		t.Error("key that closed help leaked into the scan screen")
	}
}

func TestQuitTwiceStopsCleanly(t *testing.T) {
	m := newTestModel(t)
	// Outside demo mode the model carries a resolver; every member of
	// the stop path has to tolerate the quit key repeating.
	m.shared.resolver = bluetooth.NewNameResolver("hci0")

	m = press(t, m, "q")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if _, ok := next.(Model); !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	if cmd == nil {
		t.Fatal("second quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("second quit did not return tea.Quit")
	}
}

func TestViewSmoke(t *testing.T) {
	m := newTestModel(t)
	m = apply(t, m, advert(testMAC, "Polar H10", -58))
	m = apply(t, m, TickMsg(time.Now()))

	view := m.View()
	if !strings.Contains(view, config.AppName) {
		t.Error("scan view missing the app title")
	}
	if !strings.Contains(view, "Polar H10") {
		t.Error("scan view missing the discovered device")
	}

	m = explorerModel(t)
	view = m.View()
	if !strings.Contains(view, "SERVICES") {
		t.Error("explorer view missing the service pane")
	}
	if !strings.Contains(view, "Heart Rate") {
		t.Error("explorer view missing the resolved service name")
	}

	m.showError("SCAN FAILED", "Bluetooth is powered off.")
	view = m.View()
	if !strings.Contains(view, "SCAN FAILED") {
		t.Error("overlay view missing the error title")
	}
}
