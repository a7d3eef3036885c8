package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/bluetooth"
	"gattscope.dev/internal/config"
	"gattscope.dev/internal/profile"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.devices = m.shared.store.Snapshot()
		if m.cursor >= len(m.devices) && len(m.devices) > 0 {
			m.cursor = len(m.devices) - 1
		}
		m.sampleRSSI(time.Time(msg))
		if m.status != "" && time.Since(m.statusAt) > config.StatusTimeout {
			m.status = ""
		}
		return m, tickCmd()

	case EvictMsg:
		// Prune only while actively scanning on the scan screen; a
		// paused list and a connected session keep what they have.
		if m.screen == screenScan && m.scanning {
			m.shared.store.Evict(config.DeviceTimeout, m.shared.client.Address())
		}
		return m, evictCmd()

	case bluetooth.DeviceDiscoveredMsg:
		if m.scanning || msg.NameOnly {
			m.shared.store.Upsert(msg)
		}
		if m.scanning && msg.Name == "" && !msg.NameOnly && m.shared.resolver != nil &&
			m.shared.resolver.ShouldResolve(msg.MAC) {
			m.shared.resolver.RequestResolve(msg.MAC)
		}
		return m, nil

	case bluetooth.ScanStoppedMsg:
		m.scanning = false
		switch {
		case msg.Err != nil:
			m.showError("SCAN FAILED", fmt.Sprintf("%v\n\n%s", msg.Err, msg.Advice))
		case msg.TimedOut && m.shared.store.Count() == 0:
			m.note("no devices found, [s] to rescan")
		case msg.TimedOut:
			m.note("scan timed out, [s] to rescan")
		}
		return m, nil

	case bluetooth.ClassicScanErrorMsg:
		m.note("classic scan off: " + msg.Err.Error())
		return m, nil

	case ble.ConnStateMsg:
		return m.handleConnState(msg)

	case ble.ConnErrorMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m = m.resetExplorer()
		m.showError("CONNECTION ERROR", connectAdvice(msg.Err))
		return m, nil

	case ble.ServicesDiscoveredMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.services = msg.Services
		m.svcCursor = 0
		m.svcSelected = 0
		m.charCursor = 0
		if len(msg.Services) > 0 {
			m.shared.client.DiscoverCharacteristics(0)
		}
		return m, nil

	case ble.CharacteristicsDiscoveredMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.chars[msg.Service] = msg.Chars
		if msg.Service == m.svcSelected && m.charCursor >= len(msg.Chars) {
			m.charCursor = 0
		}
		return m, nil

	case ble.ServiceErrorMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.svcErr[msg.Service] = msg.Err
		return m, nil

	case ble.ValueMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		if msg.Err != nil {
			// A failed read never clobbers a value already on the row.
			if v := m.values[msg.Key]; v == nil || v.err != nil {
				m.values[msg.Key] = &charValue{err: msg.Err, at: msg.At}
			}
			m.note(valueErrNote(msg.Err))
			return m, nil
		}
		m.values[msg.Key] = &charValue{data: msg.Value, source: msg.Source, at: msg.At}
		return m, nil

	case ble.SubscribedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		if msg.Err != nil {
			if errors.Cause(msg.Err) == ble.ErrNotifyNotSupported {
				m.note("characteristic does not notify")
			} else {
				m.showError("NOTIFY ERROR", msg.Err.Error())
			}
			return m, nil
		}
		key := msg.Key
		if msg.Enabled {
			m.notifying[key] = true
		} else {
			delete(m.notifying, key)
		}
		return m, nil

	case ble.DisconnectedMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m = m.resetExplorer()
		if msg.Err != nil {
			m.showError("CONNECTION LOST", connectAdvice(msg.Err))
		} else {
			m.note("disconnected from " + msg.Address)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleConnState(msg ble.ConnStateMsg) (tea.Model, tea.Cmd) {
	switch msg.State {
	case ble.StateConnecting:
		// First message of a new session: wipe whatever explorer state
		// is lying around, then establish the generation every later
		// guard compares against. Scanning and a connection never
		// overlap.
		m = m.resetExplorer()
		m.gen = msg.Gen
		m.scanning = false
		m.connAddr = msg.Address
		if d, ok := m.shared.store.Get(msg.Address); ok {
			m.connName = d.DisplayName()
		}
		m.note("connecting to " + msg.Address)
	case ble.StateDiscovering:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.screen = screenExplorer
		m.detailOpen = false
		m.helpOpen = false
		m.note("discovering services")
	case ble.StateConnected:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.status = ""
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// The error overlay is modal, like the message boxes it replaces.
	if m.errTitle != "" {
		switch key {
		case "enter", "esc", " ":
			m.errTitle = ""
			m.errText = ""
		case "q", "ctrl+c":
			return m.quit()
		}
		return m, nil
	}

	if m.helpOpen {
		switch key {
		case "q", "ctrl+c":
			return m.quit()
		default:
			m.helpOpen = false
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		return m.quit()
	case "?":
		m.helpOpen = true
		return m, nil
	}

	if m.screen == screenExplorer {
		return m.handleExplorerKey(key)
	}
	return m.handleScanKey(key)
}

func (m Model) handleScanKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case "home":
		m.cursor = 0

	case "end":
		if len(m.devices) > 0 {
			m.cursor = len(m.devices) - 1
		}

	case "enter", "c":
		return m.connectToCursor()

	case "s":
		if m.shared.client.State() != ble.StateIdle {
			m.note("still connected, disconnect first")
			return m, nil
		}
		if !m.scanning {
			m.scanning = true
			m.shared.scanner.Start(m.shared.program)
			if m.shared.classicScanner != nil {
				m.shared.classicScanner.Start(m.shared.program)
			}
		}

	case "p":
		if m.scanning {
			m.scanning = false
			m.shared.scanner.Stop()
		}

	case "i":
		if len(m.devices) > 0 {
			m.detailOpen = !m.detailOpen
		}

	case "esc":
		m.detailOpen = false
	}

	return m, nil
}

func (m Model) connectToCursor() (tea.Model, tea.Cmd) {
	if len(m.devices) == 0 {
		return m, nil
	}
	d := m.devices[m.clampedCursor()]
	if !d.Connectable() {
		m.showError("NOT CONNECTABLE",
			d.DisplayName()+" is a classic Bluetooth device; only LE peripherals expose a GATT server.")
		return m, nil
	}
	if m.shared.client.State() != ble.StateIdle {
		return m, nil
	}

	// Scanning and a connection share the radio; stop discovery first.
	m.scanning = false
	m.shared.scanner.Stop()
	if m.shared.classicScanner != nil {
		m.shared.classicScanner.Stop()
	}
	m.shared.client.Connect(d.MAC)
	return m, nil
}

func (m Model) handleExplorerKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "tab":
		if m.focus == paneServices {
			m.focus = paneChars
		} else {
			m.focus = paneServices
		}

	case "up", "k":
		if m.focus == paneServices {
			if m.svcCursor > 0 {
				m.svcCursor--
			}
		} else if m.charCursor > 0 {
			m.charCursor--
		}

	case "down", "j":
		if m.focus == paneServices {
			if m.svcCursor < len(m.services)-1 {
				m.svcCursor++
			}
		} else if m.charCursor < len(m.chars[m.svcSelected])-1 {
			m.charCursor++
		}

	case "enter":
		if m.focus == paneServices {
			return m.selectService(m.svcCursor)
		}
		m.readCursorChar()

	case "r":
		m.readCursorChar()

	case "n":
		key := m.cursorCharKey()
		if key == nil {
			return m, nil
		}
		if m.notifying[*key] {
			m.shared.client.Unsubscribe(*key)
		} else {
			m.shared.client.Subscribe(*key)
		}

	case "e":
		m.exportProfile()

	case "esc", "x":
		m.shared.client.Disconnect()
	}

	return m, nil
}

func (m Model) selectService(svc int) (tea.Model, tea.Cmd) {
	if svc < 0 || svc >= len(m.services) {
		return m, nil
	}
	m.svcSelected = svc
	m.charCursor = 0
	m.focus = paneChars
	if m.chars[svc] == nil && m.svcErr[svc] == nil {
		m.shared.client.DiscoverCharacteristics(svc)
	}
	return m, nil
}

// readCursorChar kicks off a read of the characteristic under the
// cursor. Results and errors come back as a ValueMsg.
func (m *Model) readCursorChar() {
	key := m.cursorCharKey()
	if key == nil {
		return
	}
	m.shared.client.Read(*key)
}

func (m Model) cursorCharKey() *ble.CharKey {
	infos := m.chars[m.svcSelected]
	if m.charCursor < 0 || m.charCursor >= len(infos) {
		return nil
	}
	return &ble.CharKey{Service: m.svcSelected, Char: m.charCursor}
}

func (m *Model) exportProfile() {
	if m.connAddr == "" || len(m.services) == 0 {
		m.note("nothing to export yet")
		return
	}
	p := profile.Build(m.connAddr, m.connName, m.companyOf(m.connAddr), m.services, m.chars, m.snapshotValues())
	path, err := profile.Export(".", p)
	if err != nil {
		m.note("export failed: " + err.Error())
		return
	}
	if m.shared.cache != nil {
		_ = m.shared.cache.Store(p.Address, p, true)
	}
	m.note("exported " + path)
}

func (m Model) companyOf(mac string) string {
	if d, ok := m.shared.store.Get(mac); ok {
		return d.Company()
	}
	return ""
}

func (m Model) snapshotValues() map[ble.CharKey]*profile.Value {
	out := make(map[ble.CharKey]*profile.Value, len(m.values))
	previewBytes := m.shared.cfg.Read.PreviewBytes
	for key, v := range m.values {
		if v == nil || v.err != nil {
			continue
		}
		out[key] = profile.NewValue(v.data, v.source, v.at, previewBytes)
	}
	return out
}

// resetExplorer clears everything tied to the dropped connection. The
// device list and scan cursor survive; scanning stays off until the
// user re-arms it.
func (m Model) resetExplorer() Model {
	if m.shared.cache != nil && m.connAddr != "" && len(m.services) > 0 {
		p := profile.Build(m.connAddr, m.connName, m.companyOf(m.connAddr), m.services, m.chars, m.snapshotValues())
		if err := m.shared.cache.Store(p.Address, p, true); err != nil {
			m.note("profile cache: " + err.Error())
		}
	}

	m.screen = screenScan
	// Client generations start at 1, so zero matches nothing: results
	// still in flight from the dead session fail every guard until the
	// next connect establishes a new generation.
	m.gen = 0
	m.connAddr = ""
	m.connName = ""
	m.services = nil
	m.chars = make(map[int][]ble.CharInfo)
	m.values = make(map[ble.CharKey]*charValue)
	m.notifying = make(map[ble.CharKey]bool)
	m.svcErr = make(map[int]error)
	m.focus = paneServices
	m.svcCursor = 0
	m.svcSelected = 0
	m.charCursor = 0
	return m
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopAll()
	return m, tea.Quit
}

// sampleRSSI appends one smoothed reading per device per second for
// the detail sparkline.
func (m *Model) sampleRSSI(now time.Time) {
	if now.Sub(m.lastSample) < time.Second {
		return
	}
	m.lastSample = now
	for _, d := range m.devices {
		m.shared.history.Record(d.MAC, d.RSSI)
	}
}

func (m *Model) note(text string) {
	m.status = text
	m.statusAt = time.Now()
}

func (m *Model) showError(title, text string) {
	m.errTitle = title
	m.errText = text
}

// connectAdvice augments connection failures with the likely cause.
func connectAdvice(err error) string {
	switch errors.Cause(err) {
	case ble.ErrConnectionLost:
		return "The peripheral closed the link or went out of range."
	case ble.ErrPoweredOff:
		return "Bluetooth is powered off."
	case ble.ErrNotConnected:
		return "The connection is gone."
	}
	return err.Error()
}

func valueErrNote(err error) string {
	if errors.Cause(err) == ble.ErrReadNotSupported {
		return "characteristic is not readable"
	}
	return "read failed: " + err.Error()
}
