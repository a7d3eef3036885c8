package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/bluetooth"
	"gattscope.dev/internal/config"
	"gattscope.dev/internal/profile"
	"gattscope.dev/internal/ui"
)

// screen selects which top-level view the model renders.
type screen int

const (
	screenScan screen = iota
	screenExplorer
)

// pane is the focused explorer pane.
type pane int

const (
	paneServices pane = iota
	paneChars
)

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	cfg            *config.Config
	store          *bluetooth.DeviceStore
	scanner        *bluetooth.Scanner
	classicScanner *bluetooth.ClassicScanner
	resolver       *bluetooth.NameResolver
	client         *ble.Client
	cache          *profile.Cache
	history        *rssiHistory
	program        ble.Sender
}

// charValue is the last captured value for one characteristic row.
type charValue struct {
	data   []byte
	source ble.ValueSource
	at     time.Time
	err    error
}

// Model is the root Bubble Tea model for gattscope.
type Model struct {
	width  int
	height int

	screen   screen
	scanning bool
	demo     bool
	adapter  string

	// Scan screen: cached snapshot + cursor + detail toggle.
	cursor     int
	devices    []*bluetooth.Device
	detailOpen bool
	lastSample time.Time

	// Explorer state, valid for one connection generation. Everything
	// here is rebuilt from scratch on the next connect.
	gen         uint64
	connAddr    string
	connName    string
	services    []ble.ServiceInfo
	chars       map[int][]ble.CharInfo
	values      map[ble.CharKey]*charValue
	notifying   map[ble.CharKey]bool
	svcErr      map[int]error
	focus       pane
	svcCursor   int
	svcSelected int
	charCursor  int

	// Overlays and the transient status note.
	errTitle string
	errText  string
	helpOpen bool
	status   string
	statusAt time.Time

	shared *shared
}

// New assembles the model. The backend must already be enabled;
// scanners start once main hands over the running program.
func New(cfg *config.Config, backend ble.Backend, client *ble.Client, cache *profile.Cache, demo bool) Model {
	sh := &shared{
		cfg:     cfg,
		store:   bluetooth.NewDeviceStore(),
		scanner: bluetooth.NewScanner(backend, time.Duration(cfg.Scan.TimeoutSeconds)*time.Second),
		client:  client,
		cache:   cache,
		history: newRSSIHistory(config.RSSIHistoryLen),
	}
	if !demo && bluetooth.ClassicScannerAvailable() {
		if cfg.Classic {
			sh.classicScanner = bluetooth.NewClassicScanner(cfg.Adapter, time.Duration(config.ClassicScanSec)*time.Second)
		}
		sh.resolver = bluetooth.NewNameResolver(cfg.Adapter)
	}

	return Model{
		scanning:  true,
		demo:      demo,
		adapter:   cfg.Adapter,
		chars:     make(map[int][]ble.CharInfo),
		values:    make(map[ble.CharKey]*charValue),
		notifying: make(map[ble.CharKey]bool),
		svcErr:    make(map[int]error),
		shared:    sh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		evictCmd(),
	)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing gattscope..."
	}

	menuH := 1
	statusH := 1
	bodyH := m.height - menuH - statusH
	if bodyH < 5 {
		bodyH = 5
	}

	explorer := m.screen == screenExplorer
	menuBar := ui.RenderMenuBar(m.width, m.adapter, explorer, m.scanning, m.demo)

	var view string
	if explorer {
		view = m.viewExplorer(menuBar, bodyH)
	} else {
		view = m.viewScan(menuBar, bodyH)
	}

	if m.errTitle != "" {
		overlay := ui.RenderErrorOverlay(m.width, bodyH, m.errTitle, m.errText)
		return ui.ComposeScan(menuBar, overlay, "", m.statusBar())
	}
	if m.helpOpen {
		overlay := ui.RenderHelpOverlay(m.width, bodyH, explorer)
		return ui.ComposeScan(menuBar, overlay, "", m.statusBar())
	}
	return view
}

func (m Model) viewScan(menuBar string, bodyH int) string {
	listW := m.width
	detail := ""
	if m.detailOpen && len(m.devices) > 0 {
		detailW := m.width * 2 / 5
		if detailW < 30 {
			detailW = 30
		}
		listW = m.width - detailW

		d := m.devices[m.clampedCursor()]
		hist := m.shared.history.Trail(d.MAC)
		var cached *profile.Profile
		if m.shared.cache != nil {
			if p, ok := m.shared.cache.Load(d.MAC); ok {
				cached = &p
			}
		}
		detail = ui.RenderDetailPanel(d, detailW, bodyH, hist, cached)
	}

	list := ui.RenderDeviceList(m.devices, listW, bodyH, m.clampedCursor())
	return ui.ComposeScan(menuBar, list, detail, m.statusBar())
}

func (m Model) viewExplorer(menuBar string, bodyH int) string {
	valueH := 8
	paneH := bodyH - valueH
	if paneH < 8 {
		paneH = 8
		valueH = bodyH - paneH
		if valueH < 3 {
			valueH = 3
		}
	}

	svcW := m.width * 2 / 5
	if svcW < 28 {
		svcW = 28
	}
	charW := m.width - svcW

	discovering := m.services == nil
	svcPane := ui.RenderServiceList(m.services, svcW, paneH, m.svcCursor, m.svcSelected,
		m.focus == paneServices, discovering)

	rows := m.charRows(m.svcSelected)
	charsDiscovering := !discovering && m.chars[m.svcSelected] == nil && m.svcErr[m.svcSelected] == nil
	charPane := ui.RenderCharList(rows, m.serviceLabel(m.svcSelected), charW, paneH, m.charCursor,
		m.focus == paneChars, charsDiscovering, m.svcErr[m.svcSelected], m.shared.cfg.Read.PreviewBytes)

	var sel *ui.CharRow
	if m.focus == paneChars && m.charCursor < len(rows) {
		sel = &rows[m.charCursor]
	}
	valuePane := ui.RenderValuePane(sel, m.width, valueH)

	return ui.ComposeExplorer(menuBar, svcPane, charPane, valuePane, m.statusBar())
}

func (m Model) statusBar() string {
	note := m.status
	if m.screen == screenExplorer {
		return ui.RenderExplorerStatusBar(m.width, m.shared.client.State(), m.connAddr,
			len(m.services), len(m.notifying), note)
	}
	total := m.shared.store.Count()
	bleCount, classic := m.shared.store.CountByType()
	return ui.RenderScanStatusBar(m.width, m.scanning, total, bleCount, classic, note)
}

// charRows converts explorer state into what the characteristic pane
// renders.
func (m Model) charRows(svc int) []ui.CharRow {
	infos := m.chars[svc]
	rows := make([]ui.CharRow, len(infos))
	for i, info := range infos {
		key := ble.CharKey{Service: svc, Char: i}
		row := ui.CharRow{Info: info, Notifying: m.notifying[key]}
		if v := m.values[key]; v != nil {
			if v.err != nil {
				row.Err = v.err
			} else {
				row.HasValue = true
				row.Value = v.data
				row.Source = v.source
				row.At = v.at
			}
		}
		rows[i] = row
	}
	return rows
}

func (m Model) serviceLabel(svc int) string {
	if svc < 0 || svc >= len(m.services) {
		return ""
	}
	return ui.ServiceTitle(m.services[svc].UUID)
}

func (m Model) clampedCursor() int {
	if m.cursor >= len(m.devices) {
		return len(m.devices) - 1
	}
	if m.cursor < 0 {
		return 0
	}
	return m.cursor
}

// StartScanners wires the running program into everything that pushes
// messages, then starts discovery. Must be called before p.Run().
func (m *Model) StartScanners(p ble.Sender) {
	m.shared.program = p
	m.shared.client.SetSender(p)
	m.shared.scanner.Start(p)
	if m.shared.classicScanner != nil {
		m.shared.classicScanner.Start(p)
	}
	if m.shared.resolver != nil {
		m.shared.resolver.Start(p)
	}
}

func (m *Model) stopAll() {
	m.shared.scanner.Stop()
	if m.shared.classicScanner != nil {
		m.shared.classicScanner.Stop()
	}
	if m.shared.resolver != nil {
		m.shared.resolver.Stop()
	}
	m.shared.client.Disconnect()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func evictCmd() tea.Cmd {
	return tea.Tick(config.EvictInterval, func(t time.Time) tea.Msg {
		return EvictMsg(t)
	})
}
