package bluetooth

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/logging"
)

// DeviceDiscoveredMsg is sent via tea.Program.Send when a device is found.
// NameOnly marks a late name resolution without a fresh advertisement.
type DeviceDiscoveredMsg struct {
	MAC          string
	Name         string
	RSSI         int16
	Type         DeviceType
	CompanyID    uint16
	HasCompany   bool
	ServiceUUIDs []string
	NameOnly     bool
}

// ScanStoppedMsg reports the scan ended on its own: the configured
// timeout elapsed (TimedOut) or the backend failed (Err + Advice).
// A user-requested Stop sends nothing.
type ScanStoppedMsg struct {
	TimedOut bool
	Err      error
	Advice   string
}

// advertThrottle drops repeat reports for the same address arriving
// faster than this; the store's EMA does not need every frame.
const advertThrottle = 150 * time.Millisecond

// Scanner drives BLE discovery over a Backend. Discovered devices are
// sent as tea messages via program.Send().
type Scanner struct {
	backend ble.Backend
	timeout time.Duration
	log     *logrus.Entry

	mu        sync.Mutex
	program   ble.Sender
	running   bool
	stopTimer *time.Timer
	lastSent  map[string]time.Time
}

// NewScanner creates a scanner. timeout zero means scan until stopped.
func NewScanner(backend ble.Backend, timeout time.Duration) *Scanner {
	return &Scanner{
		backend:  backend,
		timeout:  timeout,
		log:      logging.Component("scanner"),
		lastSent: make(map[string]time.Time),
	}
}

// Start begins scanning in a goroutine. The backend must already be
// enabled. Safe to call while running (no-op).
func (s *Scanner) Start(p ble.Sender) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.program = p
	s.lastSent = make(map[string]time.Time)
	if s.timeout > 0 {
		s.stopTimer = time.AfterFunc(s.timeout, func() {
			s.Stop()
			s.send(ScanStoppedMsg{TimedOut: true})
		})
	}
	s.mu.Unlock()

	s.log.Info("scan started")
	go func() {
		if err := s.backend.Scan(s.handleEvent); err != nil {
			s.finish(err)
		}
	}()
}

// Stop halts discovery. Idempotent; also used right before connecting,
// since scanning and an active connection are mutually exclusive.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.mu.Unlock()

	_ = s.backend.StopScan()
	s.log.Info("scan stopped")
}

// Running reports whether a scan is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scanner) handleEvent(ev ble.ScanEvent) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if last, ok := s.lastSent[ev.Address]; ok && now.Sub(last) < advertThrottle {
		s.mu.Unlock()
		return
	}
	s.lastSent[ev.Address] = now
	s.mu.Unlock()

	name := ev.Name
	var companyID uint16
	var hasCompany bool
	if len(ev.CompanyIDs) > 0 {
		companyID = ev.CompanyIDs[0]
		hasCompany = true
	}

	// Fallback: identify device by manufacturer data
	if name == "" && hasCompany {
		if mfrName := LookupManufacturer(companyID); mfrName != "" && len(ev.Address) >= 17 {
			suffix := ev.Address[12:] // last 2 octets e.g. "EE:FF"
			name = mfrName + " " + suffix
		}
	}

	s.send(DeviceDiscoveredMsg{
		MAC:          ev.Address,
		Name:         name,
		RSSI:         ev.RSSI,
		Type:         DeviceTypeBLE,
		CompanyID:    companyID,
		HasCompany:   hasCompany,
		ServiceUUIDs: ev.ServiceUUIDs,
	})
}

// finish handles the scan goroutine ending with a backend failure.
func (s *Scanner) finish(err error) {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.mu.Unlock()

	if !wasRunning {
		return
	}
	s.log.WithError(err).Error("scan failed")
	s.send(ScanStoppedMsg{Err: err, Advice: ClassifyScanError(err)})
}

func (s *Scanner) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// ClassifyScanError turns a backend failure into operator advice for
// the error overlay.
func ClassifyScanError(err error) string {
	if err == nil {
		return ""
	}
	cause := errors.Cause(err)
	switch {
	case cause == ble.ErrPoweredOff || containsAny(err, "NotReady", "powered off"):
		return "Bluetooth is powered off."
	case cause == ble.ErrPermission || containsAny(err, "permission denied", "operation not permitted", "NotAuthorized"):
		return "Missing Bluetooth permissions (try sudo or setcap cap_net_admin+ep)."
	case cause == ble.ErrUnsupported || containsAny(err, "not supported", "no such device", "no default adapter"):
		return "Bluetooth is not available on this platform."
	default:
		return "Check Bluetooth hardware and drivers."
	}
}

func containsAny(err error, substrs ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, sub := range substrs {
		if strings.Contains(msg, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
