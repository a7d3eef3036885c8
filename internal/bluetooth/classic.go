package bluetooth

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/logging"
)

// classicDefaultRSSI stands in for inquiry responses, which carry no
// signal strength.
const classicDefaultRSSI = -75

// ClassicScanner discovers classic Bluetooth devices via hcitool
// inquiry rounds. LE peripherals never answer an inquiry, so this
// feeds the list with devices the LE scan cannot see. They are listed
// only; an LE connection to them is refused up front.
type ClassicScanner struct {
	adapter  string
	interval time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	program ble.Sender
	running bool
	cancel  context.CancelFunc
}

// NewClassicScanner creates a classic BT scanner bound to an adapter
// (e.g. "hci0").
func NewClassicScanner(adapter string, interval time.Duration) *ClassicScanner {
	return &ClassicScanner{
		adapter:  adapter,
		interval: interval,
		log:      logging.Component("classic"),
	}
}

// Start begins periodic inquiry rounds in a goroutine. No-op while
// running.
func (s *ClassicScanner) Start(p ble.Sender) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.program = p
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the classic scanner.
func (s *ClassicScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *ClassicScanner) loop(ctx context.Context) {
	for {
		s.scan(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *ClassicScanner) scan(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "hcitool", "-i", s.adapter, "scan", "--flush")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return
	}
	if err := cmd.Start(); err != nil {
		s.log.WithError(err).Warn("hcitool unavailable, classic discovery off")
		s.send(ClassicScanErrorMsg{Err: err})
		s.Stop()
		return
	}

	lines := bufio.NewScanner(stdout)
	for lines.Scan() {
		mac, name, ok := parseInquiryLine(lines.Text())
		if !ok {
			continue
		}
		s.send(DeviceDiscoveredMsg{
			MAC:  mac,
			Name: name,
			RSSI: classicDefaultRSSI,
			Type: DeviceTypeClassic,
		})
	}
	_ = cmd.Wait()
}

func (s *ClassicScanner) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// parseInquiryLine extracts "AA:BB:CC:DD:EE:FF\tDevice Name" pairs
// from hcitool scan output.
func parseInquiryLine(line string) (mac, name string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "Scanning") {
		return "", "", false
	}
	parts := strings.SplitN(line, "\t", 2)
	mac = strings.TrimSpace(parts[0])
	if !isValidMAC(mac) {
		return "", "", false
	}
	if len(parts) == 2 {
		name = strings.TrimSpace(parts[1])
	}
	return mac, name, true
}

func isValidMAC(mac string) bool {
	if len(mac) != 17 {
		return false
	}
	for i, c := range mac {
		if (i+1)%3 == 0 {
			if c != ':' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')) {
				return false
			}
		}
	}
	return true
}

// ClassicScannerAvailable checks if hcitool is available on the system.
func ClassicScannerAvailable() bool {
	_, err := exec.LookPath("hcitool")
	return err == nil
}

// ClassicScanErrorMsg reports hcitool errors.
type ClassicScanErrorMsg struct {
	Err error
}

func (e ClassicScanErrorMsg) Error() string {
	return fmt.Sprintf("classic scan error: %v", e.Err)
}
