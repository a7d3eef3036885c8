package bluetooth

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/logging"
)

// NameResolver tries to resolve names for unnamed devices in the
// background with hcitool name requests (a direct page to the device).
// Attempts are capped per address and failures stay silent.
type NameResolver struct {
	adapter string
	log     *logrus.Entry

	mu       sync.Mutex
	program  ble.Sender
	tried    map[string]int // MAC -> attempt count
	resolved map[string]bool
	stopped  bool
	stop     chan struct{}
}

const (
	maxAttempts    = 2
	resolveTimeout = 4 * time.Second
	resolvePause   = 3 * time.Second
)

// NewNameResolver creates a resolver bound to an adapter.
func NewNameResolver(adapter string) *NameResolver {
	return &NameResolver{
		adapter:  adapter,
		log:      logging.Component("resolver"),
		tried:    make(map[string]int),
		resolved: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Start wires the resolver to the UI loop.
func (r *NameResolver) Start(p ble.Sender) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// RequestResolve queues a MAC for background name resolution.
// Safe to call from any goroutine.
func (r *NameResolver) RequestResolve(mac string) {
	r.mu.Lock()
	if r.resolved[mac] || r.tried[mac] >= maxAttempts {
		r.mu.Unlock()
		return
	}
	r.tried[mac]++
	r.mu.Unlock()

	go r.resolve(mac)
}

func (r *NameResolver) resolve(mac string) {
	// Rate limit - don't spam the radio with page requests
	select {
	case <-r.stop:
		return
	case <-time.After(resolvePause):
	}

	name := r.tryHcitool(mac)
	if name == "" {
		return
	}

	r.mu.Lock()
	r.resolved[mac] = true
	p := r.program
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"address": mac, "name": name}).Debug("name resolved")
	if p != nil {
		p.Send(DeviceDiscoveredMsg{
			MAC:      mac,
			Name:     name,
			NameOnly: true,
		})
	}
}

func (r *NameResolver) tryHcitool(mac string) string {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "hcitool", "-i", r.adapter, "name", mac).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Stop terminates the resolver. Idempotent; the quit path runs it on
// every press.
func (r *NameResolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stop)
}

// ShouldResolve reports whether this MAC is still worth attempting.
func (r *NameResolver) ShouldResolve(mac string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.resolved[mac] && r.tried[mac] < maxAttempts
}
