package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gattscope.dev/internal/logging"
)

// ErrConnectionLost reports an unsolicited drop.
var ErrConnectionLost = errors.New("connection lost")

// Sender delivers messages into the UI event loop. *tea.Program
// satisfies it; tests substitute a recorder.
type Sender interface {
	Send(msg tea.Msg)
}

// Client drives one connection at a time over a Backend. Every
// operation that can stall runs on its own goroutine and reports back
// through the Sender, so the UI loop never blocks on the stack.
//
// Each Connect starts a new generation; messages carry the generation
// they belong to and the model discards stale ones, so callbacks from
// a torn-down connection can never touch a later session.
type Client struct {
	backend        Backend
	connectTimeout time.Duration
	log            *logrus.Entry

	mu       sync.Mutex
	sender   Sender
	gen      uint64
	state    ConnState
	address  string
	conn     Connection
	services []Service
	chars    map[int][]Characteristic
	subs     map[CharKey]bool
}

// NewClient wires a client to its backend and claims the backend's
// disconnect handler.
func NewClient(backend Backend, connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	c := &Client{
		backend:        backend,
		connectTimeout: connectTimeout,
		state:          StateIdle,
		log:            logging.Component("ble"),
	}
	backend.SetDisconnectHandler(c.handleDrop)
	return c
}

// SetSender wires the UI loop. Separate from NewClient because the
// tea.Program is constructed after the model that owns the client.
func (c *Client) SetSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

// Gen returns the current connection generation. The model compares
// message generations against it before acting on them.
func (c *Client) Gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the peripheral address of the current session, ""
// when idle.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Connect dials address, then discovers its services. No-op unless
// idle. Callers stop any running scan first; scanning and an active
// connection are mutually exclusive.
func (c *Client) Connect(address string) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.address = address
	c.services = nil
	c.chars = make(map[int][]Characteristic)
	c.subs = make(map[CharKey]bool)
	c.mu.Unlock()

	c.log.WithField("address", address).Info("connecting")
	c.send(ConnStateMsg{Gen: gen, Address: address, State: StateConnecting})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
		defer cancel()

		conn, err := c.backend.Connect(ctx, address)
		if err != nil {
			c.fail(gen, address, errors.Wrap(err, "connect"))
			return
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateConnecting {
			// Torn down while dialing; release the fresh link.
			c.mu.Unlock()
			_ = conn.Disconnect()
			return
		}
		c.conn = conn
		c.state = StateDiscovering
		c.mu.Unlock()

		c.send(ConnStateMsg{Gen: gen, Address: address, State: StateDiscovering})

		services, err := conn.DiscoverServices()
		if err != nil {
			c.fail(gen, address, errors.Wrap(err, "discover services"))
			return
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateDiscovering {
			c.mu.Unlock()
			return
		}
		c.services = services
		c.state = StateConnected
		c.mu.Unlock()

		infos := make([]ServiceInfo, len(services))
		for i, s := range services {
			infos[i] = ServiceInfo{UUID: s.UUID()}
		}
		c.log.WithFields(logrus.Fields{
			"address":  address,
			"services": len(infos),
		}).Info("connected")
		c.send(ConnStateMsg{Gen: gen, Address: address, State: StateConnected})
		c.send(ServicesDiscoveredMsg{Gen: gen, Address: address, Services: infos})
	}()
}

// DiscoverCharacteristics walks one service's characteristics.
// Results for an already-walked service are replayed from cache.
func (c *Client) DiscoverCharacteristics(svc int) {
	c.mu.Lock()
	if c.state != StateConnected || svc < 0 || svc >= len(c.services) {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	service := c.services[svc]
	if cached := c.chars[svc]; cached != nil {
		c.mu.Unlock()
		c.send(CharacteristicsDiscoveredMsg{Gen: gen, Service: svc, Chars: charInfos(cached)})
		return
	}
	c.mu.Unlock()

	go func() {
		chars, err := service.Characteristics()
		if err != nil {
			if c.current(gen) {
				c.send(ServiceErrorMsg{Gen: gen, Service: svc, Err: errors.Wrap(err, "discover characteristics")})
			}
			return
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateConnected {
			c.mu.Unlock()
			return
		}
		c.chars[svc] = chars
		c.mu.Unlock()

		c.send(CharacteristicsDiscoveredMsg{Gen: gen, Service: svc, Chars: charInfos(chars)})
	}()
}

// Read fetches the value of the characteristic at key. The result (or
// error) arrives as a ValueMsg with Source SourceRead.
func (c *Client) Read(key CharKey) {
	ch, gen, ok := c.lookup(key)
	if !ok {
		return
	}
	if props, known := ch.Properties(); known && !props.CanRead() {
		c.send(ValueMsg{Gen: gen, Key: key, Source: SourceRead, At: time.Now(), Err: ErrReadNotSupported})
		return
	}

	go func() {
		value, err := ch.Read()
		at := time.Now()
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.send(ValueMsg{Gen: gen, Key: key, Source: SourceRead, At: at, Err: errors.Wrap(err, "read")})
			return
		}
		c.send(ValueMsg{Gen: gen, Key: key, Source: SourceRead, Value: value, At: at})
	}()
}

// Subscribe enables notifications for the characteristic at key.
// Updates arrive as ValueMsg with Source SourceNotify.
func (c *Client) Subscribe(key CharKey) {
	ch, gen, ok := c.lookup(key)
	if !ok {
		return
	}
	c.mu.Lock()
	already := c.subs[key]
	c.mu.Unlock()
	if already {
		return
	}
	if props, known := ch.Properties(); known && !props.CanNotify() {
		c.send(SubscribedMsg{Gen: gen, Key: key, Err: ErrNotifyNotSupported})
		return
	}

	go func() {
		err := ch.Subscribe(func(value []byte) {
			if !c.current(gen) {
				return
			}
			c.send(ValueMsg{Gen: gen, Key: key, Source: SourceNotify, Value: value, At: time.Now()})
		})
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.send(SubscribedMsg{Gen: gen, Key: key, Err: errors.Wrap(err, "subscribe")})
			return
		}
		c.mu.Lock()
		if c.gen == gen && c.subs != nil {
			c.subs[key] = true
		}
		c.mu.Unlock()
		c.send(SubscribedMsg{Gen: gen, Key: key, Enabled: true})
	}()
}

// Unsubscribe disables notifications for the characteristic at key.
func (c *Client) Unsubscribe(key CharKey) {
	ch, gen, ok := c.lookup(key)
	if !ok {
		return
	}
	c.mu.Lock()
	subscribed := c.subs[key]
	c.mu.Unlock()
	if !subscribed {
		return
	}

	go func() {
		err := ch.Unsubscribe()
		if !c.current(gen) {
			return
		}
		if err != nil {
			c.send(SubscribedMsg{Gen: gen, Key: key, Enabled: true, Err: errors.Wrap(err, "unsubscribe")})
			return
		}
		c.mu.Lock()
		if c.gen == gen && c.subs != nil {
			delete(c.subs, key)
		}
		c.mu.Unlock()
		c.send(SubscribedMsg{Gen: gen, Key: key, Enabled: false})
	}()
}

// Disconnect tears down the current connection. DisconnectedMsg (Err
// nil) arrives once the link is released.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateDisconnecting {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	address := c.address
	conn := c.conn
	c.state = StateDisconnecting
	c.mu.Unlock()

	c.send(ConnStateMsg{Gen: gen, Address: address, State: StateDisconnecting})

	go func() {
		if conn != nil {
			_ = conn.Disconnect()
		}
		c.mu.Lock()
		if c.gen == gen {
			c.resetLocked()
		}
		c.mu.Unlock()
		c.log.WithField("address", address).Info("disconnected")
		c.send(DisconnectedMsg{Gen: gen, Address: address})
	}()
}

// handleDrop services unsolicited drops reported by the backend.
func (c *Client) handleDrop(address string) {
	c.mu.Lock()
	if c.state == StateIdle || !strings.EqualFold(c.address, address) {
		c.mu.Unlock()
		return
	}
	if c.state == StateDisconnecting {
		// Requested teardown already in flight; its goroutine reports.
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.resetLocked()
	c.mu.Unlock()

	c.log.WithField("address", address).Warn("connection lost")
	c.send(DisconnectedMsg{Gen: gen, Address: address, Err: ErrConnectionLost})
}

// fail tears down the current attempt and reports err, unless the
// generation already moved on (an unsolicited drop won the race).
func (c *Client) fail(gen uint64, address string, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.resetLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Disconnect()
	}
	c.log.WithField("address", address).WithError(err).Warn("connection failed")
	c.send(ConnErrorMsg{Gen: gen, Address: address, Err: err})
}

// resetLocked clears session state. Callers hold mu.
func (c *Client) resetLocked() {
	c.state = StateIdle
	c.address = ""
	c.conn = nil
	c.services = nil
	c.chars = nil
	c.subs = nil
}

// lookup resolves key to its characteristic under the current
// generation.
func (c *Client) lookup(key CharKey) (Characteristic, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil, 0, false
	}
	chars := c.chars[key.Service]
	if key.Char < 0 || key.Char >= len(chars) {
		return nil, 0, false
	}
	return chars[key.Char], c.gen, true
}

// current reports whether gen is still the live session.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state != StateIdle
}

func (c *Client) send(msg tea.Msg) {
	c.mu.Lock()
	s := c.sender
	c.mu.Unlock()
	if s != nil {
		s.Send(msg)
	}
}

func charInfos(chars []Characteristic) []CharInfo {
	infos := make([]CharInfo, len(chars))
	for i, ch := range chars {
		props, known := ch.Properties()
		infos[i] = CharInfo{
			UUID:        ch.UUID(),
			Props:       props,
			PropsKnown:  known,
			Descriptors: ch.Descriptors(),
		}
	}
	return infos
}
