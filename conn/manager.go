package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/corvid-labs/modelwire/dispatch"
	"github.com/corvid-labs/modelwire/packet"
	"github.com/corvid-labs/modelwire/wire"
)

// HTTPGetter fetches a URL's body as a string. Shared with
// dispatch.HTTPGetter so a single collaborator backs server-config
// discovery and EXTDATA indirection.
type HTTPGetter = dispatch.HTTPGetter

// Login version codes distinguish binary-socket from WebSocket clients
// in the LOGIN frame's Arg1 field.
const (
	loginVersionBinary    int32 = 0
	loginVersionWebSocket int32 = 1
)

const (
	defaultSilenceTimeout      = 90 * time.Second
	defaultStateSilenceTimeout = 120 * time.Second
	defaultLoginTimeout        = 30 * time.Second
	defaultConnectionTimeout   = 15 * time.Second

	binaryWatchdogTick     = 120 * time.Second
	webSocketWatchdogTick  = 15 * time.Second

	backoffBase = 5.0
	backoffMult = 1.5
	backoffCap  = 2400.0
)

var (
	// ErrLoginTimeout is fired as a disconnect reason when the server
	// never answers a LOGIN within LoginTimeout.
	ErrLoginTimeout = errors.New("conn: login timed out")
	// ErrSilenceTimeout is fired as a disconnect reason when no traffic
	// (or no state-class traffic, while logged in) arrives in time.
	ErrSilenceTimeout = errors.New("conn: silence watchdog tripped")
	// ErrNotConnected is returned by EnsureConnected when there is no
	// connection attempt to wait on: the manager is Idle, or the caller
	// passed timeoutMs == -1.
	ErrNotConnected = errors.New("conn: not connected")
	// ErrEnsureConnectedCanceled is returned by EnsureConnected when a
	// manual disconnect happens while it is waiting.
	ErrEnsureConnectedCanceled = errors.New("conn: ensureConnected canceled by manual disconnect")
)

// guestUsernamePrefix and guestPassword identify the recyclable guest
// login: a username the server assigned (e.g. "Guest12345") that must
// be reset back to the literal "guest" before the next login attempt,
// so the handshake re-requests a fresh assigned name instead of
// replaying a stale one.
const (
	guestUsernamePrefix = "Guest"
	guestPassword       = "guest"
)

// Config configures a Manager. Zero-valued durations fall back to the
// documented defaults.
type Config struct {
	UseWebSockets      bool
	CamYou             bool // selects the alternate site (host + "2/" username prefix)
	Host               string
	AltHost            string
	CachedServerConfig bool

	SilenceTimeout      time.Duration
	StateSilenceTimeout time.Duration
	LoginTimeout        time.Duration
	ConnectionTimeout   time.Duration

	Getter HTTPGetter
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = defaultSilenceTimeout
	}
	if c.StateSilenceTimeout == 0 {
		c.StateSilenceTimeout = defaultStateSilenceTimeout
	}
	if c.LoginTimeout == 0 {
		c.LoginTimeout = defaultLoginTimeout
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// DisconnectEvent describes why an Active connection dropped.
type DisconnectEvent struct {
	Err    error
	Manual bool
}

// Manager owns one logical connection's lifecycle: discovery, dialing,
// the login handshake, the silence watchdogs, and capped
// exponential-backoff reconnection. The zero value is not usable;
// construct with New.
type Manager struct {
	cfg  Config
	disp *dispatch.Dispatcher

	mu    sync.Mutex
	cond  *sync.Cond
	state State

	transportConn Connection
	manual        bool
	loggedIn      bool

	currentBackoff float64

	loginUsername string
	loginPassword string
	doLogin       bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	writeMu sync.Mutex

	// OnDisconnect, if set, is called (in a new goroutine) whenever the
	// connection transitions out of Active unexpectedly.
	OnDisconnect func(DisconnectEvent)
}

// New constructs a Manager bound to disp. disp.Handle is invoked for
// every frame decoded off the wire; Manager also registers itself as
// disp's Sender so the dispatcher can issue the post-login ROOMDATA
// subscription.
func New(cfg Config, disp *dispatch.Dispatcher) *Manager {
	m := &Manager{
		cfg:            cfg.withDefaults(),
		disp:           disp,
		state:          StateIdle,
		currentBackoff: backoffBase,
	}
	m.cond = sync.NewCond(&m.mu)
	disp.SetSender(m)
	return m
}

// State returns the manager's current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials a server and, if doLogin is true, performs the login
// handshake with username/password. Calling Connect while Pending waits
// for the in-flight attempt to settle; calling it while Active is a
// no-op.
func (m *Manager) Connect(ctx context.Context, doLogin bool, username, password string) error {
	m.mu.Lock()
	switch m.state {
	case StateActive:
		m.mu.Unlock()
		return nil
	case StatePending:
		for m.state == StatePending {
			m.cond.Wait()
		}
		state := m.state
		m.mu.Unlock()
		if state == StateActive {
			return nil
		}
		return fmt.Errorf("conn: connection attempt failed")
	}

	m.manual = false
	m.state = StatePending
	m.doLogin = doLogin
	m.loginUsername = username
	m.loginPassword = password
	m.mu.Unlock()

	return m.dialAndLogin(ctx, doLogin, username, password)
}

// EnsureConnected never dials itself: it resolves immediately if
// Active, rejects immediately with ErrNotConnected if Idle or if
// timeoutMs == -1, and otherwise waits for the next CLIENT_CONNECTED
// event (rejecting on CLIENT_MANUAL_DISCONNECT or on timeoutMs
// elapsing; timeoutMs <= 0, other than the -1 sentinel, waits with no
// additional deadline beyond ctx).
func (m *Manager) EnsureConnected(ctx context.Context, timeoutMs int) error {
	if m.State() == StateActive {
		return nil
	}
	if timeoutMs == -1 {
		return ErrNotConnected
	}

	connected := make(chan struct{}, 1)
	manualDisc := make(chan struct{}, 1)
	unsubConnected := m.disp.Bus.On("CLIENT_CONNECTED", func(dispatch.Event) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer unsubConnected()
	unsubManual := m.disp.Bus.On("CLIENT_MANUAL_DISCONNECT", func(dispatch.Event) {
		select {
		case manualDisc <- struct{}{}:
		default:
		}
	})
	defer unsubManual()

	// Re-check after subscribing: closes the race where the state
	// transitioned between the first check above and these Ons taking
	// effect.
	switch m.State() {
	case StateActive:
		return nil
	case StateIdle:
		return ErrNotConnected
	}

	waitCtx := ctx
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	select {
	case <-connected:
		return nil
	case <-manualDisc:
		return ErrEnsureConnectedCanceled
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

func (m *Manager) host() string {
	if m.cfg.CamYou && m.cfg.AltHost != "" {
		return m.cfg.AltHost
	}
	return m.cfg.Host
}

func (m *Manager) dialAndLogin(ctx context.Context, doLogin bool, username, password string) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectionTimeout)
	defer cancel()

	target := m.host()
	if !m.cfg.CachedServerConfig && m.cfg.Getter != nil {
		if picked, err := discoverServerConfig(dialCtx, m.cfg.Getter, m.host(), m.cfg.UseWebSockets); err == nil {
			target = picked
		} else {
			m.cfg.Logger.Warn("server config discovery failed, falling back to configured host", "err", err)
		}
	}

	var c Connection
	var err error
	if m.cfg.UseWebSockets {
		c, err = dialWebSocket(dialCtx, target)
	} else {
		c, err = dialTCP(dialCtx, target)
	}
	if err != nil {
		m.transitionToIdleAfterFailure()
		return fmt.Errorf("conn: dial %s: %w", target, err)
	}

	if m.cfg.UseWebSockets {
		if err := c.Write(dialCtx, []byte("hello fcserver\n\x00")); err != nil {
			c.Close()
			m.transitionToIdleAfterFailure()
			return fmt.Errorf("conn: websocket hello: %w", err)
		}
	}

	m.mu.Lock()
	m.transportConn = c
	m.state = StateActive
	m.currentBackoff = backoffBase
	m.mu.Unlock()
	m.cond.Broadcast()

	m.disp.Reset()
	m.disp.Bus.Emit(dispatch.Event{Name: "CLIENT_CONNECTED"})

	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.readLoop()
	m.wg.Add(1)
	go m.watchdogLoop()

	if doLogin {
		if err := m.login(ctx, username, password); err != nil {
			m.handleDisconnect(err)
			return err
		}
	}

	return nil
}

func (m *Manager) transitionToIdleAfterFailure() {
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	m.cond.Broadcast()
}

func (m *Manager) login(ctx context.Context, username, password string) error {
	prefix := ""
	if m.cfg.CamYou {
		prefix = "2/"
	}
	version := loginVersionBinary
	if m.cfg.UseWebSockets {
		version = loginVersionWebSocket
	}

	loginCtx, cancel := context.WithTimeout(ctx, m.cfg.LoginTimeout)
	defer cancel()

	frame := wire.Frame{
		FCType:  wire.FCTypeLOGIN,
		Arg1:    version,
		Payload: []byte(prefix + username + ":" + password),
	}
	if err := m.Send(loginCtx, frame); err != nil {
		return fmt.Errorf("conn: send login: %w", err)
	}

	select {
	case <-loginCtx.Done():
		return ErrLoginTimeout
	case <-m.done:
		return fmt.Errorf("conn: disconnected during login")
	case <-m.awaitSessionID():
		m.mu.Lock()
		m.loggedIn = true
		m.mu.Unlock()
		return nil
	}
}

// awaitSessionID polls for a nonzero dispatcher session id. The
// dispatcher records it synchronously inside Handle on LOGIN success, so
// a short poll is sufficient and avoids adding a second signaling path
// into the dispatcher just for this one handshake step.
func (m *Manager) awaitSessionID() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if m.disp.SessionID() != 0 {
				close(ch)
				return
			}
			select {
			case <-m.done:
				return
			default:
			}
		}
	}()
	return ch
}

// Send implements dispatch.Sender: it encodes f for the active dialect
// and writes it, serialized against concurrent senders.
func (m *Manager) Send(ctx context.Context, f wire.Frame) error {
	m.mu.Lock()
	c := m.transportConn
	useWS := m.cfg.UseWebSockets
	m.mu.Unlock()
	if c == nil {
		return errors.New("conn: not connected")
	}

	var codec wire.Codec = wire.BinaryCodec{}
	if useWS {
		codec = wire.TextCodec{}
	}
	data, err := codec.Encode(f)
	if err != nil {
		return fmt.Errorf("conn: encode frame: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return c.Write(ctx, data)
}

// Disconnect tears the connection down deliberately: no reconnect is
// armed afterward.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	c := m.transportConn
	m.state = StateIdle
	m.loggedIn = false
	m.mu.Unlock()

	m.closeOnce.Do(func() {
		if m.done != nil {
			close(m.done)
		}
	})
	if c != nil {
		c.Close()
	}
	m.wg.Wait()
	m.closeOnce = sync.Once{}
	m.cond.Broadcast()
}

func (m *Manager) readLoop() {
	defer m.wg.Done()

	var codec wire.Codec = wire.BinaryCodec{}
	isText := false
	if m.cfg.UseWebSockets {
		codec = wire.TextCodec{}
		isText = true
	}

	var buf []byte
	for {
		chunk, err := m.transportConn.Read(context.Background())
		if err != nil {
			select {
			case <-m.done:
				return
			default:
				m.handleDisconnect(err)
				return
			}
		}
		buf = append(buf, chunk...)

		frames, rest, err := codec.Decode(buf)
		if err != nil {
			m.cfg.Logger.Error("frame decode error", "err", err)
			m.handleDisconnect(err)
			return
		}
		buf = rest

		for _, f := range frames {
			pkt := packet.New(f, isText)
			if err := m.disp.Handle(context.Background(), pkt); err != nil {
				m.cfg.Logger.Warn("fatal packet handling error", "err", err)
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *Manager) watchdogLoop() {
	defer m.wg.Done()

	tick := binaryWatchdogTick
	if m.cfg.UseWebSockets {
		tick = webSocketWatchdogTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if m.State() != StateActive {
				continue
			}
			now := time.Now()
			silent := now.Sub(m.disp.LastPacketAt()) > m.cfg.SilenceTimeout
			stateSilent := m.isLoggedIn() && now.Sub(m.disp.LastStatePacketAt()) > m.cfg.StateSilenceTimeout
			if silent || stateSilent {
				m.handleDisconnect(ErrSilenceTimeout)
				return
			}
			_ = m.Send(context.Background(), wire.Frame{FCType: wire.FCTypeNULL})
		}
	}
}

func (m *Manager) isLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// handleDisconnect moves Active -> Pending, fires OnDisconnect, and
// arms the backoff reconnect timer unless the disconnect was manual.
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	manual := m.manual
	m.state = StatePending
	m.loggedIn = false
	c := m.transportConn
	m.transportConn = nil
	delay := m.currentBackoff
	m.currentBackoff = nextBackoff(m.currentBackoff)
	if m.loginPassword == guestPassword && strings.HasPrefix(m.loginUsername, guestUsernamePrefix) {
		m.loginUsername = guestPassword
	}
	doLogin, username, password := m.doLogin, m.loginUsername, m.loginPassword
	m.mu.Unlock()
	m.cond.Broadcast()

	if c != nil {
		c.Close()
	}
	m.closeOnce.Do(func() {
		if m.done != nil {
			close(m.done)
		}
	})
	m.closeOnce = sync.Once{}

	if m.OnDisconnect != nil {
		go m.OnDisconnect(DisconnectEvent{Err: err, Manual: manual})
	}
	m.disp.Bus.Emit(dispatch.Event{Name: "CLIENT_DISCONNECTED"})

	if manual {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		m.cond.Broadcast()
		return
	}

	go m.reconnectAfter(time.Duration(delay*float64(time.Second)), doLogin, username, password)
}

func (m *Manager) reconnectAfter(delay time.Duration, doLogin bool, username, password string) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	<-timer.C

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	m.cond.Broadcast()

	if err := m.Connect(context.Background(), doLogin, username, password); err != nil {
		m.cfg.Logger.Warn("reconnect attempt failed", "err", err)
	}
}

// nextBackoff advances the reconnect delay: ×1.5, capped at 2400s.
func nextBackoff(prev float64) float64 {
	next := prev * backoffMult
	if next > backoffCap {
		return backoffCap
	}
	return next
}
