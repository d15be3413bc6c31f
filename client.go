// Package modelwire is the client facade: it wires the registry, packet
// dispatcher, and connection manager together behind a small operation
// set (Connect, JoinRoom, SendChat, QueryUser, ...), mirroring the way
// steamclient.Client composed its own collaborators behind one exported
// type.
package modelwire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corvid-labs/modelwire/conn"
	"github.com/corvid-labs/modelwire/dispatch"
	"github.com/corvid-labs/modelwire/emote"
	"github.com/corvid-labs/modelwire/httpfetch"
	"github.com/corvid-labs/modelwire/packet"
	"github.com/corvid-labs/modelwire/registry"
	"github.com/corvid-labs/modelwire/roomid"
	"github.com/corvid-labs/modelwire/wire"
)

// ErrJoinRejected is returned by JoinRoom when the server answers with a
// JOINCHAN(PART), ZBAN, or BANCHAN for the target room.
var ErrJoinRejected = errors.New("modelwire: join rejected")

// ErrDisconnected is returned to any in-flight JoinRoom/QueryUser waiter
// when Disconnect is called.
var ErrDisconnected = errors.New("modelwire: disconnected")

// queryFirstID is the first queryId handed out by QueryUser; values
// below it are reserved the way steamclient reserves its low request-id
// range for framework-internal traffic.
const queryFirstID = 20

// Client is a connected session against the service: a registry of
// known models, a dispatcher applying wire traffic to it, and a
// connection manager driving the socket lifecycle. The zero value is
// not usable; construct with New.
type Client struct {
	opts options
	reg  *registry.Registry
	disp *dispatch.Dispatcher
	conn *conn.Manager

	mu              sync.Mutex
	loggedInCounted bool

	nextQueryID atomic.Int32
}

// New constructs a Client. Without WithRegistry, each Client owns a
// private registry; pass WithRegistry to share one registry (and its
// logged-in-client refcounted Reset) across multiple Clients.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	reg := o.registry
	if reg == nil {
		reg = registry.New()
	}

	getter := o.getter
	if getter == nil {
		getter = httpfetch.New()
	}

	disp := dispatch.New(reg, getter, o.host, o.logger)

	connCfg := conn.Config{
		UseWebSockets:      o.useWebSockets,
		CamYou:             o.camYou,
		Host:               o.host,
		AltHost:            o.altHost,
		CachedServerConfig: o.cachedServerConfig,

		SilenceTimeout:      o.silenceTimeout,
		StateSilenceTimeout: o.stateSilenceTimeout,
		LoginTimeout:        o.loginTimeout,
		ConnectionTimeout:   o.connectionTimeout,

		Getter: getter,
		Logger: o.logger,
	}

	c := &Client{
		opts: o,
		reg:  reg,
		disp: disp,
		conn: conn.New(connCfg, disp),
	}
	c.nextQueryID.Store(queryFirstID)
	return c
}

// Registry returns the model registry this client merges wire updates
// into.
func (c *Client) Registry() *registry.Registry {
	return c.reg
}

// On subscribes fn to events named name (an fcType name, "ANY", or a
// CLIENT_* lifecycle event). The returned func removes the subscription.
func (c *Client) On(name string, fn func(dispatch.Event)) func() {
	return c.disp.Bus.On(name, dispatch.Handler(fn))
}

// Connect dials and, if doLogin is true, logs in with the credentials
// given via WithCredentials.
func (c *Client) Connect(ctx context.Context, doLogin bool) error {
	if err := c.conn.Connect(ctx, doLogin, c.opts.username, c.opts.password); err != nil {
		return err
	}
	if doLogin {
		c.countLoggedIn()
	}
	return nil
}

// EnsureConnected never dials: it resolves immediately if already
// Active, rejects immediately with conn.ErrNotConnected if Idle or if
// timeoutMs == -1, and otherwise waits for the next CLIENT_CONNECTED
// event, rejecting on CLIENT_MANUAL_DISCONNECT or on timeoutMs
// elapsing. Use Connect or ConnectAndWaitForModels to actually dial.
func (c *Client) EnsureConnected(ctx context.Context, timeoutMs int) error {
	return c.conn.EnsureConnected(ctx, timeoutMs)
}

// ConnectAndWaitForModels connects with login and blocks until the
// server has finished delivering its initial CAMS and TAGS lists (the
// CLIENT_MODELSLOADED event), or ctx is done first.
func (c *Client) ConnectAndWaitForModels(ctx context.Context) error {
	loaded := make(chan struct{})
	var once sync.Once
	unsub := c.On("CLIENT_MODELSLOADED", func(dispatch.Event) {
		once.Do(func() { close(loaded) })
	})
	defer unsub()

	if err := c.Connect(ctx, true); err != nil {
		return err
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) countLoggedIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedInCounted {
		return
	}
	c.loggedInCounted = true
	c.reg.AddLoggedInClient()
}

// Disconnect tears the connection down, releases this client's
// logged-in-client count on the registry, and cancels any in-flight
// JoinRoom/QueryUser waiter.
func (c *Client) Disconnect() {
	c.conn.Disconnect()

	c.mu.Lock()
	counted := c.loggedInCounted
	c.loggedInCounted = false
	c.mu.Unlock()
	if counted {
		c.reg.RemoveLoggedInClient()
	}

	c.disp.Bus.Emit(dispatch.Event{Name: "CLIENT_MANUAL_DISCONNECT"})
}

// JoinRoom sends JOINCHAN(JOIN) for id and waits for the server to
// confirm: the first CMESG or JOINCHAN(JOIN) concerning the target
// model resolves successfully, a JOINCHAN(PART)/ZBAN/BANCHAN concerning
// it resolves with ErrJoinRejected. Disconnect cancels the wait with
// ErrDisconnected.
func (c *Client) JoinRoom(ctx context.Context, id int32) error {
	target := roomid.ToUserID(id)
	result := make(chan error, 1)
	resolve := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	unsubs := make([]func(), 0, 4)
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	concernsTarget := func(ev dispatch.Event) bool {
		uid, ok := packet.AboutModel(ev.Packet)
		return ok && uid == target
	}

	unsubs = append(unsubs, c.On("CMESG", func(ev dispatch.Event) {
		if concernsTarget(ev) {
			resolve(nil)
		}
	}))
	unsubs = append(unsubs, c.On("JOINCHAN", func(ev dispatch.Event) {
		if !concernsTarget(ev) {
			return
		}
		if ev.Packet.Arg2 == wire.JoinActionPart {
			resolve(ErrJoinRejected)
			return
		}
		resolve(nil)
	}))
	unsubs = append(unsubs, c.On("ZBAN", func(ev dispatch.Event) {
		if concernsTarget(ev) {
			resolve(ErrJoinRejected)
		}
	}))
	unsubs = append(unsubs, c.On("BANCHAN", func(ev dispatch.Event) {
		if concernsTarget(ev) {
			resolve(ErrJoinRejected)
		}
	}))
	unsubs = append(unsubs, c.On("CLIENT_MANUAL_DISCONNECT", func(dispatch.Event) {
		resolve(ErrDisconnected)
	}))

	if err := c.TxCmd(ctx, wire.FCTypeJOINCHAN, roomid.ToRoomID(id), 0, wire.JoinActionJoin, nil); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveRoom sends JOINCHAN(PART) for id if the connection is Active; it
// is a silent no-op otherwise.
func (c *Client) LeaveRoom(id int32) error {
	if c.conn.State() != conn.StateActive {
		return nil
	}
	return c.TxCmd(context.Background(), wire.FCTypeJOINCHAN, roomid.ToRoomID(id), 0, wire.JoinActionPart, nil)
}

// SendChat emote-encodes msg and sends it as a CMESG to the room
// addressed by id.
func (c *Client) SendChat(ctx context.Context, id int32, msg string) error {
	encoded, err := c.opts.emoteEncoder.Encode(msg)
	if err != nil {
		return fmt.Errorf("modelwire: encode chat emotes: %w", err)
	}
	return c.TxCmd(ctx, wire.FCTypeCMESG, roomid.ToRoomID(id), 0, 0, []byte(encoded))
}

// SendPM emote-encodes msg and sends it as a PMESG to the user
// addressed by id.
func (c *Client) SendPM(ctx context.Context, id int32, msg string) error {
	encoded, err := c.opts.emoteEncoder.Encode(msg)
	if err != nil {
		return fmt.Errorf("modelwire: encode PM emotes: %w", err)
	}
	return c.TxCmd(ctx, wire.FCTypePMESG, roomid.ToUserID(id), 0, 0, []byte(encoded))
}

// QueryUser sends a USERNAMELOOKUP for userOrID and resolves with the
// first USERNAMELOOKUP response carrying the matching queryId. A
// string-typed response payload means "not found" (ok=false, no error).
func (c *Client) QueryUser(ctx context.Context, userOrID int32) (*registry.SessionState, bool, error) {
	queryID := c.nextQueryID.Add(1) - 1

	type lookupResult struct {
		state *registry.SessionState
		found bool
		err   error
	}
	result := make(chan lookupResult, 1)
	resolve := func(r lookupResult) {
		select {
		case result <- r:
		default:
		}
	}

	unsub := c.On("USERNAMELOOKUP", func(ev dispatch.Event) {
		if ev.Packet.Arg1 != queryID {
			return
		}
		// A payload that isn't a JSON object (a bare string, or raw
		// unparsed text) means "not found".
		obj, ok := packet.AsStruct(ev.Packet.Message)
		if !ok {
			resolve(lookupResult{found: false})
			return
		}
		resolve(lookupResult{state: stateFromMap(obj), found: true})
	})
	defer unsub()

	unsubDisc := c.On("CLIENT_MANUAL_DISCONNECT", func(dispatch.Event) {
		resolve(lookupResult{err: ErrDisconnected})
	})
	defer unsubDisc()

	if err := c.TxCmd(ctx, wire.FCTypeUSERNAMELOOKUP, 0, queryID, userOrID, nil); err != nil {
		return nil, false, err
	}

	select {
	case r := <-result:
		return r.state, r.found, r.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func stateFromMap(obj map[string]any) *registry.SessionState {
	s := registry.NewSessionState()
	for k, v := range obj {
		s.Fields[k] = v
	}
	return s
}

// TxCmd builds and sends a raw frame of the given fcType on the active
// connection. It fails immediately if there is no active transport.
func (c *Client) TxCmd(ctx context.Context, fcType wire.FCType, to, arg1, arg2 int32, payload []byte) error {
	return c.conn.Send(ctx, wire.Frame{
		FCType:  fcType,
		To:      to,
		Arg1:    arg1,
		Arg2:    arg2,
		Payload: payload,
	})
}
