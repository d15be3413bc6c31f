// Package dispatch implements the packet dispatcher: per-fcType side
// effects against a model registry, driven by decoded packets from the
// wire/packet layers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-labs/modelwire/listdata"
	"github.com/corvid-labs/modelwire/packet"
	"github.com/corvid-labs/modelwire/registry"
	"github.com/corvid-labs/modelwire/wire"
)

// ErrLoginRejected is returned by Handle when the server reports a
// nonzero login-failure code on a LOGIN packet. It is the one case
// where Handle surfaces a hard error; every other malformed or
// unexpected packet is logged and skipped.
var ErrLoginRejected = errors.New("dispatch: login rejected by server")

// Sender issues an outbound frame on the active connection. conn.Manager
// implements this; it is defined here (not imported from conn) to avoid
// a conn <-> dispatch import cycle, since conn.Manager depends on
// Dispatcher.Handle.
type Sender interface {
	Send(ctx context.Context, f wire.Frame) error
}

// HTTPGetter fetches a URL's body as a string, used for EXTDATA
// indirection.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (string, error)
}

// stateClassTypes mirrors the DETAILS handler's candidate-state-update
// list; the silence watchdog uses the same set to decide
// whether "state traffic", not just any traffic, is still flowing.
var stateClassTypes = map[wire.FCType]bool{
	wire.FCTypeDETAILS:        true,
	wire.FCTypeROOMHELPER:     true,
	wire.FCTypeSESSIONSTATE:   true,
	wire.FCTypeADDFRIEND:      true,
	wire.FCTypeADDIGNORE:      true,
	wire.FCTypeCMESG:          true,
	wire.FCTypePMESG:          true,
	wire.FCTypeTXPROFILE:      true,
	wire.FCTypeUSERNAMELOOKUP: true,
	wire.FCTypeMYCAMSTATE:     true,
	wire.FCTypeMYWEBCAM:       true,
	wire.FCTypeJOINCHAN:       true,
}

// IsStateClass reports whether t is one of the "state class" packet
// types the state-silence watchdog tracks.
func IsStateClass(t wire.FCType) bool {
	return stateClassTypes[t]
}

// Dispatcher holds a registry, the collaborators needed for EXTDATA
// indirection and the post-login subscription, and the event bus
// decoded packets are published through.
type Dispatcher struct {
	Reg    *registry.Registry
	Bus    *EventBus
	Getter HTTPGetter
	Host   string
	Logger *slog.Logger

	sender Sender

	mu               sync.Mutex
	sessionID        int32
	completedModels  bool
	completedTags    bool
	modelsLoadedSent bool

	lastPacketAt      atomic.Int64
	lastStatePacketAt atomic.Int64
}

// New constructs a Dispatcher. getter and logger may be nil; a nil
// getter disables EXTDATA indirection (fetch errors are already
// swallowed, so this degrades to a logged no-op), and a nil logger
// falls back to slog.Default().
func New(reg *registry.Registry, getter HTTPGetter, host string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Reg:    reg,
		Bus:    NewEventBus(),
		Getter: getter,
		Host:   host,
		Logger: logger,
	}
}

// SetSender wires the outbound transport used for the post-login
// ROOMDATA subscription command.
func (d *Dispatcher) SetSender(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sender = s
}

// SessionID returns the session id recorded on the last successful
// LOGIN, or 0 before login.
func (d *Dispatcher) SessionID() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Reset clears per-connection latch state (completedModels/
// completedTags/modelsLoadedSent, sessionID). Called by the connection
// manager at the start of each connection attempt.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = 0
	d.completedModels = false
	d.completedTags = false
	d.modelsLoadedSent = false
}

// LastPacketAt returns the time of the most recently handled packet.
func (d *Dispatcher) LastPacketAt() time.Time {
	return time.Unix(0, d.lastPacketAt.Load())
}

// LastStatePacketAt returns the time of the most recently handled
// state-class packet (the DETAILS-handler type list).
func (d *Dispatcher) LastStatePacketAt() time.Time {
	return time.Unix(0, d.lastStatePacketAt.Load())
}

// Handle runs the per-type side effects for pkt against the registry,
// then emits the type-named and wildcard ANY events. It returns a
// non-nil error only for ErrLoginRejected; every other malformed or
// unrecognized packet is logged at Debug/Warn and skipped.
func (d *Dispatcher) Handle(ctx context.Context, pkt *packet.Packet) error {
	now := time.Now().UnixNano()
	d.lastPacketAt.Store(now)
	if IsStateClass(pkt.FCType) {
		d.lastStatePacketAt.Store(now)
	}

	var err error
	switch pkt.FCType {
	case wire.FCTypeLOGIN:
		err = d.handleLogin(ctx, pkt)
	case wire.FCTypeDETAILS, wire.FCTypeROOMHELPER, wire.FCTypeSESSIONSTATE,
		wire.FCTypeADDFRIEND, wire.FCTypeADDIGNORE, wire.FCTypeCMESG, wire.FCTypePMESG,
		wire.FCTypeTXPROFILE, wire.FCTypeUSERNAMELOOKUP, wire.FCTypeMYCAMSTATE,
		wire.FCTypeMYWEBCAM, wire.FCTypeJOINCHAN:
		d.handleCandidateStateUpdate(pkt)
	case wire.FCTypeTAGS:
		d.handleTags(pkt)
	case wire.FCTypeBOOKMARKS:
		d.handleBookmarks(pkt)
	case wire.FCTypeEXTDATA:
		d.handleExtData(ctx, pkt)
	case wire.FCTypeMANAGELIST:
		d.handleManageList(pkt)
	case wire.FCTypeROOMDATA:
		d.handleRoomData(pkt)
	}

	d.Bus.Emit(Event{Name: pkt.FCType.String(), Packet: pkt})
	d.Bus.Emit(Event{Name: "ANY", Packet: pkt})

	if err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) handleLogin(ctx context.Context, pkt *packet.Packet) error {
	if pkt.Arg1 != 0 {
		d.Logger.Warn("login rejected", "code", pkt.Arg1)
		return ErrLoginRejected
	}

	d.mu.Lock()
	d.sessionID = pkt.To
	sender := d.sender
	d.mu.Unlock()

	username, _ := packet.AsRawString(pkt.Message)
	d.Logger.Info("login accepted", "sessionId", pkt.To, "uid", pkt.Arg2, "username", username)

	if sender == nil {
		return nil
	}
	sub := wire.Frame{FCType: wire.FCTypeROOMDATA, To: pkt.To, Arg2: pkt.Arg2}
	if err := sender.Send(ctx, sub); err != nil {
		d.Logger.Warn("roomdata subscription send failed", "err", err)
	}
	return nil
}

func (d *Dispatcher) handleCandidateStateUpdate(pkt *packet.Packet) {
	if pkt.FCType == wire.FCTypeDETAILS && pkt.From == int32(wire.FCTypeTOKENINC) {
		return
	}
	if pkt.FCType == wire.FCTypeROOMHELPER && pkt.Arg2 < 100 {
		return
	}
	if pkt.FCType == wire.FCTypeJOINCHAN && pkt.Arg2 == wire.JoinActionPart {
		return
	}

	obj, ok := packet.AsStruct(pkt.Message)
	if !ok {
		return
	}

	uid := intField(obj, "uid")
	sid := intField(obj, "sid")
	if uid == 0 && sid > 0 {
		uid = sid
	}
	if uid == 0 {
		if about, ok := packet.AboutModel(pkt); ok {
			uid = about
		}
	}
	if uid == 0 {
		return
	}

	m, ok := d.resolveModel(uid, obj)
	if !ok {
		return
	}
	d.Reg.Merge(m, stateFromFields(obj))
}

// resolveModel implements the "only merge when lv == Model or lv is
// absent, auto-creating only for lv == Model" rule shared by the
// DETAILS-group handler and list-ingestion handlers.
func (d *Dispatcher) resolveModel(uid int32, obj map[string]any) (*registry.Model, bool) {
	lvVal, present := obj["lv"]
	isModel := !present || int32(asFloat(lvVal)) == int32(registry.UserLevelModel)
	if isModel {
		return d.Reg.LookupOrCreate(uid), true
	}
	return d.Reg.Lookup(uid)
}

func (d *Dispatcher) handleTags(pkt *packet.Packet) {
	obj, ok := packet.AsStruct(pkt.Message)
	if !ok {
		return
	}
	d.mergeTagsMap(obj)
}

// mergeTagsMap implements the TAGS payload shape (uid-string -> tags[]),
// shared by the standalone TAGS handler and MANAGELIST's TAGS list.
func (d *Dispatcher) mergeTagsMap(obj map[string]any) {
	for uidStr, v := range obj {
		uid, err := strconv.Atoi(uidStr)
		if err != nil {
			continue
		}
		m, ok := d.Reg.Lookup(int32(uid))
		if !ok {
			continue
		}
		d.Reg.MergeTags(m, toStringSlice(v))
	}
}

func (d *Dispatcher) handleBookmarks(pkt *packet.Packet) {
	obj, ok := packet.AsStruct(pkt.Message)
	if !ok {
		return
	}
	entries, ok := obj["bookmarks"].([]any)
	if !ok {
		return
	}
	for _, e := range entries {
		em, ok := e.(map[string]any)
		if !ok {
			continue
		}
		uid := intField(em, "uid")
		if uid == 0 {
			continue
		}
		m, ok := d.Reg.Lookup(uid)
		if !ok {
			continue
		}
		d.Reg.Merge(m, stateFromFields(em))
	}
}

func (d *Dispatcher) handleExtData(ctx context.Context, pkt *packet.Packet) {
	if pkt.To != d.SessionID() || pkt.Arg2 != wire.FCWOptRedisJSON {
		return
	}
	if d.Getter == nil {
		d.Logger.Debug("extdata indirection requested but no HTTP getter configured")
		return
	}

	obj, ok := packet.AsStruct(pkt.Message)
	if !ok {
		return
	}
	url := fmt.Sprintf("https://www.%s/php/FcwExtResp.php?respkey=%v&type=%v&opts=%v&serv=%v",
		d.Host, obj["respkey"], obj["type"], obj["opts"], obj["serv"])

	body, err := d.Getter.Get(ctx, url)
	if err != nil {
		d.Logger.Warn("extdata fetch failed", "url", url, "err", err)
		return
	}

	msgObj, ok := obj["msg"].(map[string]any)
	if !ok {
		d.Logger.Debug("extdata payload missing msg envelope")
		return
	}
	synth := wire.Frame{
		FCType:  wire.FCType(intField(msgObj, "type")),
		From:    intField(msgObj, "from"),
		To:      intField(msgObj, "to"),
		Arg1:    intField(msgObj, "arg1"),
		Arg2:    intField(msgObj, "arg2"),
		Payload: []byte(body),
	}
	synthPkt := packet.New(synth, false)
	if err := d.Handle(ctx, synthPkt); err != nil {
		d.Logger.Warn("extdata re-dispatch failed", "err", err)
	}
}

func (d *Dispatcher) handleManageList(pkt *packet.Packet) {
	if pkt.Arg2 <= 0 {
		return
	}
	obj, ok := packet.AsStruct(pkt.Message)
	if !ok {
		return
	}
	rdata, ok := obj["rdata"]
	if !ok {
		return
	}
	kind, _ := obj["list"].(string)

	if kind == "TAGS" {
		if tagsObj, ok := rdata.(map[string]any); ok {
			d.mergeTagsMap(tagsObj)
		}
		d.mu.Lock()
		d.completedTags = true
		d.mu.Unlock()
		d.emitModelsLoadedIfReady()
		return
	}

	records, err := listdata.Decode(rdata)
	if err != nil {
		d.Logger.Debug("managelist decode failed", "list", kind, "err", err)
		return
	}
	for _, rec := range records {
		uid := rec.UID()
		if uid == 0 {
			if sid := rec.SID(); sid > 0 {
				uid = sid
			}
		}
		if uid == 0 {
			continue
		}
		m, ok := d.resolveModel(uid, rec.Fields)
		if !ok {
			continue
		}
		d.Reg.Merge(m, rec)
	}

	if kind == "CAMS" {
		d.mu.Lock()
		d.completedModels = true
		d.mu.Unlock()
		d.emitModelsLoadedIfReady()
	}
}

func (d *Dispatcher) emitModelsLoadedIfReady() {
	d.mu.Lock()
	ready := d.completedModels && d.completedTags && !d.modelsLoadedSent
	if ready {
		d.modelsLoadedSent = true
	}
	d.mu.Unlock()

	if ready {
		d.Bus.Emit(Event{Name: "CLIENT_MODELSLOADED"})
	}
}

func (d *Dispatcher) handleRoomData(pkt *packet.Packet) {
	if list, ok := packet.AsList(pkt.Message); ok {
		for i := 0; i+1 < len(list); i += 2 {
			d.applyRoomCount(int32(asFloat(list[i])), int32(asFloat(list[i+1])))
		}
		return
	}
	if obj, ok := packet.AsStruct(pkt.Message); ok {
		for uidStr, v := range obj {
			uid, err := strconv.Atoi(uidStr)
			if err != nil {
				continue
			}
			d.applyRoomCount(int32(uid), int32(asFloat(v)))
		}
	}
}

func (d *Dispatcher) applyRoomCount(uid, count int32) {
	m, ok := d.Reg.Lookup(uid)
	if !ok {
		return
	}
	state := registry.NewSessionState()
	state.Fields["rc"] = count
	d.Reg.MergeIntoBest(m, state)
}

func stateFromFields(obj map[string]any) *registry.SessionState {
	s := registry.NewSessionState()
	for k, v := range obj {
		s.Fields[k] = v
	}
	return s
}

func intField(obj map[string]any, key string) int32 {
	v, ok := obj[key]
	if !ok {
		return 0
	}
	return int32(asFloat(v))
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
