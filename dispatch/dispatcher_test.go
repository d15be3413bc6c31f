package dispatch

import (
	"context"
	"testing"

	"github.com/corvid-labs/modelwire/packet"
	"github.com/corvid-labs/modelwire/registry"
	"github.com/corvid-labs/modelwire/wire"
)

type fakeGetter struct {
	body string
	err  error
	gotURL string
}

func (f *fakeGetter) Get(ctx context.Context, url string) (string, error) {
	f.gotURL = url
	return f.body, f.err
}

func newTestDispatcher(getter HTTPGetter) *Dispatcher {
	return New(registry.New(), getter, "example.test", nil)
}

func buildPacket(t *testing.T, fc wire.FCType, from, to, arg1, arg2 int32, jsonBody string) *packet.Packet {
	t.Helper()
	return packet.New(wire.Frame{FCType: fc, From: from, To: to, Arg1: arg1, Arg2: arg2, Payload: []byte(jsonBody)}, false)
}

func TestHandleLoginRejectedReturnsError(t *testing.T) {
	d := newTestDispatcher(nil)
	pkt := buildPacket(t, wire.FCTypeLOGIN, 0, 7, 1, 0, `"denied"`)

	err := d.Handle(context.Background(), pkt)
	if err == nil {
		t.Fatal("expected ErrLoginRejected")
	}
}

func TestHandleLoginAcceptedRecordsSessionID(t *testing.T) {
	d := newTestDispatcher(nil)
	pkt := buildPacket(t, wire.FCTypeLOGIN, 0, 7, 0, 42, `"alice"`)

	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.SessionID() != 7 {
		t.Errorf("sessionID = %d, want 7", d.SessionID())
	}
}

func TestHandleDetailsMergesModelAndSkipsNonModel(t *testing.T) {
	d := newTestDispatcher(nil)
	ctx := context.Background()

	pkt := buildPacket(t, wire.FCTypeDETAILS, 0, 0, 0, 0, `{"uid":5,"sid":1,"vs":13,"camscore":10}`)
	if err := d.Handle(ctx, pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	m, ok := d.Reg.Lookup(5)
	if !ok {
		t.Fatal("expected model 5 to be auto-created")
	}
	if m.Best().CamScore() != 10 {
		t.Errorf("camscore = %v, want 10", m.Best().CamScore())
	}

	pkt2 := buildPacket(t, wire.FCTypeDETAILS, 0, 0, 0, 0, `{"uid":99,"sid":1,"lv":2}`)
	if err := d.Handle(ctx, pkt2); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := d.Reg.Lookup(99); ok {
		t.Error("non-model (lv=2) must not auto-create a registry entry")
	}
}

func TestHandleDetailsSkipsTokenincSender(t *testing.T) {
	d := newTestDispatcher(nil)
	pkt := buildPacket(t, wire.FCTypeDETAILS, int32(wire.FCTypeTOKENINC), 0, 0, 0, `{"uid":11,"sid":1}`)
	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := d.Reg.Lookup(11); ok {
		t.Error("DETAILS from TOKENINC sender must be skipped")
	}
}

func TestHandleExtDataFetchesAndRedispatches(t *testing.T) {
	getter := &fakeGetter{body: `{"uid":3,"sid":1,"camscore":77}`}
	d := newTestDispatcher(getter)

	loginPkt := buildPacket(t, wire.FCTypeLOGIN, 0, 7, 0, 1, `"alice"`)
	if err := d.Handle(context.Background(), loginPkt); err != nil {
		t.Fatalf("login Handle: %v", err)
	}

	msg := `{"respkey":"k","type":"t","opts":"o","serv":"s","msg":{"type":5,"from":0,"to":0,"arg1":0,"arg2":0}}`
	extPkt := buildPacket(t, wire.FCTypeEXTDATA, 0, 7, 0, wire.FCWOptRedisJSON, msg)

	if err := d.Handle(context.Background(), extPkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if getter.gotURL == "" {
		t.Fatal("expected EXTDATA to issue an HTTP fetch")
	}
	m, ok := d.Reg.Lookup(3)
	if !ok {
		t.Fatal("expected the re-dispatched DETAILS packet to merge model 3")
	}
	if m.Best().CamScore() != 77 {
		t.Errorf("camscore = %v, want 77", m.Best().CamScore())
	}
}

func TestHandleExtDataSkipsWhenSessionMismatch(t *testing.T) {
	getter := &fakeGetter{body: `{}`}
	d := newTestDispatcher(getter)

	pkt := buildPacket(t, wire.FCTypeEXTDATA, 0, 999, 0, wire.FCWOptRedisJSON, `{}`)
	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if getter.gotURL != "" {
		t.Error("expected no fetch when nTo doesn't match the current sessionId")
	}
}

func TestManageListEmitsModelsLoadedOnceWhenBothListsComplete(t *testing.T) {
	d := newTestDispatcher(nil)
	ctx := context.Background()

	var loadedCount int
	unsub := d.Bus.On("CLIENT_MODELSLOADED", func(ev Event) { loadedCount++ })
	defer unsub()

	d.Reg.LookupOrCreate(1)

	camsBody := `{"list":"CAMS","rdata":[["uid","sid"],[1,10]]}`
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, camsBody)); err != nil {
		t.Fatalf("Handle CAMS: %v", err)
	}
	if loadedCount != 0 {
		t.Fatal("MODELSLOADED must not fire until both lists complete")
	}

	tagsBody := `{"list":"TAGS","rdata":{"1":["a","b"]}}`
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, tagsBody)); err != nil {
		t.Fatalf("Handle TAGS: %v", err)
	}
	if loadedCount != 1 {
		t.Fatalf("loadedCount = %d, want 1", loadedCount)
	}

	// A subsequent CAMS/TAGS pair on the same connection must not re-fire.
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, camsBody)); err != nil {
		t.Fatalf("Handle CAMS again: %v", err)
	}
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, tagsBody)); err != nil {
		t.Fatalf("Handle TAGS again: %v", err)
	}
	if loadedCount != 1 {
		t.Fatalf("loadedCount = %d after repeat, want still 1 (fires once per connection)", loadedCount)
	}

	d.Reset()
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, camsBody)); err != nil {
		t.Fatalf("Handle CAMS after reset: %v", err)
	}
	if err := d.Handle(ctx, buildPacket(t, wire.FCTypeMANAGELIST, 0, 0, 0, 1, tagsBody)); err != nil {
		t.Fatalf("Handle TAGS after reset: %v", err)
	}
	if loadedCount != 2 {
		t.Fatalf("loadedCount = %d after Reset, want 2 (latch rearms per connection)", loadedCount)
	}
}

func TestHandleRoomDataFlatArrayUpdatesViewerCount(t *testing.T) {
	d := newTestDispatcher(nil)
	m := d.Reg.LookupOrCreate(4)
	d.Reg.Merge(m, func() *registry.SessionState {
		s := registry.NewSessionState()
		s.Fields["sid"] = int32(1)
		s.Fields["vs"] = int32(registry.VideoStatePublic)
		return s
	}())

	pkt := buildPacket(t, wire.FCTypeROOMDATA, 0, 0, 0, 0, `[4, 123]`)
	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rc, ok := m.Best().ViewerCount()
	if !ok || rc != 123 {
		t.Errorf("viewer count = %v, ok=%v, want 123/true", rc, ok)
	}
}

func TestHandleRoomDataSkipsUnknownModel(t *testing.T) {
	d := newTestDispatcher(nil)
	pkt := buildPacket(t, wire.FCTypeROOMDATA, 0, 0, 0, 0, `[999, 5]`)
	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := d.Reg.Lookup(999); ok {
		t.Error("ROOMDATA must not create unknown models")
	}
}

func TestEveryPacketEmitsTypeAndAnyEvents(t *testing.T) {
	d := newTestDispatcher(nil)

	var typeFired, anyFired bool
	d.Bus.On("STATUS", func(ev Event) { typeFired = true })
	d.Bus.On("ANY", func(ev Event) { anyFired = true })

	pkt := buildPacket(t, wire.FCTypeSTATUS, 0, 0, 0, 0, "")
	if err := d.Handle(context.Background(), pkt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !typeFired || !anyFired {
		t.Errorf("typeFired=%v anyFired=%v, want both true", typeFired, anyFired)
	}
}
