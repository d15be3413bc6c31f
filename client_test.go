package modelwire

import (
	"context"
	"errors"
	"testing"

	"github.com/corvid-labs/modelwire/dispatch"
	"github.com/corvid-labs/modelwire/registry"
)

type errEncoder struct{ err error }

func (e errEncoder) Encode(string) (string, error) { return "", e.err }

func TestNewSharesRegistryViaWithRegistry(t *testing.T) {
	reg := registry.New()
	c := New(WithRegistry(reg))
	if c.Registry() != reg {
		t.Error("expected Client to use the shared registry passed via WithRegistry")
	}
}

func TestNewDefaultsToOwnRegistry(t *testing.T) {
	c1 := New()
	c2 := New()
	if c1.Registry() == c2.Registry() {
		t.Error("expected independent Clients to get independent registries by default")
	}
}

func TestTxCmdFailsWhenNotConnected(t *testing.T) {
	c := New()
	err := c.TxCmd(context.Background(), 0, 0, 0, 0, nil)
	if err == nil {
		t.Fatal("expected TxCmd to fail with no active connection")
	}
}

func TestSendChatPropagatesEncodeError(t *testing.T) {
	wantErr := errors.New("boom")
	c := New(WithEmoteEncoder(errEncoder{err: wantErr}))
	err := c.SendChat(context.Background(), 1, "hello")
	if !errors.Is(err, wantErr) {
		t.Errorf("SendChat err = %v, want wrapping %v", err, wantErr)
	}
}

func TestSendPMPropagatesEncodeError(t *testing.T) {
	wantErr := errors.New("boom")
	c := New(WithEmoteEncoder(errEncoder{err: wantErr}))
	err := c.SendPM(context.Background(), 1, "hello")
	if !errors.Is(err, wantErr) {
		t.Errorf("SendPM err = %v, want wrapping %v", err, wantErr)
	}
}

func TestJoinRoomFailsWhenNotConnected(t *testing.T) {
	c := New()
	if err := c.JoinRoom(context.Background(), 1); err == nil {
		t.Fatal("expected JoinRoom to fail with no active connection")
	}
}

func TestLeaveRoomNoOpWhenNotActive(t *testing.T) {
	c := New()
	if err := c.LeaveRoom(1); err != nil {
		t.Errorf("LeaveRoom on an idle connection should silently no-op, got %v", err)
	}
}

func TestQueryUserAdvancesQueryIDAndFailsWhenNotConnected(t *testing.T) {
	c := New()
	first := c.nextQueryID.Load()

	if _, _, err := c.QueryUser(context.Background(), 42); err == nil {
		t.Fatal("expected QueryUser to fail with no active connection")
	}
	if c.nextQueryID.Load() != first+1 {
		t.Errorf("nextQueryID = %d, want %d", c.nextQueryID.Load(), first+1)
	}

	if _, _, err := c.QueryUser(context.Background(), 43); err == nil {
		t.Fatal("expected second QueryUser to fail with no active connection")
	}
	if c.nextQueryID.Load() != first+2 {
		t.Errorf("nextQueryID after second call = %d, want %d", c.nextQueryID.Load(), first+2)
	}
}

func TestOnSubscribesToDispatcherBus(t *testing.T) {
	c := New()
	fired := false
	unsub := c.On("CUSTOM_TEST_EVENT", func(dispatch.Event) { fired = true })
	defer unsub()

	c.disp.Bus.Emit(dispatch.Event{Name: "CUSTOM_TEST_EVENT"})
	if !fired {
		t.Error("expected On's handler to fire on a matching bus event")
	}
}

func TestDisconnectWithoutConnectIsSafeAndEmitsManualDisconnect(t *testing.T) {
	c := New()
	fired := false
	unsub := c.On("CLIENT_MANUAL_DISCONNECT", func(dispatch.Event) { fired = true })
	defer unsub()

	c.Disconnect()
	if !fired {
		t.Error("expected Disconnect to emit CLIENT_MANUAL_DISCONNECT even when never connected")
	}
}

func TestDisconnectUncountsLoggedInClientOnlyOnce(t *testing.T) {
	reg := registry.New()
	c := New(WithRegistry(reg))

	c.countLoggedIn()
	c.countLoggedIn() // idempotent: must not double-count
	c.Disconnect()
	c.Disconnect() // idempotent: must not go negative

	// A fresh model merge after the refcount has dropped to zero should
	// still behave normally (Reset is only ever a cache-clear, never a
	// crash point), confirming the refcount arithmetic didn't underflow.
	m := reg.LookupOrCreate(1)
	if m == nil {
		t.Fatal("expected registry to remain usable after repeated Disconnect")
	}
}
