package packet

import (
	"testing"

	"github.com/corvid-labs/modelwire/wire"
)

func TestNewAbsentPayload(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeNULL}, false)
	if _, ok := p.Message.(Absent); !ok {
		t.Errorf("Message = %T, want Absent", p.Message)
	}
	if p.PayloadLength != 0 {
		t.Errorf("PayloadLength = %d, want 0", p.PayloadLength)
	}
}

func TestNewStructuredPayload(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeSESSIONSTATE, Payload: []byte(`{"uid":42,"sid":7}`)}, false)
	obj, ok := AsStruct(p.Message)
	if !ok {
		t.Fatalf("Message = %T, want Structured", p.Message)
	}
	if obj["uid"] != float64(42) {
		t.Errorf("uid = %v, want 42", obj["uid"])
	}
}

func TestNewRawPayloadFallback(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeSTATUS, Payload: []byte("not json")}, false)
	raw, ok := p.Message.(Raw)
	if !ok {
		t.Fatalf("Message = %T, want Raw", p.Message)
	}
	if raw.Text != "not json" {
		t.Errorf("Text = %q, want %q", raw.Text, "not json")
	}
}

func TestNewTextDialectURLDecodes(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeSESSIONSTATE, Payload: []byte(`%7B%22uid%22%3A5%7D`)}, true)
	obj, ok := AsStruct(p.Message)
	if !ok {
		t.Fatalf("Message = %T, want Structured", p.Message)
	}
	if obj["uid"] != float64(5) {
		t.Errorf("uid = %v, want 5", obj["uid"])
	}
}

func TestAboutModelFromTarget(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeCMESG, To: 100042 + 1000000000}, false)
	uid, ok := AboutModel(p)
	if !ok {
		t.Fatal("AboutModel ok = false")
	}
	if uid != 100042 {
		t.Errorf("uid = %d, want 100042", uid)
	}
}

func TestAboutModelFromPayloadUsesSidWhenUidZero(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeSESSIONSTATE, Payload: []byte(`{"uid":0,"sid":55}`)}, false)
	uid, ok := AboutModel(p)
	if !ok {
		t.Fatal("AboutModel ok = false")
	}
	if uid != 55 {
		t.Errorf("uid = %d, want 55", uid)
	}
}

func TestChatStringReplacesEmotes(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeCMESG, Payload: []byte(`{"nm":"alice","msg":"hi #~ue,a1b2.gif,heart~#"}`)}, false)
	s, ok := ChatString(p)
	if !ok {
		t.Fatal("ChatString ok = false")
	}
	want := "alice: hi :heart"
	if s != want {
		t.Errorf("ChatString = %q, want %q", s, want)
	}
}

func TestChatStringUndefinedForOtherTypes(t *testing.T) {
	p := New(wire.Frame{FCType: wire.FCTypeSESSIONSTATE, Payload: []byte(`{}`)}, false)
	if _, ok := ChatString(p); ok {
		t.Error("ChatString ok = true, want false for non-chat packet")
	}
}
