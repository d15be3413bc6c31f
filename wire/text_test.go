package wire

import (
	"fmt"
	"reflect"
	"testing"
)

// wrapWithLengthTag builds a server-framed text message: a 4-digit length
// tag followed by the encoded body, matching what TextCodec.Decode expects
// on the inbound, multiplexed stream.
func wrapWithLengthTag(body []byte) []byte {
	return append([]byte(fmt.Sprintf("%04d", len(body))), body...)
}

func TestTextEncodeDecodeRoundTrip(t *testing.T) {
	original := Frame{FCType: FCTypeSESSIONSTATE, From: 1, To: 2, Arg1: 3, Arg2: 4, Payload: []byte(`{"uid":42}`)}

	encoded, err := TextCodec{}.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	framed := wrapWithLengthTag(encoded)
	decoded, rest, err := TextCodec{}.Decode(framed)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %d bytes, want 0", len(rest))
	}
	if len(decoded) != 1 {
		t.Fatalf("got %d frames, want 1", len(decoded))
	}
	if !reflect.DeepEqual(decoded[0], original) {
		t.Errorf("decoded = %+v, want %+v", decoded[0], original)
	}
}

func TestTextDecodeNoiseFilter(t *testing.T) {
	goodBody, _ := TextCodec{}.Encode(Frame{FCType: 1, From: 1, To: 0, Arg1: 0, Arg2: 0, Payload: []byte("{}")})
	good := wrapWithLengthTag(goodBody)

	buf := append([]byte("garbage0123 5 6 7 8 9 "), good...)

	frames, _, err := TextCodec{}.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].FCType != 1 {
		t.Errorf("FCType = %v, want 1", frames[0].FCType)
	}
}

func TestTextDecodeNeedsMoreData(t *testing.T) {
	buf := []byte("00991 2 3 4 5 partial")
	frames, rest, err := TextCodec{}.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 0 {
		t.Error("expected no frames for a partial body")
	}
	if len(rest) == 0 {
		t.Error("expected unconsumed bytes to be retained")
	}
}

func TestTextDecodeTwoConcatenatedFrames(t *testing.T) {
	b1, _ := TextCodec{}.Encode(Frame{FCType: FCTypeLOGIN, From: 0, To: 7, Arg1: 0, Arg2: 42, Payload: []byte("alice")})
	b2, _ := TextCodec{}.Encode(Frame{FCType: FCTypeSESSIONSTATE, Payload: []byte(`{"uid":42}`)})

	buf := append(wrapWithLengthTag(b1), wrapWithLengthTag(b2)...)

	frames, rest, err := TextCodec{}.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %d bytes, want 0", len(rest))
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
}
