package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestBinaryEncodeDecodeRoundTrip(t *testing.T) {
	original := Frame{
		FCType:  FCTypeSESSIONSTATE,
		From:    1,
		To:      2,
		Arg1:    3,
		Arg2:    4,
		Payload: []byte(`{"uid":42}`),
	}

	encoded, err := BinaryCodec{}.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, rest, err := BinaryCodec{}.Decode(encoded)
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

	reencoded, err := BinaryCodec{}.Encode(decoded[0])
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(reencoded, encoded) {
		t.Error("encodeBinary(decodeBinary(b)) != b")
	}
}

func TestBinaryDecodeTwoConcatenatedFrames(t *testing.T) {
	login, _ := BinaryCodec{}.Encode(Frame{FCType: FCTypeLOGIN, To: 7, Arg2: 42, Payload: []byte("alice")})
	state, _ := BinaryCodec{}.Encode(Frame{FCType: FCTypeSESSIONSTATE, Payload: []byte(`{"uid":42}`)})

	buf := append(append([]byte{}, login...), state...)

	frames, rest, err := BinaryCodec{}.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %d bytes, want 0", len(rest))
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].FCType != FCTypeLOGIN || frames[0].To != 7 || frames[0].Arg2 != 42 {
		t.Errorf("frame 0 = %+v, want LOGIN sessionId=7 uid=42", frames[0])
	}
	if frames[1].FCType != FCTypeSESSIONSTATE {
		t.Errorf("frame 1 FCType = %v, want SESSIONSTATE", frames[1].FCType)
	}
}

func TestBinaryDecodePartialFrameByteByByte(t *testing.T) {
	full, _ := BinaryCodec{}.Encode(Frame{FCType: FCTypeSTATUS, Payload: []byte("hi")})

	var buf []byte
	var delivered int
	for i, b := range full {
		buf = append(buf, b)
		frames, rest, err := BinaryCodec{}.Decode(buf)
		if err != nil {
			t.Fatalf("Decode at byte %d: %v", i, err)
		}
		if i < len(full)-1 {
			if len(frames) != 0 {
				t.Fatalf("frame delivered early at byte %d", i)
			}
			buf = rest
		} else {
			delivered = len(frames)
			buf = rest
		}
	}
	if delivered != 1 {
		t.Errorf("delivered %d frames after final byte, want 1", delivered)
	}
}

func TestBinaryDecodeBadMagicIsFramingError(t *testing.T) {
	buf := make([]byte, binaryHeaderLen)
	_, _, err := BinaryCodec{}.Decode(buf)
	if err == nil {
		t.Fatal("expected framing error for bad magic")
	}
	if _, ok := err.(*FramingError); !ok {
		t.Errorf("err = %T, want *FramingError", err)
	}
}

func TestBinaryDecodeNeedsMoreData(t *testing.T) {
	buf := make([]byte, 4) // shorter than one header
	frames, rest, err := BinaryCodec{}.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 0 {
		t.Error("expected no frames for short buffer")
	}
	if len(rest) != 4 {
		t.Error("expected buffer to be returned unconsumed")
	}
}
