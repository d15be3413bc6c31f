package wire

import (
	"encoding/binary"
	"fmt"
)

// BinaryMagic is the fixed sentinel that begins every binary-dialect
// frame. Any other value is a fatal framing error.
const BinaryMagic int32 = -2027771214

const binaryHeaderInts = 7 // MAGIC, fcType, nFrom, nTo, nArg1, nArg2, payloadLength
const binaryHeaderLen = binaryHeaderInts * 4

// FramingError indicates malformed framing that requires dropping the
// connection (bad magic, or an unparseable length tag on the text dialect).
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: framing error: %s", e.Reason)
}

// BinaryCodec implements the binary length-prefixed socket dialect.
type BinaryCodec struct{}

func (BinaryCodec) Decode(buf []byte) ([]Frame, []byte, error) {
	var frames []Frame

	for {
		if len(buf) < binaryHeaderLen {
			return frames, buf, nil
		}

		magic := int32(binary.BigEndian.Uint32(buf[0:4]))
		if magic != BinaryMagic {
			return frames, buf, &FramingError{Reason: fmt.Sprintf("bad magic: %d", magic)}
		}

		fcType := FCType(int32(binary.BigEndian.Uint32(buf[4:8])))
		from := int32(binary.BigEndian.Uint32(buf[8:12]))
		to := int32(binary.BigEndian.Uint32(buf[12:16]))
		arg1 := int32(binary.BigEndian.Uint32(buf[16:20]))
		arg2 := int32(binary.BigEndian.Uint32(buf[20:24]))
		payloadLen := int32(binary.BigEndian.Uint32(buf[24:28]))

		if payloadLen < 0 {
			return frames, buf, &FramingError{Reason: fmt.Sprintf("negative payload length: %d", payloadLen)}
		}

		total := binaryHeaderLen + int(payloadLen)
		if len(buf) < total {
			return frames, buf, nil // need more data
		}

		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			copy(payload, buf[binaryHeaderLen:total])
		}

		frames = append(frames, Frame{
			FCType:  fcType,
			From:    from,
			To:      to,
			Arg1:    arg1,
			Arg2:    arg2,
			Payload: payload,
		})

		buf = buf[total:]
	}
}

func (BinaryCodec) Encode(f Frame) ([]byte, error) {
	buf := make([]byte, binaryHeaderLen+len(f.Payload))
	magic := BinaryMagic
	binary.BigEndian.PutUint32(buf[0:4], uint32(magic))
	binary.BigEndian.PutUint32(buf[4:8], uint32(f.FCType))
	binary.BigEndian.PutUint32(buf[8:12], uint32(f.From))
	binary.BigEndian.PutUint32(buf[12:16], uint32(f.To))
	binary.BigEndian.PutUint32(buf[16:20], uint32(f.Arg1))
	binary.BigEndian.PutUint32(buf[20:24], uint32(f.Arg2))
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(f.Payload)))
	copy(buf[binaryHeaderLen:], f.Payload)
	return buf, nil
}
