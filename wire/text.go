package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// noisePattern recognizes the start of a plausible text-dialect frame: a
// run of at least five digits (the 4-digit length tag, merged with the
// start of the fcType token) followed by four more space-separated
// integer fields.
var noisePattern = regexp.MustCompile(`^\d{4}\d+ \d+ \d+ \d+ \d+`)

const textLengthTagLen = 4
const textFrameSuffix = "\n\x00"

// TextCodec implements the textual WebSocket dialect.
type TextCodec struct{}

// discardNoise drops leading bytes until buf looks like the start of a
// valid frame, or fewer than five bytes remain.
func discardNoise(buf []byte) []byte {
	for len(buf) >= 5 && !noisePattern.Match(buf) {
		buf = buf[1:]
	}
	return buf
}

func (TextCodec) Decode(buf []byte) ([]Frame, []byte, error) {
	var frames []Frame

	buf = discardNoise(buf)

	for {
		if len(buf) < textLengthTagLen {
			return frames, buf, nil
		}

		bodyLen, err := strconv.Atoi(string(buf[:textLengthTagLen]))
		if err != nil {
			return frames, buf, &FramingError{Reason: fmt.Sprintf("unparseable length tag: %q", buf[:textLengthTagLen])}
		}

		total := textLengthTagLen + bodyLen
		if len(buf) < total {
			return frames, buf, nil // need more data
		}

		body := string(buf[textLengthTagLen:total])
		f, err := parseTextBody(body)
		if err != nil {
			return frames, buf, err
		}
		frames = append(frames, f)

		buf = discardNoise(buf[total:])
	}
}

func parseTextBody(body string) (Frame, error) {
	body = strings.TrimSuffix(body, textFrameSuffix)
	body = strings.TrimSuffix(body, "\x00")
	body = strings.TrimSuffix(body, "\n")

	parts := strings.SplitN(body, " ", 6)
	if len(parts) < 5 {
		return Frame{}, &FramingError{Reason: fmt.Sprintf("text body has %d fields, want at least 5", len(parts))}
	}

	ints := make([]int32, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseInt(parts[i], 10, 32)
		if err != nil {
			return Frame{}, &FramingError{Reason: fmt.Sprintf("field %d not an integer: %q", i, parts[i])}
		}
		ints[i] = int32(v)
	}

	var payload []byte
	if len(parts) == 6 {
		payload = []byte(parts[5])
	}

	return Frame{
		FCType:  FCType(ints[0]),
		From:    ints[1],
		To:      ints[2],
		Arg1:    ints[3],
		Arg2:    ints[4],
		Payload: payload,
	}, nil
}

func (TextCodec) Encode(f Frame) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %d %d %d %d", int32(f.FCType), f.From, f.To, f.Arg1, f.Arg2)
	if len(f.Payload) > 0 {
		b.WriteByte(' ')
		b.Write(f.Payload)
	}
	b.WriteString(textFrameSuffix)
	return []byte(b.String()), nil
}
