// Package packet builds typed, immutable packet envelopes from decoded
// wire frames: it attempts payload decoding (URL-decode for the text
// dialect, then JSON) and exposes the chat/model-subject derivations used
// by the dispatcher.
package packet

import (
	"encoding/json"
	"net/url"

	"github.com/corvid-labs/modelwire/wire"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message is the tagged union of payload shapes a Packet may carry.
type Message interface {
	isMessage()
}

// Absent means the frame carried no payload bytes.
type Absent struct{}

func (Absent) isMessage() {}

// Raw means the payload did not parse as JSON; Text holds the (possibly
// URL-decoded) original string.
type Raw struct {
	Text string
}

func (Raw) isMessage() {}

// Structured means the payload parsed as JSON. Value can represent an
// object, array, number, string, bool, or null — structpb.Value already
// models exactly this union and round-trips through encoding/json.
type Structured struct {
	Value *structpb.Value
}

func (Structured) isMessage() {}

// Packet is an immutable decoded envelope.
type Packet struct {
	FCType        wire.FCType
	From          int32
	To            int32
	Arg1          int32
	Arg2          int32
	PayloadLength int
	Message       Message
}

// New builds a Packet from a decoded wire.Frame. isText selects whether
// the payload must be URL-decoded before the JSON parse attempt, per the
// text dialect's wire contract.
func New(f wire.Frame, isText bool) *Packet {
	return &Packet{
		FCType:        f.FCType,
		From:          f.From,
		To:            f.To,
		Arg1:          f.Arg1,
		Arg2:          f.Arg2,
		PayloadLength: len(f.Payload),
		Message:       decodeMessage(f.Payload, isText),
	}
}

func decodeMessage(payload []byte, isText bool) Message {
	if len(payload) == 0 {
		return Absent{}
	}

	text := string(payload)
	if isText {
		if decoded, err := url.QueryUnescape(text); err == nil {
			text = decoded
		}
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Raw{Text: text}
	}

	sv, err := structpb.NewValue(v)
	if err != nil {
		return Raw{Text: text}
	}

	return Structured{Value: sv}
}

// AsRawString returns the packet's payload as a string regardless of
// whether it parsed as JSON, for callers that only need best-effort text
// (e.g. logging).
func AsRawString(m Message) (string, bool) {
	switch v := m.(type) {
	case Raw:
		return v.Text, true
	case Structured:
		b, err := json.Marshal(v.Value.AsInterface())
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return "", false
	}
}

// AsStruct returns the structured payload's top-level object fields, or
// ok=false if the payload wasn't a JSON object.
func AsStruct(m Message) (map[string]any, bool) {
	s, ok := m.(Structured)
	if !ok {
		return nil, false
	}
	obj, ok := s.Value.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, false
	}
	return obj.StructValue.AsMap(), true
}

// AsList returns the structured payload's top-level array elements, or
// ok=false if the payload wasn't a JSON array.
func AsList(m Message) ([]any, bool) {
	s, ok := m.(Structured)
	if !ok {
		return nil, false
	}
	list, ok := s.Value.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, false
	}
	out := make([]any, len(list.ListValue.GetValues()))
	for i, v := range list.ListValue.GetValues() {
		out[i] = v.AsInterface()
	}
	return out, true
}
