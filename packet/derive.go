package packet

import (
	"regexp"

	"github.com/corvid-labs/modelwire/roomid"
	"github.com/corvid-labs/modelwire/wire"
)

// emotePattern matches the service's inline emote markup, e.g.
// "#~ue,a1b2c3.gif,heart~#", replaced in ChatString with ":heart".
var emotePattern = regexp.MustCompile(`#~ue,[0-9a-fA-F]+\.gif,(\w+)~#`)

// subjectField reports, per packet type, whether AboutModel takes "the
// subject" from the payload (usePayload). Its field result is always 0;
// the envelope field is chosen in AboutModel itself.
func subjectField(t wire.FCType) (field int32, usePayload bool) {
	switch t {
	case wire.FCTypeCMESG, wire.FCTypeJOINCHAN, wire.FCTypeZBAN, wire.FCTypeBANCHAN, wire.FCTypeROOMHELPER:
		return 0, false // resolved from To below
	case wire.FCTypePMESG, wire.FCTypeTOKENINC:
		return 0, false
	case wire.FCTypeDETAILS, wire.FCTypeSESSIONSTATE, wire.FCTypeADDFRIEND, wire.FCTypeADDIGNORE,
		wire.FCTypeTXPROFILE, wire.FCTypeUSERNAMELOOKUP, wire.FCTypeMYCAMSTATE, wire.FCTypeMYWEBCAM:
		return 0, true
	default:
		return 0, false
	}
}

// AboutModel derives the model uid a packet concerns, if any. For
// room/tip/chat/PM-shaped packets this is the normalized target id (the
// one of nTo/nArg2/nFrom that is semantically "the subject"); for
// session/details-shaped packets it is the payload's uid (or sid, used as
// uid when uid is absent/zero).
func AboutModel(p *Packet) (uid int32, ok bool) {
	_, usePayload := subjectField(p.FCType)
	if usePayload {
		if obj, ok := AsStruct(p.Message); ok {
			return uidFromPayload(obj)
		}
		return 0, false
	}

	switch p.FCType {
	case wire.FCTypeCMESG, wire.FCTypeJOINCHAN, wire.FCTypeZBAN, wire.FCTypeBANCHAN, wire.FCTypeROOMHELPER:
		return roomid.ToUserID(p.To), true
	case wire.FCTypePMESG:
		return roomid.ToUserID(p.To), true
	case wire.FCTypeTOKENINC:
		return roomid.ToUserID(p.Arg2), true
	default:
		return 0, false
	}
}

func uidFromPayload(obj map[string]any) (int32, bool) {
	uid := intField(obj, "uid")
	sid := intField(obj, "sid")
	if uid == 0 && sid > 0 {
		return sid, true
	}
	if uid != 0 {
		return uid, true
	}
	return 0, false
}

func intField(obj map[string]any, key string) int32 {
	v, ok := obj[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int32(n)
	case int32:
		return n
	case int:
		return int32(n)
	default:
		return 0
	}
}

// ChatString renders a human-readable "username: text" form for chat/PM
// types, with inline emote markup replaced by ":code". It is only
// defined for CMESG/PMESG-shaped packets.
func ChatString(p *Packet) (string, bool) {
	if p.FCType != wire.FCTypeCMESG && p.FCType != wire.FCTypePMESG {
		return "", false
	}

	obj, ok := AsStruct(p.Message)
	if !ok {
		return "", false
	}

	username, _ := obj["nm"].(string)
	text, _ := obj["msg"].(string)
	if username == "" && text == "" {
		return "", false
	}

	text = emotePattern.ReplaceAllString(text, ":$1")
	return username + ": " + text, true
}
