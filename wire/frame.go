// Package wire implements the two framing dialects spoken by the
// chat/broadcast service: a binary length-prefixed socket dialect and a
// textual WebSocket dialect. Both carry the same logical frame shape.
package wire

import "fmt"

// FCType identifies a wire packet kind. Values are drawn from a finite,
// service-defined enumeration.
type FCType int32

// Packet kinds relied on by this module. FCTypeANY is synthetic: it never
// appears on the wire and is only used as the wildcard event name.
const (
	FCTypeNULL           FCType = 0
	FCTypeLOGIN          FCType = 1
	FCTypeADDFRIEND      FCType = 2
	FCTypePMESG          FCType = 3
	FCTypeSTATUS         FCType = 4
	FCTypeDETAILS        FCType = 5
	FCTypeTOKENINC       FCType = 6
	FCTypeADDIGNORE      FCType = 7
	FCTypeCMESG          FCType = 20
	FCTypeJOINCHAN       FCType = 21
	FCTypeBANCHAN        FCType = 26
	FCTypeTAGS           FCType = 50
	FCTypeZBAN           FCType = 85
	FCTypeSESSIONSTATE   FCType = 90
	FCTypeTXPROFILE      FCType = 108
	FCTypeUSERNAMELOOKUP FCType = 109
	FCTypeROOMDATA       FCType = 114
	FCTypeMANAGELIST     FCType = 140
	FCTypeROOMHELPER     FCType = 141
	FCTypeBOOKMARKS      FCType = 145
	FCTypeEXTDATA        FCType = 151
	FCTypeMETRICS        FCType = 157
	FCTypeMYWEBCAM       FCType = 158
	FCTypeMYCAMSTATE     FCType = 160

	FCTypeANY FCType = -1
)

var fcTypeNames = map[FCType]string{
	FCTypeNULL:           "NULL",
	FCTypeLOGIN:          "LOGIN",
	FCTypeADDFRIEND:      "ADDFRIEND",
	FCTypePMESG:          "PMESG",
	FCTypeSTATUS:         "STATUS",
	FCTypeDETAILS:        "DETAILS",
	FCTypeTOKENINC:       "TOKENINC",
	FCTypeADDIGNORE:      "ADDIGNORE",
	FCTypeCMESG:          "CMESG",
	FCTypeJOINCHAN:       "JOINCHAN",
	FCTypeBANCHAN:        "BANCHAN",
	FCTypeTAGS:           "TAGS",
	FCTypeZBAN:           "ZBAN",
	FCTypeSESSIONSTATE:   "SESSIONSTATE",
	FCTypeTXPROFILE:      "TXPROFILE",
	FCTypeUSERNAMELOOKUP: "USERNAMELOOKUP",
	FCTypeROOMDATA:       "ROOMDATA",
	FCTypeMANAGELIST:     "MANAGELIST",
	FCTypeROOMHELPER:     "ROOMHELPER",
	FCTypeBOOKMARKS:      "BOOKMARKS",
	FCTypeEXTDATA:        "EXTDATA",
	FCTypeMETRICS:        "METRICS",
	FCTypeMYWEBCAM:       "MYWEBCAM",
	FCTypeMYCAMSTATE:     "MYCAMSTATE",
	FCTypeANY:            "ANY",
}

func (t FCType) String() string {
	if name, ok := fcTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FCType(%d)", int32(t))
}

// JOINCHAN secondary actions, carried in Arg2.
const (
	JoinActionJoin int32 = 0
	JoinActionPart int32 = 1
)

// FCWOptRedisJSON is the FCWOPT value that marks an EXTDATA packet as an
// HTTP-indirected payload (fetch-and-reinject) rather than an inline one.
const FCWOptRedisJSON int32 = 1

// Frame is the logical wire envelope shared by both dialects: five
// signed 32-bit fields plus an opaque, still-undecoded UTF-8 payload.
// Frame carries exactly the bytes that were on the wire so that encoding
// a decoded Frame reproduces the original bytes.
type Frame struct {
	FCType FCType
	From   int32
	To     int32
	Arg1   int32
	Arg2   int32
	// Payload is the raw payload bytes, or nil if payloadLength was 0.
	Payload []byte
}

// PayloadLength returns the byte length of Payload before decoding.
func (f Frame) PayloadLength() int {
	return len(f.Payload)
}

// Codec encodes and decodes Frames for one wire dialect.
type Codec interface {
	// Decode consumes as many complete frames as possible from buf and
	// returns them along with the unconsumed remainder. A partial frame at
	// the end of buf is never an error: it is left in rest for the next
	// call once more bytes arrive.
	Decode(buf []byte) (frames []Frame, rest []byte, err error)
	// Encode serializes a single outbound Frame.
	Encode(f Frame) ([]byte, error)
}
