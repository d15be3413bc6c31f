// Package roomid normalizes between the service's two overlapping integer
// id spaces: a "room id" space (used to address chat rooms/sessions on
// the wire) and a "user id" space (the stable identifier for a model or
// user). The band constants are unexplained in the original client; they
// are reproduced as fixed, self-consistent offsets rather than
// rationalized.
package roomid

// Id bands, largest offset first. A room id at or above a given
// threshold belongs to that band; ToUserID subtracts the band's base to
// recover the underlying user id.
const (
	Offset1e9       int32 = 1000000000
	CamChanIDStart  int32 = 400000000
	Offset3e8       int32 = 300000000
	SessChanIDStart int32 = 200000000
	ChannelIDStart  int32 = 100000
)

// ToUserID strips whichever band id belongs to, returning the
// underlying user id. Ids below every band's threshold are unchanged.
func ToUserID(id int32) int32 {
	switch {
	case id >= Offset1e9:
		return id - Offset1e9
	case id >= CamChanIDStart:
		return id - CamChanIDStart
	case id >= Offset3e8:
		return id - Offset3e8
	case id >= SessChanIDStart:
		return id - SessChanIDStart
	case id >= ChannelIDStart:
		return id - ChannelIDStart
	default:
		return id
	}
}

// ToRoomID normalizes id to a user id and adds the public-room base, so
// that ToRoomID is idempotent regardless of whether id was already a
// room id or a user id.
func ToRoomID(id int32) int32 {
	return ToUserID(id) + ChannelIDStart
}
