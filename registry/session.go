package registry

// UserLevel distinguishes models from other account kinds reported by the
// service. Only Model is privileged (auto-creates a registry entry);
// every other confirmed level must already exist to be merged.
type UserLevel int32

const (
	UserLevelModel   UserLevel = 0
	UserLevelPremium UserLevel = 1
	UserLevelBasic   UserLevel = 2
)

// VideoState is the known enumeration of session video states. An absent
// vs is "unknown", not VideoStateOffline.
type VideoState int32

const (
	VideoStateOffline    VideoState = 0
	VideoStateAway       VideoState = 2
	VideoStatePrivate    VideoState = 11
	VideoStateGroupShow  VideoState = 12
	VideoStatePublic     VideoState = 13
	VideoStateC2C        VideoState = 14
)

// bagKeys are the nested sub-bag properties that must be overlaid
// key-by-key instead of replaced wholesale.
var bagKeys = map[string]bool{"m": true, "u": true, "s": true, "x": true}

// SessionState is one snapshot of a session: a property-name to value
// mapping, where nested bags (m, u, s, x) are themselves
// map[string]any. Unknown keys are preserved verbatim.
type SessionState struct {
	Fields map[string]any
}

// NewSessionState returns an empty session state.
func NewSessionState() *SessionState {
	return &SessionState{Fields: make(map[string]any)}
}

// Clone returns a deep-enough copy: top-level fields and nested bags are
// copied, scalar values are shared (they are never mutated in place).
func (s *SessionState) Clone() *SessionState {
	out := NewSessionState()
	for k, v := range s.Fields {
		if bag, ok := v.(map[string]any); ok {
			nb := make(map[string]any, len(bag))
			for bk, bv := range bag {
				nb[bk] = bv
			}
			out.Fields[k] = nb
			continue
		}
		out.Fields[k] = v
	}
	return out
}

func (s *SessionState) get(key string) (any, bool) {
	v, ok := s.Fields[key]
	return v, ok
}

func (s *SessionState) intField(key string) (int32, bool) {
	v, ok := s.get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), true
	case float64:
		return int32(n), true
	default:
		return 0, false
	}
}

func (s *SessionState) floatField(key string) (float64, bool) {
	v, ok := s.get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// SID returns the session id. Per spec, sid is never negative; sid==0 is
// the synthetic offline session.
func (s *SessionState) SID() int32 {
	v, _ := s.intField("sid")
	return v
}

// UID returns the user id the session belongs to (0 if unset/same-as-sid).
func (s *SessionState) UID() int32 {
	v, _ := s.intField("uid")
	return v
}

// Level returns the reported user level, if present.
func (s *SessionState) Level() (UserLevel, bool) {
	v, ok := s.intField("lv")
	return UserLevel(v), ok
}

// VideoStateValue returns the reported video state. An absent vs is reported
// as ok=false ("unknown"), never as VideoStateOffline.
func (s *SessionState) VideoStateValue() (VideoState, bool) {
	v, ok := s.intField("vs")
	return VideoState(v), ok
}

// ViewerCount returns the reported viewer count ("rc"), if present.
func (s *SessionState) ViewerCount() (int32, bool) {
	return s.intField("rc")
}

// CamScore returns the reported camscore, defaulting to 0 when absent
// (per the best-session selection rule).
func (s *SessionState) CamScore() float64 {
	v, _ := s.floatField("camscore")
	return v
}

// DisplayName returns the reported display name ("nm"), if present.
func (s *SessionState) DisplayName() (string, bool) {
	v, ok := s.get("nm")
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// Topic returns the reported topic, if present.
func (s *SessionState) Topic() (string, bool) {
	v, ok := s.get("topic")
	if !ok {
		return "", false
	}
	t, ok := v.(string)
	return t, ok
}

// offlineSession returns the synthetic offline session for a newly
// created model (sid=0, vs=Offline).
func offlineSession() *SessionState {
	s := NewSessionState()
	s.Fields["sid"] = int32(0)
	s.Fields["vs"] = int32(VideoStateOffline)
	return s
}
