package registry

// Model is a broadcaster, identified by uid. It always holds at least the
// synthetic offline session (sid=0).
type Model struct {
	UID           int32
	Sessions      map[int32]*SessionState
	BestSessionID int32
	Tags          map[string]struct{}

	listeners map[string][]*listener // property name -> subscribers; "ANY" is the wildcard
	bindings  []*binding              // "when" bindings registered on this model
}

type listener struct {
	id int64
	fn ListenerFunc
}

// ListenerFunc receives a property-change event.
type ListenerFunc func(ev ChangeEvent)

// ChangeEvent describes one observed property change on a model's best
// session.
type ChangeEvent struct {
	Model    *Model
	Property string
	Previous any
	Next     any
}

func newModel(uid int32) *Model {
	m := &Model{
		UID:      uid,
		Sessions: map[int32]*SessionState{0: offlineSession()},
		Tags:     make(map[string]struct{}),
		listeners: make(map[string][]*listener),
	}
	return m
}

// Best returns the model's currently selected best session, or nil if
// somehow no sessions exist (should not happen: the offline session is
// always present).
func (m *Model) Best() *SessionState {
	return m.Sessions[m.BestSessionID]
}

// HasTag reports whether the model carries the given tag.
func (m *Model) HasTag(tag string) bool {
	_, ok := m.Tags[tag]
	return ok
}
