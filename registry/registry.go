// Package registry implements the process-scoped model registry and the
// session-merge algorithm: reconciling many independent, partially
// overlapping session snapshots per model into a single "best session"
// view, and publishing field-level change notifications.
package registry

import (
	"reflect"
	"sort"
	"sync"
)

// Registry is a process-scoped uid -> Model map plus its change-event
// plumbing. The zero value is not usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	models map[int32]*Model

	nextListenerID int64
	globalListeners map[string][]*listener

	globalBindings []*binding

	loggedInClients int
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		models:          make(map[int32]*Model),
		globalListeners: make(map[string][]*listener),
	}
}

// LookupOrCreate returns the model for uid, creating it (with only the
// synthetic offline session) if this is the first reference.
func (r *Registry) LookupOrCreate(uid int32) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupOrCreateLocked(uid)
}

func (r *Registry) lookupOrCreateLocked(uid int32) *Model {
	m, ok := r.models[uid]
	if !ok {
		m = newModel(uid)
		r.models[uid] = m
	}
	return m
}

// Lookup returns the model for uid without creating it.
func (r *Registry) Lookup(uid int32) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[uid]
	return m, ok
}

// Models returns a snapshot slice of every currently registered model.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// Reset clears the registry. Called when the count of logged-in,
// connected clients reaches zero.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[int32]*Model)
}

// AddLoggedInClient and RemoveLoggedInClient implement the refcount that
// guards Reset so a transient reconnect on one client doesn't discard
// state another client is still relying on.
func (r *Registry) AddLoggedInClient() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggedInClients++
}

// RemoveLoggedInClient decrements the refcount and resets the registry
// when it reaches zero.
func (r *Registry) RemoveLoggedInClient() {
	r.mu.Lock()
	r.loggedInClients--
	shouldReset := r.loggedInClients <= 0
	if shouldReset {
		r.loggedInClients = 0
	}
	r.mu.Unlock()
	if shouldReset {
		r.Reset()
	}
}

// overlayFields writes incoming onto stored field-by-field. Nested bags
// (m, u, s, x) are overlaid key-by-key. A write of nil ("undefined")
// leaves the field unchanged.
func overlayFields(stored, incoming *SessionState) {
	for k, v := range incoming.Fields {
		if v == nil {
			continue
		}
		if bagKeys[k] {
			incomingBag, ok := v.(map[string]any)
			if !ok {
				stored.Fields[k] = v
				continue
			}
			storedBag, ok := stored.Fields[k].(map[string]any)
			if !ok {
				storedBag = make(map[string]any, len(incomingBag))
				stored.Fields[k] = storedBag
			}
			for bk, bv := range incomingBag {
				if bv == nil {
					continue
				}
				storedBag[bk] = bv
			}
			continue
		}
		stored.Fields[k] = v
	}
}

// Merge reconciles incoming (keyed by its sid) into m's session table,
// recomputes the best session, and emits change events for every
// property whose effective value on the best session changed. The
// mutation and diff run under r.mu for atomicity; listener and binding
// callbacks run after it is released (see emit).
func (r *Registry) Merge(m *Model, incoming *SessionState) []ChangeEvent {
	r.mu.Lock()

	sid := incoming.SID()
	if incoming.UID() == 0 && sid > 0 {
		incoming.Fields["uid"] = sid
	}

	prevBest := m.Sessions[m.BestSessionID].Clone()

	stored, ok := m.Sessions[sid]
	if !ok {
		stored = NewSessionState()
		m.Sessions[sid] = stored
	}
	overlayFields(stored, incoming)

	m.BestSessionID = selectBest(m)
	newBest := m.Sessions[m.BestSessionID]

	events := diff(m, prevBest.Fields, newBest.Fields)
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
	return events
}

// MergeIntoBest overlays incoming directly onto m's currently selected
// best session, without sid-based bucketing or best-session
// recomputation. Used for updates that always target "whichever
// session the model currently presents" (e.g. live viewer counts)
// rather than a specific sid's snapshot.
func (r *Registry) MergeIntoBest(m *Model, incoming *SessionState) []ChangeEvent {
	r.mu.Lock()

	best := m.Sessions[m.BestSessionID]
	prev := best.Clone()
	overlayFields(best, incoming)
	events := diff(m, prev.Fields, best.Fields)
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
	return events
}

// MergeTags union-inserts tags into m.Tags and, if the set changed,
// emits a single "tags" change event.
func (r *Registry) MergeTags(m *Model, tags []string) bool {
	r.mu.Lock()

	prev := tagSlice(m.Tags)
	changed := false
	for _, t := range tags {
		if _, ok := m.Tags[t]; !ok {
			m.Tags[t] = struct{}{}
			changed = true
		}
	}
	if !changed {
		r.mu.Unlock()
		return false
	}
	ev := ChangeEvent{Model: m, Property: "tags", Previous: prev, Next: tagSlice(m.Tags)}
	r.mu.Unlock()

	r.emit(ev)
	return true
}

func tagSlice(tags map[string]struct{}) []string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// isOnline reports whether a session counts as online for best-session
// ranking. An absent vs (unknown) is treated as not-online: it must not
// outrank a session with a confirmed non-offline state.
func isOnline(s *SessionState) bool {
	vs, ok := s.VideoStateValue()
	return ok && vs != VideoStateOffline
}

// rankLess reports whether session a ranks below session b under the
// (isOnline, camScore, sid) lexicographic order.
func rankLess(aOnline bool, aScore float64, aSid int32, bOnline bool, bScore float64, bSid int32) bool {
	if aOnline != bOnline {
		return bOnline
	}
	if aScore != bScore {
		return aScore < bScore
	}
	return aSid < bSid
}

// selectBest chooses the session maximizing (isOnline, camScore, sid).
// The synthetic sid=0 offline session naturally loses to any other
// session (its sid is the lowest possible tie-breaker), so it is only
// ever selected when it is the sole session — no special-casing needed.
func selectBest(m *Model) int32 {
	var bestSid int32
	var bestOnline bool
	var bestScore float64
	first := true

	for sid, s := range m.Sessions {
		online := isOnline(s)
		score := s.CamScore()
		if first || rankLess(bestOnline, bestScore, bestSid, online, score, sid) {
			bestOnline, bestScore, bestSid = online, score, sid
			first = false
		}
	}
	return bestSid
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var keys []string
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// diff computes the change events between a session's previous and next
// field maps. It has no locking requirement of its own: callers pass
// already-cloned snapshots.
func diff(m *Model, prev, next map[string]any) []ChangeEvent {
	var events []ChangeEvent
	for _, k := range unionKeys(prev, next) {
		pv, pok := prev[k]
		nv, nok := next[k]
		if pok && nok && reflect.DeepEqual(pv, nv) {
			continue
		}
		if !pok && !nok {
			continue
		}
		events = append(events, ChangeEvent{Model: m, Property: k, Previous: pv, Next: nv})
	}
	return events
}
