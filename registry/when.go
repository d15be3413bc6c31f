package registry

// PredicateFunc evaluates a condition against a model's current state.
type PredicateFunc func(m *Model) bool

// EdgeFunc is invoked on a predicate's rising or falling edge.
type EdgeFunc func(m *Model)

// binding is a registered "when" predicate and its edge callbacks. It
// remembers the last evaluation result per model so callbacks only fire
// on a genuine transition, not on every re-evaluation.
type binding struct {
	id               int64
	predicate        PredicateFunc
	onTrue           EdgeFunc
	onFalseAfterTrue EdgeFunc
	lastResult       map[int32]bool
}

func newBinding(id int64, predicate PredicateFunc, onTrue, onFalseAfterTrue EdgeFunc) *binding {
	return &binding{
		id:               id,
		predicate:        predicate,
		onTrue:           onTrue,
		onFalseAfterTrue: onFalseAfterTrue,
		lastResult:       make(map[int32]bool),
	}
}

func (b *binding) evaluate(m *Model) {
	result := b.predicate(m)
	prev := b.lastResult[m.UID]
	b.lastResult[m.UID] = result
	if result && !prev {
		if b.onTrue != nil {
			b.onTrue(m)
		}
		return
	}
	if !result && prev {
		if b.onFalseAfterTrue != nil {
			b.onFalseAfterTrue(m)
		}
	}
}

// On registers fn to be called whenever property changes on model's best
// session. property == "ANY" subscribes to every property on that model.
// The returned func removes the subscription.
func (r *Registry) On(model *Model, property string, fn ListenerFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListenerID++
	id := r.nextListenerID
	l := &listener{id: id, fn: fn}
	model.listeners[property] = append(model.listeners[property], l)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		removeListener(model.listeners, property, id)
	}
}

// OnAny registers fn for changes of property on every model.
// property == "ANY" matches any property.
func (r *Registry) OnAny(property string, fn ListenerFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListenerID++
	id := r.nextListenerID
	l := &listener{id: id, fn: fn}
	r.globalListeners[property] = append(r.globalListeners[property], l)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		removeListener(r.globalListeners, property, id)
	}
}

func removeListener(m map[string][]*listener, property string, id int64) {
	ls := m[property]
	for i, l := range ls {
		if l.id == id {
			m[property] = append(ls[:i], ls[i+1:]...)
			return
		}
	}
}

// When registers an edge-triggered binding on a single model: onTrue
// fires each time predicate goes from false to true, onFalseAfterTrue
// fires each time it goes from true back to false. The predicate is
// first evaluated at registration. The returned func removes the binding.
func (r *Registry) When(model *Model, predicate PredicateFunc, onTrue, onFalseAfterTrue EdgeFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListenerID++
	id := r.nextListenerID
	b := newBinding(id, predicate, onTrue, onFalseAfterTrue)
	model.bindings = append(model.bindings, b)
	b.evaluate(model)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		model.bindings = removeBinding(model.bindings, id)
	}
}

// WhenAny registers predicate against every model currently in the
// registry and every model created afterward.
func (r *Registry) WhenAny(predicate PredicateFunc, onTrue, onFalseAfterTrue EdgeFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListenerID++
	id := r.nextListenerID
	b := newBinding(id, predicate, onTrue, onFalseAfterTrue)
	r.globalBindings = append(r.globalBindings, b)
	for _, m := range r.models {
		b.evaluate(m)
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.globalBindings = removeBinding(r.globalBindings, id)
	}
}

func removeBinding(bindings []*binding, id int64) []*binding {
	for i, b := range bindings {
		if b.id == id {
			return append(bindings[:i], bindings[i+1:]...)
		}
	}
	return bindings
}

// emit fans a change event out to per-model listeners, global
// listeners, and then re-evaluates every binding that covers the
// affected model. The listener and binding slices are snapshotted
// under r.mu and the callbacks run after it is released, mirroring
// EventBus.Emit: a callback that itself calls On/When or an unsubscribe
// closure re-locks r.mu without deadlocking, and any add/remove it
// performs is deferred in effect until this emission's snapshot has
// finished running, since that snapshot — not the live slice — is what
// is being iterated.
func (r *Registry) emit(ev ChangeEvent) {
	m := ev.Model

	r.mu.Lock()
	propertyListeners := append([]*listener(nil), m.listeners[ev.Property]...)
	anyListeners := append([]*listener(nil), m.listeners["ANY"]...)
	globalPropertyListeners := append([]*listener(nil), r.globalListeners[ev.Property]...)
	globalAnyListeners := append([]*listener(nil), r.globalListeners["ANY"]...)
	bindings := append([]*binding(nil), m.bindings...)
	globalBindings := append([]*binding(nil), r.globalBindings...)
	r.mu.Unlock()

	for _, l := range propertyListeners {
		l.fn(ev)
	}
	for _, l := range anyListeners {
		l.fn(ev)
	}
	for _, l := range globalPropertyListeners {
		l.fn(ev)
	}
	for _, l := range globalAnyListeners {
		l.fn(ev)
	}

	for _, b := range bindings {
		b.evaluate(m)
	}
	for _, b := range globalBindings {
		b.evaluate(m)
	}
}
