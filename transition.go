package hfsm

// Transition is a directed edge from a source State to an optional target
// State (nil target means the machine terminates when the transition
// fires). Firing is split into three callbacks — Triggered, Guard, Effect
// — rather than one combined action, since they run at different points
// and serve different purposes: Triggered and Guard decide whether the
// transition fires at all, Effect runs once it has.
type Transition[E any] struct {
	name   string
	source *State[E]
	target *State[E]

	triggered func(Event, E) bool
	guard     func(Event, E) bool
	effect    func(Event, E)
}

// Source returns the transition's source state.
func (t *Transition[E]) Source() *State[E] { return t.source }

// Target returns the transition's target state, or nil for a terminal
// transition.
func (t *Transition[E]) Target() *State[E] { return t.target }

// Name returns the transition's diagram label, as given to WithName, or
// "" if none was set.
func (t *Transition[E]) Name() string { return t.name }

type transitionConfig[E any] struct {
	name      string
	triggered func(Event, E) bool
	guard     func(Event, E) bool
	effect    func(Event, E)
}

// TransitionOption configures a Transition at AddTransition time.
type TransitionOption[E any] func(*transitionConfig[E])

// WithName sets the transition's diagram label. Purely cosmetic: it plays
// no role in firing decisions.
func WithName[E any](name string) TransitionOption[E] {
	return func(c *transitionConfig[E]) { c.name = name }
}

// WithTriggered sets the trigger predicate: the transition never fires if
// this is left unset.
func WithTriggered[E any](f func(Event, E) bool) TransitionOption[E] {
	return func(c *transitionConfig[E]) { c.triggered = f }
}

// WithGuard sets the guard predicate, checked only after Triggered returns
// true. Leaving it unset means "always true".
func WithGuard[E any](f func(Event, E) bool) TransitionOption[E] {
	return func(c *transitionConfig[E]) { c.guard = f }
}

// WithEffect sets the action run once between the exit and entry phases of
// a firing transition (see Machine.execute).
func WithEffect[E any](f func(Event, E)) TransitionOption[E] {
	return func(c *transitionConfig[E]) { c.effect = f }
}

// evaluate reports whether t should fire for ev: triggered(ev) &&
// guard(ev), evaluated in that order so a guard with side effects
// (discouraged, but not forbidden) never runs unless the event actually
// matched.
func (m *Machine[E]) evaluate(t *Transition[E], ev Event) bool {
	if t.triggered == nil {
		return false
	}
	if !t.triggered(ev, m.ext) {
		return false
	}
	if t.guard != nil && !t.guard(ev, m.ext) {
		return false
	}
	return true
}

// execute performs the exit/effect/entry sequence that drives a firing
// transition. One exit/effect/entry sequence covers four distinct
// situations (initial, self-loop, terminal, general); only the building
// of the exit and entry chains branches, on a nil source, a nil target,
// or neither:
//
//   - initial transition: source == nil, so the exit chain is empty and
//     the entry chain runs from the root down to the initial state.
//   - self-loop: source == target, so their ancestor chains are identical
//     and the common-ancestor walk consumes both entirely — no exit, no
//     entry, only effect.
//   - terminal transition: target == nil, so the entry chain is empty and
//     every actually-active ancestor of the current cursor is exited.
//   - general case: both chains are trimmed at the least common ancestor
//     of the registered (source, target) pair and exited/entered on
//     either side of effect.
//
// The exit chain always walks up from m.cursor, not from t.source: a
// transition registered on a composite ancestor fires while some
// descendant of it is actually current (the dispatcher found it by
// walking m.cursor's ancestors, see onEvent), and every state between
// the true cursor and the least common ancestor is live and must exit,
// not just the level the transition happens to be registered on. The
// least common ancestor itself, though, is computed from the registered
// source/target — not from the cursor — so a transition declared between
// two specific states always enters and exits the same boundary
// regardless of which descendant happened to be active when it fired.
func (m *Machine[E]) execute(t *Transition[E], ev Event) {
	src, dst := t.source, t.target

	var exitChain, enterChain []*State[E]
	switch {
	case src == nil:
		enterChain = ancestorChain(dst)
	case dst == nil:
		exitChain = ancestorChain(m.cursor)
	default:
		ancestor, ok := lca(src, dst)
		if !ok {
			m.trace("hfsm: transition %s -> %s shares no ancestor; aborting dispatch step", src.Name(), dst.Name())
			return
		}
		for s := m.cursor; s != nil && s != ancestor; s = s.parent {
			exitChain = append(exitChain, s)
		}
		for s := dst; s != ancestor; s = s.parent {
			enterChain = append(enterChain, s)
		}
	}

	for _, s := range exitChain {
		if s.exit != nil {
			s.exit(ev, m.ext)
		}
	}
	if t.effect != nil {
		t.effect(ev, m.ext)
	}
	for i := len(enterChain) - 1; i >= 0; i-- {
		if enterChain[i].entry != nil {
			enterChain[i].entry(ev, m.ext)
		}
	}

	m.cursor = dst
	if dst == nil {
		m.ph.store(phaseTerminated)
	}
}
