package hfsm

import (
	"context"
	"sync/atomic"
)

type phase int32

const (
	phaseConfiguring phase = iota
	phaseRunning
	phaseTerminated
)

// Machine owns the state graph, the current-state cursor, the running
// phase, and the Event Hub, and drives one event fully to completion
// (exit/effect/entry, then bubbling) before the hub hands it the next
// one.
//
// Machine is parameterized by E exactly as State and Transition are; ext
// is the single extended-state value shared by every callback for the
// lifetime of one machine, set once at Start.
type Machine[E any] struct {
	root   *State[E]
	cursor *State[E]
	ext    E

	ph phase32

	queueCapacity int
	maxStates     int
	stateCount    int

	trace TraceFunc
	hub   *eventHub

	initialTransition *Transition[E]

	cancelWatch context.CancelFunc
}

// phase32 wraps atomic.Int32 so external readers (Phase) never need to
// take a lock: the current-state cursor itself is only ever mutated on
// the hub's worker goroutine, but phase is read from
// AddState/AddTransition/Send, which may be called from any goroutine.
type phase32 struct{ v atomic.Int32 }

func (p *phase32) load() phase    { return phase(p.v.Load()) }
func (p *phase32) store(ph phase) { p.v.Store(int32(ph)) }

type machineConfig[E any] struct {
	queueCapacity int
	maxStates     int
	trace         TraceFunc
}

// MachineOption configures a Machine at construction time, following the
// functional-options idiom.
type MachineOption[E any] func(*machineConfig[E])

// WithQueueCapacity overrides the Event Hub's bound (default 64).
func WithQueueCapacity[E any](capacity int) MachineOption[E] {
	return func(c *machineConfig[E]) { c.queueCapacity = capacity }
}

// WithMaxStates bounds the number of states AddState will accept,
// surfacing CodeStateSizeOverflow once the bound is reached. This stands
// in for a fixed-capacity state pool without actually implementing one:
// callers that need a hard ceiling get CodeStateSizeOverflow instead of
// unbounded growth, while the Go garbage collector owns the actual
// allocation.
func WithMaxStates[E any](max int) MachineOption[E] {
	return func(c *machineConfig[E]) { c.maxStates = max }
}

// NewMachine constructs a Machine in the Configuring phase: states and
// transitions may be added, but the Event Hub does not exist yet and no
// events are accepted.
func NewMachine[E any](opts ...MachineOption[E]) *Machine[E] {
	cfg := &machineConfig[E]{queueCapacity: defaultQueueCapacity}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.trace == nil {
		cfg.trace = noopTrace
	}
	return &Machine[E]{
		queueCapacity: cfg.queueCapacity,
		maxStates:     cfg.maxStates,
		trace:         cfg.trace,
	}
}

// Phase reports whether the machine is configuring, running, or
// terminated.
func (m *Machine[E]) Phase() string {
	switch m.ph.load() {
	case phaseConfiguring:
		return "configuring"
	case phaseRunning:
		return "running"
	default:
		return "terminated"
	}
}

// Current returns the current-state cursor. It is nil before Start and
// after a terminal transition. Callers may read it freely but must not
// mutate the graph it points into.
func (m *Machine[E]) Current() *State[E] { return m.cursor }

// Root returns the machine's single parentless state, or nil if AddState
// has not yet been called with a nil parent.
func (m *Machine[E]) Root() *State[E] { return m.root }

// AddState registers a new state under parent (nil means "this is the
// root"). It fails with CodeMachineAlreadyRunning once the machine has
// left the Configuring phase, and with CodeStateSizeOverflow once
// WithMaxStates's bound is reached.
func (m *Machine[E]) AddState(parent *State[E], opts ...StateOption[E]) (*State[E], error) {
	if m.ph.load() != phaseConfiguring {
		return nil, newError(CodeMachineAlreadyRunning, "AddState")
	}
	if parent == nil {
		if m.root != nil {
			return nil, newError(CodeRootAlreadyDefined, "AddState")
		}
	} else if parent.machine != m {
		return nil, newError(CodeNoSuchState, "AddState")
	}
	if m.maxStates > 0 && m.stateCount >= m.maxStates {
		return nil, newError(CodeStateSizeOverflow, "AddState")
	}

	cfg := &stateConfig[E]{}
	for _, o := range opts {
		o(cfg)
	}

	s := &State[E]{
		name:    cfg.name,
		parent:  parent,
		entry:   cfg.entry,
		exit:    cfg.exit,
		invoke:  cfg.invoke,
		machine: m,
	}
	if parent == nil {
		m.root = s
	} else {
		parent.children = append(parent.children, s)
	}
	m.stateCount++
	return s, nil
}

// AddTransition registers a transition from src to target (nil target
// means terminal). It fails with CodeNullArgument if src is nil,
// CodeNoSuchState if either state does not belong to this machine, and
// CodeDuplicateTransition if a transition with the same (source, target)
// pair is already registered.
func (m *Machine[E]) AddTransition(src, target *State[E], opts ...TransitionOption[E]) (*Transition[E], error) {
	if m.ph.load() != phaseConfiguring {
		return nil, newError(CodeMachineAlreadyRunning, "AddTransition")
	}
	if src == nil {
		return nil, newError(CodeNullArgument, "AddTransition")
	}
	if src.machine != m || (target != nil && target.machine != m) {
		return nil, newError(CodeNoSuchState, "AddTransition")
	}
	for _, existing := range src.transitions {
		if existing.target == target {
			return nil, newError(CodeDuplicateTransition, "AddTransition")
		}
	}

	cfg := &transitionConfig[E]{}
	for _, o := range opts {
		o(cfg)
	}

	t := &Transition[E]{
		name:      cfg.name,
		source:    src,
		target:    target,
		triggered: cfg.triggered,
		guard:     cfg.guard,
		effect:    cfg.effect,
	}
	src.transitions = append(src.transitions, t)
	return t, nil
}

// Start moves the machine into the Running phase: it records ext as the
// extended state shared by every callback, creates the Event Hub, and
// posts the synthetic initial transition (source == nil, target ==
// initial) at PriorityHigh so it is dispatched ahead of anything a caller
// might Send before Start returns.
//
// If ctx is non-nil, a background goroutine watches ctx.Done() and calls
// Shutdown when it fires, letting callers tie a machine's lifetime to a
// request or process context instead of calling Shutdown by hand.
func (m *Machine[E]) Start(ctx context.Context, ext E, initial *State[E]) error {
	if m.ph.load() != phaseConfiguring {
		return newError(CodeMachineAlreadyRunning, "Start")
	}
	if m.root == nil {
		return newError(CodeNoSuchState, "Start")
	}
	if initial == nil {
		return newError(CodeNullArgument, "Start")
	}
	if initial.machine != m || !contains(m.root, initial) {
		return newError(CodeNoSuchState, "Start")
	}

	m.ext = ext
	m.initialTransition = &Transition[E]{target: initial}
	m.hub = newEventHub(m.queueCapacity, m.onEvent, m.trace, func() { m.ph.store(phaseTerminated) })
	m.ph.store(phaseRunning)

	if ctx != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		m.cancelWatch = cancel
		go func() {
			<-watchCtx.Done()
			if ctx.Err() != nil {
				m.Shutdown()
			}
		}()
	}

	if !m.hub.send(Event{ID: EventStart, Name: "Start", Priority: PriorityHigh}) {
		return newError(CodeQueueFailure, "Start")
	}
	return nil
}

// Send enqueues ev for asynchronous dispatch. It returns false, without
// blocking, if the machine is not Running or the Event Hub is full —
// a full queue and a terminated machine share the same boolean-failure
// contract.
func (m *Machine[E]) Send(ev Event) bool {
	if m.ph.load() != phaseRunning {
		return false
	}
	return m.hub.send(ev)
}

// Shutdown cooperatively stops the machine: it posts the reserved
// EventStop so the worker finishes whatever is already ahead of it in
// the queue, then joins the worker goroutine. Dispatching EventStop marks
// the machine Terminated, and the Event Hub's terminate callback (see
// newEventHub) marks it again as the worker exits; before Start, with no
// hub to stop, Shutdown marks it Terminated itself. Shutdown is
// idempotent and safe to call more than once.
func (m *Machine[E]) Shutdown() {
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
	if m.hub == nil {
		m.ph.store(phaseTerminated)
		return
	}
	m.hub.requestCooperativeStop()
}

// onEvent is the per-event dispatch entry point, called by the Event
// Hub's worker goroutine with its lock released.
func (m *Machine[E]) onEvent(ev Event) {
	if ev.ID == EventStart {
		m.execute(m.initialTransition, ev)
		return
	}
	if ev.ID == EventStop {
		// Stops the machine reacting to anything further without running
		// an exit chain or clearing the cursor, then asks the hub to stop
		// once this event finishes.
		m.ph.store(phaseTerminated)
		m.hub.stopAfterCurrent()
		return
	}
	if m.cursor == nil {
		// Machine has already terminated; nothing left to dispatch to.
		return
	}

	// Step 1: transitions first. Walk from the current state up through
	// its ancestors — a composite state's transitions apply to whichever
	// of its descendants is actually current, not only to the composite
	// itself.
	for s := m.cursor; s != nil; s = s.parent {
		for _, t := range s.transitions {
			if m.evaluate(t, ev) {
				m.execute(t, ev)
				return
			}
		}
	}

	// Step 2: bubble to invoke, current state outward, until one returns
	// true or the root is passed.
	for s := m.cursor; s != nil; s = s.parent {
		if s.invoke != nil && s.invoke(ev, m.ext) {
			return
		}
	}

	m.trace("hfsm: event %s discarded unhandled", ev)
}
