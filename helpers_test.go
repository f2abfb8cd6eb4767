package hfsm

import (
	"sync"
	"testing"
	"time"
)

// barrierEvent is a reserved test-only event id, used only to detect when
// the hub has drained every event sent before it. Since the hub always
// exhausts PriorityHigh and PriorityMid before touching PriorityLow, a
// PriorityLow barrier event is guaranteed to dispatch only after every
// earlier Send at any priority has already run — regardless of send
// order — which is what lets these tests assert on callback-recorded
// state synchronously instead of sleeping.
const barrierEvent = UserEventBase + 999999

// syncGate lets a root-level invoke callback signal a waiting test
// goroutine once the barrier event reaches it.
type syncGate struct {
	mu sync.Mutex
	ch chan struct{}
}

func (g *syncGate) arm() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.ch = ch
	return ch
}

func (g *syncGate) fire() {
	g.mu.Lock()
	ch := g.ch
	g.ch = nil
	g.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// gateInvoke returns a State invoke callback that consumes barrierEvent by
// firing the gate, and otherwise declines (returns false) so it never
// masks a real transition or invoke elsewhere in the ancestor chain.
func gateInvoke[E any](g *syncGate) func(Event, E) bool {
	return func(ev Event, _ E) bool {
		if ev.ID == barrierEvent {
			g.fire()
			return true
		}
		return false
	}
}

// waitIdle sends the barrier event and blocks until it has been dispatched,
// i.e. until every event sent before this call has already run.
func waitIdle[E any](t *testing.T, m *Machine[E], g *syncGate) {
	t.Helper()
	ch := g.arm()
	if !m.Send(Event{ID: barrierEvent, Priority: PriorityLow}) {
		t.Fatalf("waitIdle: Send(barrierEvent) rejected, machine phase=%s", m.Phase())
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("waitIdle: timed out waiting for barrier event")
	}
}
