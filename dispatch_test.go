package hfsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const evPing = UserEventBase + 5000

// TestDispatchBubblesToAncestorInvoke confirms that when no transition
// fires for an event, invoke is tried from the current state outward,
// stopping at the first one that returns true.
func TestDispatchBubblesToAncestorInvoke(t *testing.T) {
	g := &syncGate{}
	m := NewMachine[*fixture]()

	var leafSaw, parentSaw bool
	root, err := m.AddState(nil, WithInvoke(gateInvoke[*fixture](g)))
	require.NoError(t, err)
	parent, err := m.AddState(root, WithInvoke(func(ev Event, f *fixture) bool {
		if ev.ID == evPing {
			parentSaw = true
			return true
		}
		return false
	}))
	require.NoError(t, err)
	leaf, err := m.AddState(parent, WithInvoke(func(ev Event, f *fixture) bool {
		if ev.ID == evPing {
			leafSaw = true
		}
		return false // leaf always declines, forcing the event to bubble
	}))
	require.NoError(t, err)

	f := &fixture{}
	require.NoError(t, m.Start(context.Background(), f, leaf))
	require.True(t, m.Send(Event{ID: evPing}))
	waitIdle(t, m, g)

	assert.True(t, leafSaw, "leaf's invoke should have been offered the event first")
	assert.True(t, parentSaw, "parent's invoke should have consumed it after leaf declined")
	assert.Same(t, leaf, m.Current(), "an invoke-consumed event performs no transition")
}

// TestDispatchTransitionsTakePriorityOverInvoke confirms that transition
// matching always runs before invoke bubbling for a given event, even
// when the current state's invoke would also have handled it.
func TestDispatchTransitionsTakePriorityOverInvoke(t *testing.T) {
	g := &syncGate{}
	m := NewMachine[*fixture]()

	invokeRan := false
	root, err := m.AddState(nil, WithInvoke(gateInvoke[*fixture](g)))
	require.NoError(t, err)
	a, err := m.AddState(root, WithInvoke(func(ev Event, f *fixture) bool {
		invokeRan = true
		return true
	}))
	require.NoError(t, err)
	b, err := m.AddState(root)
	require.NoError(t, err)
	_, err = m.AddTransition(a, b, WithTriggered(func(ev Event, _ *fixture) bool { return ev.ID == evPing }))
	require.NoError(t, err)

	f := &fixture{}
	require.NoError(t, m.Start(context.Background(), f, a))
	require.True(t, m.Send(Event{ID: evPing}))
	waitIdle(t, m, g)

	assert.False(t, invokeRan)
	assert.Same(t, b, m.Current())
}

func TestDispatchFirstMatchingTransitionWinsInRegistrationOrder(t *testing.T) {
	g := &syncGate{}
	m := NewMachine[*fixture]()

	root, err := m.AddState(nil, WithInvoke(gateInvoke[*fixture](g)))
	require.NoError(t, err)
	a, err := m.AddState(root)
	require.NoError(t, err)
	b, err := m.AddState(root)
	require.NoError(t, err)
	c, err := m.AddState(root)
	require.NoError(t, err)
	_, err = m.AddTransition(a, b, WithTriggered(func(ev Event, _ *fixture) bool { return ev.ID == evPing }))
	require.NoError(t, err)
	_, err = m.AddTransition(a, c, WithTriggered(func(ev Event, _ *fixture) bool { return ev.ID == evPing }))
	require.NoError(t, err)

	f := &fixture{}
	require.NoError(t, m.Start(context.Background(), f, a))
	require.True(t, m.Send(Event{ID: evPing}))
	waitIdle(t, m, g)

	assert.Same(t, b, m.Current(), "the earlier-registered transition must win")
}

func TestDispatchGuardSuppressesFiring(t *testing.T) {
	g := &syncGate{}
	m := NewMachine[*fixture]()

	root, err := m.AddState(nil, WithInvoke(gateInvoke[*fixture](g)))
	require.NoError(t, err)
	a, err := m.AddState(root)
	require.NoError(t, err)
	b, err := m.AddState(root)
	require.NoError(t, err)
	_, err = m.AddTransition(a, b,
		WithTriggered(func(ev Event, _ *fixture) bool { return ev.ID == evPing }),
		WithGuard(func(_ Event, f *fixture) bool { return f.ticks > 0 }),
	)
	require.NoError(t, err)

	f := &fixture{}
	require.NoError(t, m.Start(context.Background(), f, a))
	require.True(t, m.Send(Event{ID: evPing}))
	waitIdle(t, m, g)
	assert.Same(t, a, m.Current(), "guard false must suppress firing")

	f.ticks = 1
	require.True(t, m.Send(Event{ID: evPing}))
	waitIdle(t, m, g)
	assert.Same(t, b, m.Current(), "guard true must let it fire")
}
