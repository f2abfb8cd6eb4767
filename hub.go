package hfsm

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// defaultQueueCapacity is the Event Hub's default bound when a machine is
// constructed without WithQueueCapacity.
const defaultQueueCapacity = 64

// eventHub is a bounded, single-consumer, multi-producer priority stream
// with one worker goroutine that calls back into the dispatcher for each
// popped event. It is built directly on sync.Mutex/sync.Cond rather than a
// borrowed thread library, since the bounded-blocking-priority-queue
// behavior is small enough to own outright.
//
// Each of the three priority tiers is its own
// github.com/wk8/go-ordered-map/v2 map keyed by a monotonically
// increasing sequence number, giving O(1) oldest-pop-and-delete per tier
// so "earlier Send wins within a priority class" falls out of iteration
// order instead of a linear scan.
type eventHub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tiers    [3]*orderedmap.OrderedMap[uint64, Event]
	size     int
	capacity int
	seq      uint64
	shutdown bool
	wg       sync.WaitGroup

	dispatch  func(Event)
	trace     TraceFunc
	terminate func()
}

// newEventHub starts the worker goroutine. terminate is called exactly
// once, from the worker goroutine itself, immediately before loop returns
// for any reason (a cooperative stop, a forced shutdownHub, or a
// recovered callback panic) — it exists so a caller (Machine) can learn
// the moment dispatch has truly stopped without re-entering wg.Wait from
// the same goroutine it would be waiting on.
func newEventHub(capacity int, dispatch func(Event), trace TraceFunc, terminate func()) *eventHub {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if trace == nil {
		trace = noopTrace
	}
	if terminate == nil {
		terminate = func() {}
	}
	h := &eventHub{
		capacity:  capacity,
		dispatch:  dispatch,
		trace:     trace,
		terminate: terminate,
	}
	for i := range h.tiers {
		h.tiers[i] = orderedmap.New[uint64, Event]()
	}
	h.cond = sync.NewCond(&h.mu)
	h.wg.Add(1)
	go h.loop()
	return h
}

// send enqueues ev respecting priority order. It returns false, without
// blocking, when the hub is full or has been shut down.
func (h *eventHub) send(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown || h.size >= h.capacity {
		return false
	}
	h.seq++
	h.tiers[ev.Priority].Set(h.seq, ev)
	h.size++
	h.cond.Signal()
	return true
}

// popLocked removes and returns the highest-priority, oldest-accepted
// event, assuming h.mu is already held.
func (h *eventHub) popLocked() (Event, bool) {
	for p := PriorityHigh; p >= PriorityLow; p-- {
		tier := h.tiers[p]
		if pair := tier.Oldest(); pair != nil {
			tier.Delete(pair.Key)
			h.size--
			return pair.Value, true
		}
	}
	return Event{}, false
}

// loop is the hub's single worker: it waits for a non-empty queue (or
// shutdown), pops with the lock held, then releases the lock before
// calling the dispatcher — so a dispatcher callback is always free to
// call send reentrantly without deadlocking.
func (h *eventHub) loop() {
	defer h.wg.Done()
	defer h.terminate()
	for {
		h.mu.Lock()
		for !h.shutdown && h.size == 0 {
			h.cond.Wait()
		}
		if h.shutdown {
			// Drain without dispatching: a shutdown discards whatever
			// is still queued rather than running it.
			for h.size > 0 {
				h.popLocked()
			}
			h.mu.Unlock()
			return
		}
		ev, ok := h.popLocked()
		h.mu.Unlock()
		if !ok {
			continue
		}
		if !h.dispatchSafely(ev) {
			return
		}
	}
}

// dispatchSafely invokes the dispatcher callback, recovering a panic so a
// faulty user callback terminates the machine cleanly instead of
// crashing the process.
func (h *eventHub) dispatchSafely(ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.trace("hfsm: callback panic recovered on event %s: %v; shutting down", ev, r)
			h.mu.Lock()
			h.shutdown = true
			h.mu.Unlock()
			ok = false
		}
	}()
	h.dispatch(ev)
	return true
}

// shutdownHub marks the hub closed, wakes the worker, and waits for it to
// drain and exit.
func (h *eventHub) shutdownHub() {
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()
	h.cond.Broadcast()
	h.wg.Wait()
}

// stopAfterCurrent marks the hub closed without waiting for the worker:
// it is called from inside a dispatch callback, on the worker goroutine
// itself, so blocking on h.wg here would deadlock against the very
// goroutine that would signal it.
func (h *eventHub) stopAfterCurrent() {
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()
}

// requestCooperativeStop posts EventStop at PriorityHigh so the worker
// dispatches whatever was already queued ahead of it before stopping,
// then waits for it to exit; anything queued behind EventStop is
// discarded undispatched, same as a forced shutdown. If the queue has no
// room left, or the hub is already shutting down, it falls back to the
// same immediate forced drain shutdownHub uses.
func (h *eventHub) requestCooperativeStop() {
	h.mu.Lock()
	already := h.shutdown
	h.mu.Unlock()
	if !already && !h.send(Event{ID: EventStop, Name: "Stop", Priority: PriorityHigh}) {
		h.mu.Lock()
		h.shutdown = true
		h.mu.Unlock()
		h.cond.Broadcast()
	}
	h.wg.Wait()
}
