package amf

import (
	"sync"
	"time"

	"github.com/amfcore/amf/cluster"
)

// TimerSet is the reactor's timer wheel (§5: "timer_add(duration, context,
// callback)" / "timer_delete(handle)"). Because the reactor is single-
// threaded, callbacks fire on the reactor goroutine via a channel rather
// than running concurrently with event dispatch.
type TimerSet struct {
	mu      sync.Mutex
	next    cluster.TimerHandle
	pending map[cluster.TimerHandle]*time.Timer
	fireCh  chan cluster.TimerHandle
	cbs     map[cluster.TimerHandle]func()
}

func NewTimerSet() *TimerSet {
	return &TimerSet{
		pending: make(map[cluster.TimerHandle]*time.Timer),
		cbs:     make(map[cluster.TimerHandle]func()),
		fireCh:  make(chan cluster.TimerHandle, 64),
	}
}

// Add arms a timer; duration zero fires on the next reactor tick, matching
// the "schedule a zero-delay timer" idiom used throughout §4.4 for deferred
// recall and no-op callback scheduling.
func (ts *TimerSet) Add(d time.Duration, cb func()) cluster.TimerHandle {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.next++
	h := ts.next
	ts.cbs[h] = cb
	ts.pending[h] = time.AfterFunc(d, func() {
		select {
		case ts.fireCh <- h:
		default:
			// reactor not draining fast enough; drop would violate delivery
			// guarantees, so block until the reactor receives it instead.
			ts.fireCh <- h
		}
	})
	return h
}

func (ts *TimerSet) Delete(h cluster.TimerHandle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.pending[h]; ok {
		t.Stop()
		delete(ts.pending, h)
		delete(ts.cbs, h)
	}
}

// Fired is consumed by the reactor's select loop (§5: "Suspension occurs
// only at the top-level select").
func (ts *TimerSet) Fired() <-chan cluster.TimerHandle { return ts.fireCh }

func (ts *TimerSet) run(h cluster.TimerHandle) {
	ts.mu.Lock()
	cb, ok := ts.cbs[h]
	delete(ts.cbs, h)
	delete(ts.pending, h)
	ts.mu.Unlock()
	if ok && cb != nil {
		cb()
	}
}
