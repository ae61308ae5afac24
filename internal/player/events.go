package player

import "sync"

// EventKind is the closed set of notifications the pool can emit.
type EventKind string

const (
	EventLoadStarted EventKind = "load-started"
	EventLoadReady   EventKind = "load-ready"
	EventLoadError   EventKind = "load-error"
	EventEvicted     EventKind = "evicted"
)

// Event is one outbound notification about a clip resource. Resource-level
// failures surface here; they never throw or halt the frame loop.
type Event struct {
	Kind     EventKind    `json:"kind"`
	ClipID   ClipID       `json:"clip_id"`
	SourceID SourceID     `json:"source_id"`
	Mode     DeliveryMode `json:"mode,omitempty"`
	Message  string       `json:"message,omitempty"` // error text for load-error
}

// emitter is a subscription list with queued delivery. emit never runs a
// subscriber on the calling goroutine: events are appended to a queue and
// drained by a single background goroutine, so subscribers observe events in
// order and may freely call back into the engine, pool, or controller without
// deadlocking against whatever lock the emitting code path holds.
type emitter struct {
	mu       sync.Mutex
	subs     []func(Event)
	queue    []Event
	draining bool
}

func (e *emitter) subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	e.queue = append(e.queue, ev)
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	e.mu.Unlock()

	go e.drain()
}

func (e *emitter) emitAll(evs []Event) {
	for _, ev := range evs {
		e.emit(ev)
	}
}

func (e *emitter) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		subs := make([]func(Event), len(e.subs))
		copy(subs, e.subs)
		e.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
	}
}
