package stream

import (
	"sync"

	"go.uber.org/zap"
)

// Guard wraps an Emitter and enforces the boundary contract for one
// invocation: a start progress event is emitted on first use, exactly one
// terminal event (complete or error) is delivered, and a panicking
// downstream emitter is contained so emission failures never abort work.
type Guard struct {
	inner Emitter

	mu       sync.Mutex
	started  bool
	finished bool
}

// NewGuard creates a Guard around an emitter. A nil emitter degrades to Nop.
func NewGuard(inner Emitter) *Guard {
	if inner == nil {
		inner = Nop
	}
	return &Guard{inner: inner}
}

// Start emits the initial progress event. Safe to call more than once;
// only the first call emits.
func (g *Guard) Start(total int, message string) {
	g.mu.Lock()
	if g.started || g.finished {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	g.safeEmit(Event{Type: EventProgress, Current: 0, Total: total, Message: message})
}

// Emit forwards an event unless the invocation already terminated.
// Terminal events pass through Finish to preserve the exactly-once rule.
func (g *Guard) Emit(ev Event) {
	if ev.Type == EventComplete || ev.Type == EventError {
		g.finish(ev)
		return
	}

	g.mu.Lock()
	done := g.finished
	g.mu.Unlock()
	if done {
		return
	}
	g.safeEmit(ev)
}

// Finished reports whether a terminal event has been emitted.
func (g *Guard) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished
}

func (g *Guard) finish(ev Event) {
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return
	}
	g.finished = true
	g.mu.Unlock()

	g.safeEmit(ev)
}

// safeEmit contains panics from the wrapped emitter. Event delivery is
// best-effort; the pipeline must keep going regardless.
func (g *Guard) safeEmit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("stream: emitter panicked, event dropped",
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	g.inner.Emit(ev)
}
