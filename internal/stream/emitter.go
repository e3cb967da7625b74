// Package stream defines the event-emission contract between long-running
// pipeline stages and the transport layer. Stages emit progress, data,
// error, and complete events; a failed emission is logged and never blocks
// the work that produced it.
package stream

import (
	"time"

	"go.uber.org/zap"
)

// EventType identifies one of the four event shapes.
type EventType string

const (
	EventProgress EventType = "progress"
	EventData     EventType = "data"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is the single wire shape for all event types. Unused fields are
// omitted from the encoded form.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Current   int            `json:"current,omitempty"`
	Total     int            `json:"total,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Retriable bool           `json:"retriable,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Emitter delivers events to a transport. Implementations must not block
// indefinitely; delivery failure is the implementation's problem, not the
// caller's.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Progress emits a progress event.
func Progress(e Emitter, current, total int, message string) {
	e.Emit(Event{
		Type:      EventProgress,
		Timestamp: time.Now().UTC(),
		Current:   current,
		Total:     total,
		Message:   message,
	})
}

// Data emits a data event carrying a payload.
func Data(e Emitter, payload any, evCtx map[string]any) {
	e.Emit(Event{
		Type:      EventData,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Context:   evCtx,
	})
}

// Error emits an error event with a retriable hint.
func Error(e Emitter, err error, retriable bool, evCtx map[string]any) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.Emit(Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Retriable: retriable,
		Context:   evCtx,
	})
}

// Complete emits the terminal complete event with a summary payload.
func Complete(e Emitter, summary any) {
	e.Emit(Event{
		Type:      EventComplete,
		Timestamp: time.Now().UTC(),
		Payload:   summary,
	})
}

// Nop is an Emitter that discards all events.
var Nop Emitter = EmitterFunc(func(Event) {})

// Logging returns an Emitter that writes events to the global zap logger.
func Logging() Emitter {
	return EmitterFunc(func(ev Event) {
		fields := []zap.Field{zap.String("event", string(ev.Type))}
		switch ev.Type {
		case EventProgress:
			fields = append(fields,
				zap.Int("current", ev.Current),
				zap.Int("total", ev.Total),
				zap.String("message", ev.Message),
			)
		case EventError:
			fields = append(fields,
				zap.String("message", ev.Message),
				zap.Bool("retriable", ev.Retriable),
			)
		}
		zap.L().Info("stream: event", fields...)
	})
}
