package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// NDJSON returns an Emitter that writes one JSON object per line to w,
// flushing after each event when w supports it. This is the wire format
// consumed by the event-stream endpoint: newline-delimited UTF-8 JSON.
func NDJSON(w io.Writer) Emitter {
	var mu sync.Mutex
	flusher, _ := w.(http.Flusher)

	return EmitterFunc(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()

		line, err := json.Marshal(ev)
		if err != nil {
			zap.L().Warn("stream: marshal event", zap.Error(err))
			return
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			zap.L().Warn("stream: write event", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// Chan returns an Emitter that sends events to ch without blocking: when
// the channel is full the event is dropped and logged. Useful for fan-out
// to slow consumers.
func Chan(ch chan<- Event) Emitter {
	return EmitterFunc(func(ev Event) {
		select {
		case ch <- ev:
		default:
			zap.L().Debug("stream: channel full, event dropped",
				zap.String("event", string(ev.Type)),
			)
		}
	})
}
