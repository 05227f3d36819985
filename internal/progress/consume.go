package progress

import "github.com/zjrosen/sift/internal/stream"

// Source is a pull-based event sequence, satisfied by *stream.Decoder.
type Source interface {
	Next() (stream.Event, error)
	BytesRead() int64
}

// Consume drains src into agg, calling onUpdate with a fresh snapshot after
// every event that changed the state. It returns when agg becomes terminal or
// src ends. onUpdate may be nil.
func Consume(src Source, agg *Aggregator, onUpdate func(State)) Outcome {
	for !agg.IsTerminal() {
		ev, err := src.Next()
		if err != nil {
			agg.Finish(err, src.BytesRead())
			if agg.IsTerminal() && onUpdate != nil {
				onUpdate(agg.State())
			}
			break
		}
		if agg.Apply(ev) && onUpdate != nil {
			onUpdate(agg.State())
		}
	}
	return agg.Outcome()
}
