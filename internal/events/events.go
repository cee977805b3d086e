// Package events carries the deliberation event protocol. The Elder and
// Senate emit; transport adapters (SSE handlers, the firehose broker)
// consume. Within one mission, emission order follows stage order.
package events

import (
	"time"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Emitter is the push-only sink the Elder and Senate call at fixed points.
// Implementations must not block the deliberation pipeline.
type Emitter interface {
	Emit(e model.Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(e model.Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e model.Event) { f(e) }

// Noop discards every event.
type Noop struct{}

// Emit discards e.
func (Noop) Emit(model.Event) {}

// Multi fans one emission out to several sinks, in order.
type Multi []Emitter

// Emit delivers e to every sink.
func (m Multi) Emit(e model.Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// New constructs an event with the emission timestamp set.
func New(t model.EventType, missionID string, payload map[string]any) model.Event {
	return model.Event{
		Type:      t,
		MissionID: missionID,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}
