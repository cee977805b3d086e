package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Broker fans deliberation events out to streaming subscribers. It is the
// transport-facing side of the event protocol: the Elder emits into it,
// SSE handlers subscribe out of it.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan model.Event]struct{}
	bufSize     int
}

// NewBroker creates a broker. bufSize is the per-subscriber channel buffer;
// a subscriber whose buffer is full misses events rather than stalling the
// deliberation pipeline.
func NewBroker(bufSize int, logger *slog.Logger) *Broker {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan model.Event]struct{}),
		bufSize:     bufSize,
	}
}

// Emit broadcasts an event to all subscribers. Slow subscribers with a
// full buffer are skipped so one slow client cannot block the rest.
func (b *Broker) Emit(e model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Subscriber buffer full; drop this event for them.
		}
	}
}

// Subscribe returns a channel receiving every subsequent event.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan model.Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// FormatSSE renders an event as a Server-Sent Events frame:
// "event: <type>\ndata: <json>\n\n".
func FormatSSE(e model.Event) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		data = []byte(`{}`)
	}
	return []byte("event: " + string(e.Type) + "\ndata: " + string(data) + "\n\n")
}
