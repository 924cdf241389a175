package eventx

import (
	"sync"
	"time"

	"github.com/gardenledger/fieldsync/pkg/logx"
)

// Bus is a typed publish/subscribe channel for component lifecycle events.
// Publishing never blocks on subscribers and a panicking handler cannot take
// down the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic]map[int]Handler
	nextID   int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Topic]map[int]Handler),
	}
}

// Subscribe registers handler for topic and returns an unsubscribe function.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

// Publish delivers an event to every subscriber of its topic. Handlers run
// synchronously on the publisher's goroutine; ordering between subscribers
// is not guaranteed.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	event := Event{Topic: topic, At: time.Now().UTC(), Payload: payload}

	for _, h := range subs {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithField("topic", string(event.Topic)).
				Errorf("eventx: subscriber panicked: %v", r)
		}
	}()
	h(event)
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
