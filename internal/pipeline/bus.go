package pipeline

import (
	"log"
	"sync"
)

// subscriberBuffer is the channel capacity handed to each subscriber.
// Publishing never blocks: a subscriber that falls this far behind loses
// events rather than stalling the pipeline.
const subscriberBuffer = 64

// EventBus fans alert events and camera status updates out to in-process
// subscribers. The pipeline publishes; sinks such as the persistence
// writer, the websocket hub and the notifier subscribe independently, so
// one slow or failing sink never affects delivery to the others.
type EventBus struct {
	mu       sync.RWMutex
	alerts   map[int]chan *AlertEvent
	statuses map[int]chan StatusUpdate
	nextID   int
	closed   bool
}

// NewEventBus creates an event bus with no subscribers
func NewEventBus() *EventBus {
	return &EventBus{
		alerts:   make(map[int]chan *AlertEvent),
		statuses: make(map[int]chan StatusUpdate),
	}
}

// SubscribeAlerts registers an alert subscriber. The returned function
// removes the subscription and closes the channel.
func (b *EventBus) SubscribeAlerts() (<-chan *AlertEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *AlertEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.alerts[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.alerts[id]; ok {
			delete(b.alerts, id)
			close(sub)
		}
	}
}

// SubscribeStatus registers a camera status subscriber
func (b *EventBus) SubscribeStatus() (<-chan StatusUpdate, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan StatusUpdate, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.statuses[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.statuses[id]; ok {
			delete(b.statuses, id)
			close(sub)
		}
	}
}

// Publish delivers an alert to every subscriber without blocking.
// Implements EventSink.
func (b *EventBus) Publish(event *AlertEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.alerts {
		select {
		case ch <- event:
		default:
			log.Printf("[EventBus] alert subscriber full, dropping event %s", event.ID)
		}
	}
}

// OnStatus delivers a status update to every subscriber without blocking.
// Implements StatusListener.
func (b *EventBus) OnStatus(update StatusUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.statuses {
		select {
		case ch <- update:
		default:
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.alerts {
		delete(b.alerts, id)
		close(ch)
	}
	for id, ch := range b.statuses {
		delete(b.statuses, id)
		close(ch)
	}
}

var (
	_ EventSink      = (*EventBus)(nil)
	_ StatusListener = (*EventBus)(nil)
)
