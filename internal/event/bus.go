package event

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	DefaultSubscriberBuffer = 100
	DefaultHistorySize      = 50
)

// Bus is the single outbound channel from the session core to the host.
// Publish never blocks: each subscriber has a bounded queue and events that
// do not fit are dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	history     *RingBuffer
	bufCap      int
	dropped     atomic.Uint64
}

// NewBus creates a bus. subscriberBuf bounds each subscriber queue and
// historySize bounds the replay buffer handed to new subscribers.
func NewBus(subscriberBuf, historySize int) *Bus {
	if subscriberBuf <= 0 {
		subscriberBuf = DefaultSubscriberBuffer
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		history:     NewRingBuffer(historySize),
		bufCap:      subscriberBuf,
	}
}

// Publish records ev in history and hands it to every subscriber. Both
// happen under the bus lock so a concurrent Subscribe sees ev either in its
// history or on its channel, never both.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history.Write(ev)
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishLaneGuidance publishes a lane guidance event.
func (b *Bus) PublishLaneGuidance(ev LaneGuidanceEvent) {
	b.Publish(NewLaneGuidance(ev))
}

// PublishState publishes a lifecycle event.
func (b *Bus) PublishState(ev StateEvent) {
	b.Publish(NewState(ev))
}

// Subscribe registers a consumer. It returns the subscription ID, the event
// channel and the buffered history captured before registration.
func (b *Bus) Subscribe() (string, <-chan Event, []Event) {
	id := uuid.New().String()
	ch := make(chan Event, b.bufCap)

	b.mu.Lock()
	defer b.mu.Unlock()
	history := b.history.ReadAll()
	if b.closed {
		close(ch)
		return id, ch, history
	}
	b.subscribers[id] = ch
	return id, ch, history
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount returns the number of registered consumers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes only feed history.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
