package broadcast

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultBuffer is the per-subscriber channel capacity used when the caller
// passes no positive size.
const DefaultBuffer = 16

// Change is one refresh hint delivered to subscribers. Category names the
// entity family that changed; the hint never carries the changed value, so a
// dropped hint costs a client one refresh, not data.
type Change struct {
	Category string    `json:"category"`
	Time     time.Time `json:"time"`
}

// Subscriber is one registered listener. Its channel is closed when the
// subscriber is removed, by Unsubscribe, by eviction, or by Close.
type Subscriber struct {
	id uint64
	ch chan Change
}

// Changes returns the hint channel for this subscriber.
func (s *Subscriber) Changes() <-chan Change {
	return s.ch
}

// Broadcaster fans change hints out to all current subscribers. Delivery is
// best effort: a subscriber whose buffer is full is evicted rather than
// allowed to stall the publishing mutation.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	buffer int
	closed bool
	clock  func() time.Time
}

// New constructs a broadcaster with the given per-subscriber buffer size.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[uint64]*Subscriber),
		buffer: buffer,
		clock:  time.Now,
	}
}

// Subscribe registers a new listener. Subscribing to a closed broadcaster
// returns a subscriber whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{ch: make(chan Change, b.buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the listener and closes its channel. Calling it more
// than once, or after Close, is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.id)
}

// Publish delivers a change hint to every subscriber without blocking. A
// subscriber with no buffer space left is evicted.
func (b *Broadcaster) Publish(category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	change := Change{Category: category, Time: b.clock().UTC()}
	var stale []uint64
	for id, sub := range b.subs {
		select {
		case sub.ch <- change:
		default:
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		log.Warn("dropping slow change subscriber", "subscriber_id", id, "category", category)
		b.remove(id)
	}
}

// Close disconnects every subscriber. Publish and Subscribe become no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.subs {
		b.remove(id)
	}
}

// Len reports the current subscriber count.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// remove must be called with b.mu held.
func (b *Broadcaster) remove(id uint64) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}
