package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	subscriberBuffer = 1024
	// Publish waits this long for a full subscriber before dropping the message.
	slowSubscriberTimeout = 50 * time.Millisecond
)

// InMemoryBroker delivers every published message to every subscriber of the
// topic. It backs the local mode, where the simulator and the ingest agent
// share one process.
type InMemoryBroker struct {
	// Publish holds the read lock while sending, so channels are only closed
	// (under the write lock) when no send is in flight.
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
	done   chan struct{}

	offsetMu sync.Mutex
	offsets  map[string]int64

	dropped atomic.Int64
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs:    make(map[string][]chan Message),
		done:    make(chan struct{}),
		offsets: make(map[string]int64),
	}
}

// Publish fans the message out to the topic's current subscribers.
// Subscribers that stay full for longer than slowSubscriberTimeout miss the
// message; see Dropped.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    b.nextOffset(topic),
		Timestamp: time.Now().UnixMilli(),
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
			continue
		default:
		}
		timer := time.NewTimer(slowSubscriberTimeout)
		select {
		case ch <- msg:
		case <-timer.C:
			b.dropped.Add(1)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()
	}
	return nil
}

// Subscribe registers a new subscriber. The returned channel is closed when
// ctx is cancelled or the broker is closed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, subscriberBuffer)
	b.subs[topic] = append(b.subs[topic], ch)

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(topic, ch)
		case <-b.done:
		}
	}()

	return ch, nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *InMemoryBroker) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Further Publish and Subscribe calls fail.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	for _, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Message)
	return nil
}

func (b *InMemoryBroker) unsubscribe(topic string, target chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, ch := range subs {
		if ch == target {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
	// Not found: Close already closed it.
}

func (b *InMemoryBroker) nextOffset(topic string) int64 {
	b.offsetMu.Lock()
	defer b.offsetMu.Unlock()
	offset := b.offsets[topic]
	b.offsets[topic] = offset + 1
	return offset
}
