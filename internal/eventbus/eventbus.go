package eventbus

import "sync"

// Bus is a topic-keyed publish/subscribe bus for events of type T.
// Delivery is non-blocking: a subscriber that cannot keep up loses
// events rather than stalling the publisher.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[string][]chan T
	closed bool
}

// New creates a new Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string][]chan T)}
}

// Publish sends the event to all subscribers of the topic.
func (b *Bus[T]) Publish(topic string, e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber for the topic and returns its channel.
func (b *Bus[T]) Subscribe(topic string) <-chan T {
	ch := make(chan T, 16)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber from the topic and closes its channel.
func (b *Bus[T]) Unsubscribe(topic string, sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := b.subs[topic]
	for i, ch := range chans {
		if ch == sub {
			b.subs[topic] = append(chans[:i], chans[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
	b.mu.Unlock()
}
