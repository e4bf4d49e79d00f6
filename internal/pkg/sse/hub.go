package sse

import (
	"context"
	"sync"
)

// Event is delivered to every subscriber of its topic.
type Event struct {
	Topic string
	Event string
	Data  any
}

// Hub fans events out to topic subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	bufferSize  int
}

// NewHub returns a hub whose subscribers buffer up to 16 events.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber for a topic and returns its channel and a
// cleanup function that closes it.
func (h *Hub) Subscribe(topic string) (chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufferSize)

	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan Event]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[topic], ch)
			close(ch)
			if len(h.subscribers[topic]) == 0 {
				delete(h.subscribers, topic)
			}
		})
	}

	return ch, cleanup
}

// Stream merges several topics into one channel that is closed once ctx is done.
func (h *Hub) Stream(ctx context.Context, topics ...string) <-chan Event {
	out := make(chan Event, h.bufferSize)

	var wg sync.WaitGroup
	for _, topic := range topics {
		ch, cleanup := h.Subscribe(topic)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cleanup()
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-ch:
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Publish delivers event to every subscriber of topic. Slow subscribers miss it.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event.Topic = topic
	if subs, ok := h.subscribers[topic]; ok {
		for ch := range subs {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions to topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[topic])
}

func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
