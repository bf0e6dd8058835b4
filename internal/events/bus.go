package events

import (
	"log/slog"
	"sync"
)

// Handler receives one event. Handlers run on the publisher's goroutine and
// must not call mutating APIs of the publishing component; they enqueue instead.
type Handler func(Event)

// SubID identifies a subscription for Unsubscribe.
type SubID uint64

type subscription struct {
	id SubID
	h  Handler
}

// Bus is the synchronous in-process publish/subscribe surface.
type Bus struct {
	mu     sync.RWMutex
	nextID SubID
	topics map[Topic][]subscription
	all    []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Topic][]subscription)}
}

// Subscribe registers h for a single topic.
func (b *Bus) Subscribe(topic Topic, h Handler) SubID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscription{id: b.nextID, h: h})
	return b.nextID
}

// SubscribeAll registers h for every topic.
func (b *Bus) SubscribeAll(h Handler) SubID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.all = append(b.all, subscription{id: b.nextID, h: h})
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.topics {
		b.topics[topic] = removeSub(subs, id)
	}
	b.all = removeSub(b.all, id)
}

func removeSub(subs []subscription, id SubID) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers each event, in order, to its topic and catch-all
// subscribers in subscription order. Events published by a handler reach
// later subscribers before the event that caused them. A nil bus drops
// everything.
func (b *Bus) Publish(evs ...Event) {
	if b == nil {
		return
	}
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		b.mu.RLock()
		targets := merge(b.topics[ev.Topic()], b.all)
		b.mu.RUnlock()

		for _, s := range targets {
			deliver(s, ev)
		}
	}
}

// merge interleaves two id-ordered subscription lists into a new slice.
func merge(a, b []subscription) []subscription {
	out := make([]subscription, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if a[0].id < b[0].id {
			out, a = append(out, a[0]), a[1:]
		} else {
			out, b = append(out, b[0]), b[1:]
		}
	}
	out = append(out, a...)
	return append(out, b...)
}

// deliver isolates a faulty subscriber from the publisher and its peers.
func deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "sub_id", s.id, "topic", ev.Topic(), "panic", r)
		}
	}()
	s.h(ev)
}

// Serial publishes a producer's event batches in production order. The
// producer mutates inside fn (under its own lock) and returns the events;
// they are delivered after fn returns but before the next batch starts.
type Serial struct {
	mu  sync.Mutex
	bus *Bus
}

// NewSerial binds a serial emitter to bus (which may be nil).
func NewSerial(bus *Bus) *Serial {
	return &Serial{bus: bus}
}

// Do runs fn and publishes what it returns.
func (s *Serial) Do(fn func() []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := fn()
	s.bus.Publish(evs...)
}

// Bus returns the bus this emitter publishes to.
func (s *Serial) Bus() *Bus {
	return s.bus
}
