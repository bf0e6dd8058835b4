package events

import "sync"

// Recorder captures every event published on a bus. Used by tests and by
// the replay tooling to assert delivery order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record subscribes a new Recorder to all topics of bus.
func Record(bus *Bus) *Recorder {
	r := &Recorder{}
	bus.SubscribeAll(func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Topic returns recorded events of a single topic.
func (r *Recorder) Topic(t Topic) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Topic() == t {
			out = append(out, e)
		}
	}
	return out
}

// Topics returns the topic sequence, handy for ordering assertions.
func (r *Recorder) Topics() []Topic {
	evs := r.Events()
	out := make([]Topic, len(evs))
	for i, e := range evs {
		out[i] = e.Topic()
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
