// Package notify is the change-notification contract between the engine and
// whatever renders it. Publishers call Publish after a mutation; subscribers
// are invoked synchronously, in publish order, from the publishing goroutine.
package notify

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Topic string

const (
	TopicPrices Topic = "prices"
	TopicView   Topic = "view"
)

// Event describes one state change. Data is topic specific:
// the updated asset ids for prices, the new view state for view.
type Event struct {
	Seq   uint64    `json:"seq"`
	Topic Topic     `json:"topic"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

type Hub struct {
	seq atomic.Uint64

	// pubMu serializes delivery so Seq order is delivery order.
	pubMu sync.Mutex

	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Event)
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]func(Event)), now: time.Now}
}

// Subscribe registers fn and returns a function that removes it.
// fn must not call Publish on the same hub.
func (h *Hub) Subscribe(fn func(Event)) (cancel func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(topic Topic, data any) Event {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	ev := Event{Seq: h.seq.Add(1), Topic: topic, At: h.now(), Data: data}

	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return ev
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
