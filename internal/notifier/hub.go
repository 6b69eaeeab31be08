package notifier

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	KindBookingChanged = "booking_changed"
	KindPaymentChanged = "payment_changed"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// Event describes one observed state transition. Kind tells subscribers
// which entity moved; a reconcile pass that confirms a booking publishes
// both a payment and a booking event on the same topic.
type Event struct {
	Kind       string    `json:"kind"`
	BookingID  string    `json:"booking_id,omitempty"`
	PaymentID  string    `json:"payment_id,omitempty"`
	OwnerID    string    `json:"owner_id"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Hub fans reconciliation events out to watchers keyed by topic (a booking
// id or an owner id). Slow subscribers drop events rather than block the
// reconcile path. A topic only exists while someone watches it: events
// published to an unwatched topic are dropped, and the buffer is freed when
// the last subscriber leaves. The replay a subscriber receives therefore
// covers events published since the topic's first watcher arrived, not the
// booking's full history; every reconcile pass publishes to two topics per
// booking, so buffering unwatched topics would grow without bound.
type Hub struct {
	mu               sync.RWMutex
	topics           map[string]*topic
	bufferSize       int
	subscriberBuffer int
}

type topic struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub  *Hub
	key  string
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		topics:           make(map[string]*topic),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(key string, event Event) {
	if h == nil {
		return
	}
	name := strings.TrimSpace(key)
	if name == "" {
		return
	}
	h.mu.RLock()
	topic := h.topics[name]
	h.mu.RUnlock()
	if topic == nil {
		return
	}

	topic.mu.Lock()
	topic.buffer = append(topic.buffer, event)
	if len(topic.buffer) > h.bufferSize {
		topic.buffer = topic.buffer[len(topic.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(topic.subs))
	for _, ch := range topic.subs {
		subs = append(subs, ch)
	}
	topic.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribe(key string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	name := strings.TrimSpace(key)
	if name == "" {
		return nil, nil, errors.New("invalid_topic")
	}

	topic := h.ensureTopic(name)
	topic.mu.Lock()
	if topic.subs == nil {
		topic.subs = make(map[uint64]chan Event)
	}
	id := topic.nextID
	topic.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	topic.subs[id] = ch
	buffer := append([]Event(nil), topic.buffer...)
	topic.mu.Unlock()

	return &Subscription{
		hub: h,
		key: name,
		id:  id,
		ch:  ch,
	}, buffer, nil
}

func (h *Hub) ensureTopic(key string) *topic {
	h.mu.RLock()
	current := h.topics[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.topics[key]
	if current == nil {
		current = &topic{subs: make(map[uint64]chan Event)}
		h.topics[key] = current
	}
	return current
}

func (h *Hub) unsubscribe(key string, id uint64) {
	if h == nil {
		return
	}
	name := strings.TrimSpace(key)
	if name == "" {
		return
	}

	h.mu.RLock()
	topic := h.topics[name]
	h.mu.RUnlock()
	if topic == nil {
		return
	}

	topic.mu.Lock()
	delete(topic.subs, id)
	remaining := len(topic.subs)
	topic.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.topics[name]
	if current != topic {
		h.mu.Unlock()
		return
	}
	topic.mu.Lock()
	empty := len(topic.subs) == 0
	topic.mu.Unlock()
	if empty {
		delete(h.topics, name)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.key, s.id)
	})
}
