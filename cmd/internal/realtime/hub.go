package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrHubClosed = errors.New("hub closed")

// Hub is the registry of change-stream subscribers.
//
// One mutex guards the subscriber set. It is held only for enqueue
// attempts and never during network I/O.
type Hub struct {
	log         *slog.Logger
	metrics     *Metrics
	queueSize   int
	repeatDelay time.Duration
	now         func() time.Time

	mu     sync.Mutex
	subs   map[string]*Subscriber
	closed bool
}

type HubOption func(*Hub)

// WithQueueSize sets the per-subscriber queue capacity.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithRepeatDelay sets the delay of the follow-up publish scheduled by
// Notify. Zero disables the repeat.
func WithRepeatDelay(d time.Duration) HubOption {
	return func(h *Hub) {
		if d >= 0 {
			h.repeatDelay = d
		}
	}
}

func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:         log,
		queueSize:   defaultQueueSize,
		repeatDelay: defaultRepeatDelay,
		now:         func() time.Time { return time.Now().UTC() },
		subs:        make(map[string]*Subscriber),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers a new subscriber for userID.
func (h *Hub) Subscribe(userID string) (*Subscriber, error) {
	id, err := NewSubscriberID(h.now())
	if err != nil {
		return nil, err
	}
	sub := newSubscriber(id, userID, h.queueSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subs[id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.setSubscribers(n)
	h.log.Debug("hub.subscriber.join", "subscriber_id", id, "user_id", userID, "subscribers", n)
	return sub, nil
}

// Unsubscribe removes sub. Calling it again, or after eviction, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	n := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.metrics.setSubscribers(n)
		h.log.Debug("hub.subscriber.leave", "subscriber_id", sub.ID, "subscribers", n)
	}
}

// Publish enqueues one change event for every subscriber and returns how
// many accepted it. Subscribers with a full queue are evicted.
func (h *Hub) Publish(scope string) int {
	ev := NewChangeEvent(scope, h.now())

	var evicted []*Subscriber
	delivered := 0

	h.mu.Lock()
	for id, sub := range h.subs {
		select {
		case sub.events <- ev:
			delivered++
		default:
			delete(h.subs, id)
			evicted = append(evicted, sub)
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	for _, sub := range evicted {
		sub.close()
		h.log.Info("hub.subscriber.evict", "subscriber_id", sub.ID, "user_id", sub.UserID)
	}
	h.metrics.observePublish(delivered, len(evicted))
	if len(evicted) > 0 {
		h.metrics.setSubscribers(n)
	}
	return delivered
}

// Notify publishes now and, when a repeat delay is configured, once more
// after it. The repeat covers clients that refetch before the write that
// triggered the event is visible to them.
func (h *Hub) Notify(scope string) {
	h.Publish(scope)
	if h.repeatDelay > 0 {
		time.AfterFunc(h.repeatDelay, func() { h.Publish(scope) })
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every stream and rejects new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.metrics.setSubscribers(0)
	h.log.Info("hub.closed", "subscribers", len(subs))
}
