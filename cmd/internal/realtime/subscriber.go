package realtime

import "sync"

// Subscriber is one live stream connection registered with a Hub.
//
// events is never closed; a closed Done channel is the only end-of-stream
// signal, which keeps concurrent publishers from sending on a closed channel.
type Subscriber struct {
	ID     string
	UserID string

	events    chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(id, userID string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Subscriber{
		ID:     id,
		UserID: userID,
		events: make(chan ChangeEvent, queueSize),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) Events() <-chan ChangeEvent { return s.events }

// Done is closed once the subscriber is unsubscribed, evicted or the hub
// shuts down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
