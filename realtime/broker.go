package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Broker fans events out to subscribers by kind. Subscribers only see events
// published after they subscribed.
type Broker struct {
	mu     sync.RWMutex
	subs   map[Kind]map[uuid.UUID]*Subscription
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[Kind]map[uuid.UUID]*Subscription)}
}

// Subscribe registers for the given kinds, or for every kind when none are
// given. Unknown kinds never receive anything.
func (b *Broker) Subscribe(kinds ...Kind) *Subscription {
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	s := newSubscription(b, kinds)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.shutdown()
		return s
	}
	for _, k := range kinds {
		if b.subs[k] == nil {
			b.subs[k] = make(map[uuid.UUID]*Subscription)
		}
		b.subs[k][s.id] = s
	}
	return s
}

func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[ev.Kind] {
		s.enqueue(ev)
	}
}

// Close closes every subscription. Later subscriptions are born closed.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := make(map[uuid.UUID]*Subscription)
	for _, byID := range b.subs {
		for id, s := range byID {
			subs[id] = s
		}
	}
	b.subs = make(map[Kind]map[uuid.UUID]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range s.kinds {
		delete(b.subs[k], s.id)
	}
}

// Subscription is an unbounded, ordered event stream. Publishing never blocks
// on a slow reader.
type Subscription struct {
	id     uuid.UUID
	kinds  []Kind
	broker *Broker

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
	out    chan Event
	once   sync.Once
}

func newSubscription(b *Broker, kinds []Kind) *Subscription {
	s := &Subscription{
		id:     uuid.New(),
		kinds:  append([]Kind(nil), kinds...),
		broker: b,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	go s.pump()
	return s
}

func (s *Subscription) ID() string {
	return s.id.String()
}

// C delivers events in publish order. It is closed after Close.
func (s *Subscription) C() <-chan Event {
	return s.out
}

func (s *Subscription) Close() {
	s.broker.remove(s)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
