package broadcast

import (
	"sync"

	"github.com/samber/lo"
)

// Subscriber receives frames published on the topics it subscribed to.
type Subscriber interface {
	ID() string
	Deliver(topic string, payload []byte) error
}

// DeliveryError records a failed delivery to one subscriber.
type DeliveryError struct {
	SubscriberID string
	Err          error
}

// Subscriptions is the transport-side broker table mapping topic keys to
// their subscribers.
type Subscriptions struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber
	// bySub indexes topics per subscriber for UnsubscribeAll.
	bySub map[string]map[string]struct{}
}

// NewSubscriptions creates an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		topics: make(map[string]map[string]Subscriber),
		bySub:  make(map[string]map[string]struct{}),
	}
}

// Subscribe registers sub on topic. Subscribing twice is a no-op.
func (s *Subscriptions) Subscribe(topic string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.topics[topic] == nil {
		s.topics[topic] = make(map[string]Subscriber)
	}
	s.topics[topic][sub.ID()] = sub

	if s.bySub[sub.ID()] == nil {
		s.bySub[sub.ID()] = make(map[string]struct{})
	}
	s.bySub[sub.ID()][topic] = struct{}{}
}

// Unsubscribe removes subscriberID from topic.
func (s *Subscriptions) Unsubscribe(topic, subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(topic, subscriberID)
}

// UnsubscribeAll removes subscriberID from every topic it joined.
func (s *Subscriptions) UnsubscribeAll(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic := range s.bySub[subscriberID] {
		s.removeLocked(topic, subscriberID)
	}
}

func (s *Subscriptions) removeLocked(topic, subscriberID string) {
	if subs, ok := s.topics[topic]; ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(s.topics, topic)
		}
	}
	if topics, ok := s.bySub[subscriberID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(s.bySub, subscriberID)
		}
	}
}

// Deliver sends payload to every current subscriber of topic. The
// subscriber set is copied first so delivery never holds the table lock;
// failures are collected and do not stop delivery to the others.
func (s *Subscriptions) Deliver(topic string, payload []byte) (delivered int, failures []DeliveryError) {
	s.mu.RLock()
	subs := lo.Values(s.topics[topic])
	s.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Deliver(topic, payload); err != nil {
			failures = append(failures, DeliveryError{SubscriberID: sub.ID(), Err: err})
			continue
		}
		delivered++
	}
	return delivered, failures
}

// Count returns the number of subscribers on topic.
func (s *Subscriptions) Count(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics[topic])
}

// Stats returns the number of active topics and subscribers.
func (s *Subscriptions) Stats() (topics, subscribers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics), len(s.bySub)
}
