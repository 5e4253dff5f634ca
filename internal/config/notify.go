package config

import (
	"sync"
)

// Observer is called after a configuration reload with the old and new
// options.
type Observer func(old, new Options)

// ObserverSubscription represents an active observer registration.
type ObserverSubscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this observer. Safe to call more than once.
func (s *ObserverSubscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.remove(s.id)
		s.notifier = nil
	}
}

// Notifier manages configuration change observers. Notification is
// synchronous and in registration order.
type Notifier struct {
	mu        sync.Mutex
	observers map[uint64]Observer
	order     []uint64
	nextID    uint64
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{observers: make(map[uint64]Observer)}
}

// Subscribe registers an observer.
func (n *Notifier) Subscribe(obs Observer) *ObserverSubscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.observers[id] = obs
	n.order = append(n.order, id)
	return &ObserverSubscription{id: id, notifier: n}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.observers[id]; !ok {
		return
	}
	delete(n.observers, id)
	for i, v := range n.order {
		if v == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Notify calls every observer with the old and new options.
func (n *Notifier) Notify(old, new Options) {
	n.mu.Lock()
	obs := make([]Observer, 0, len(n.order))
	for _, id := range n.order {
		obs = append(obs, n.observers[id])
	}
	n.mu.Unlock()

	for _, o := range obs {
		o(old, new)
	}
}
