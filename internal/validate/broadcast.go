package validate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpdateKind identifies what an Update carries.
type UpdateKind int

const (
	// UpdateConnection carries a ConnectionState transition.
	UpdateConnection UpdateKind = iota
	// UpdateResult carries the complete current violation set for a
	// resource, never a delta.
	UpdateResult
	// UpdateUnavailable signals that validation for a resource failed
	// after exhausting retries. Any previously cached valid result for
	// the resource remains in place.
	UpdateUnavailable
)

// String returns a human-readable kind name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateConnection:
		return "connection"
	case UpdateResult:
		return "result"
	case UpdateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Update is the unit of fan-out to presentation surfaces. Seq is assigned
// under the broadcaster's lock, so subscribers observe updates in a single
// global order and never a partial state.
type Update struct {
	Kind UpdateKind
	ID   string
	Seq  uint64
	Time time.Time

	// Connection carries the state for UpdateConnection.
	Connection *ConnectionState

	// Key, Violations, and RequestID are set for UpdateResult and
	// (Key only) UpdateUnavailable.
	Key        ResourceKey
	RequestID  uint64
	Violations []Violation

	// Err carries the terminal error for UpdateUnavailable.
	Err error
}

// Subscriber receives updates. Implementations must not assume anything
// about other surfaces; the broadcaster has no knowledge of concrete
// surface types.
type Subscriber interface {
	Receive(Update)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Update)

// Receive implements Subscriber.
func (f SubscriberFunc) Receive(u Update) { f(u) }

// Subscription represents an active subscriber registration.
type Subscription struct {
	id uint64
	b  *Broadcaster
}

// Unsubscribe removes this subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.b != nil {
		s.b.remove(s.id)
		s.b = nil
	}
}

// Broadcaster fans the authoritative diagnostic/connection state out to all
// subscribed surfaces. Delivery is serialized: each update reaches every
// subscriber, in registration order, before the next update begins. A
// panicking subscriber is isolated so the remaining surfaces still converge.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]Subscriber
	order  []uint64
	nextID uint64
	seq    uint64

	// PanicHandler is invoked when a subscriber panics during delivery.
	// Nil means panics are silently recovered.
	panicHandler func(sub Subscriber, update Update, recovered any)
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]Subscriber)}
}

// SetPanicHandler installs a handler for subscriber panics.
func (b *Broadcaster) SetPanicHandler(h func(sub Subscriber, update Update, recovered any)) {
	b.mu.Lock()
	b.panicHandler = h
	b.mu.Unlock()
}

// Subscribe registers a subscriber. It immediately starts receiving every
// subsequent update.
func (b *Broadcaster) Subscribe(s Subscriber) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.order = append(b.order, id)
	return &Subscription{id: id, b: b}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// PublishConnection publishes a connection state transition.
func (b *Broadcaster) PublishConnection(st ConnectionState) {
	b.publish(Update{Kind: UpdateConnection, Connection: &st})
}

// PublishResult publishes the complete current violation set for a resource.
func (b *Broadcaster) PublishResult(res *ValidationResult) {
	b.publish(Update{
		Kind:       UpdateResult,
		Key:        res.Key,
		RequestID:  res.RequestID,
		Violations: res.Violations,
	})
}

// PublishUnavailable publishes a validation-unavailable condition for a
// resource.
func (b *Broadcaster) PublishUnavailable(key ResourceKey, err error) {
	b.publish(Update{Kind: UpdateUnavailable, Key: key, Err: err})
}

func (b *Broadcaster) publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	u.Seq = b.seq
	u.ID = uuid.NewString()
	u.Time = time.Now()

	for _, id := range b.order {
		sub := b.subs[id]
		b.deliver(sub, u)
	}
}

func (b *Broadcaster) deliver(sub Subscriber, u Update) {
	defer func() {
		if r := recover(); r != nil && b.panicHandler != nil {
			b.panicHandler(sub, u, r)
		}
	}()
	sub.Receive(u)
}
