package events

import (
	"sync"
	"time"

	"github.com/meridianlabs/davsync/pkg/types"
)

// Type identifies the kind of notification carried by an Event.
type Type string

const (
	// AccountAdded fires after Store.AddAccount commits.
	AccountAdded Type = "account.added"
	// AccountUpdated fires after Store.UpdateAccount commits.
	AccountUpdated Type = "account.updated"
	// AccountRemoved fires after Store.RemoveAccount commits.
	AccountRemoved Type = "account.removed"
	// ResourcesChanged fires after any Store mutation that produced a
	// non-empty ChangeSet for a resource manager's account.
	ResourcesChanged Type = "resources.changed"
)

// Event is a single notification published by the service facade. Only the
// fields relevant to Type are populated: Account for the three lifecycle
// events, Changes for ResourcesChanged.
type Event struct {
	Type      Type
	Timestamp time.Time
	Account   types.Account
	Changes   types.ChangeSet
}

// Subscriber is a channel that receives events on the broker's main domain.
type Subscriber chan *Event

// Broker fans Service Facade events out to subscribers. Publish never blocks
// the caller on slow subscribers: broadcast happens on the broker's own
// goroutine (the "main domain" §5 requires notifications be marshalled to),
// and a subscriber whose buffer is full simply misses events rather than
// stalling the whole engine.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new, unstarted event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop on its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Subsequent Publish calls are dropped.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues an event for delivery to every current subscriber.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full; drop rather than stall the broker
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
