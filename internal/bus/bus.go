package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events retained for
	// late subscribers (the TUI attaching after startup).
	DefaultHistorySize = 200

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	// A subscriber that falls this far behind starts losing events.
	DefaultChannelBuffer = 100
)

// SubscriptionID identifies one subscription.
type SubscriptionID string

// Subscription couples an event filter with its delivery channel and
// handler goroutine.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)
	Channel   chan Event
	done      chan struct{}
}

// Bus is a thread-safe pub/sub hub with wildcard subscriptions and a
// bounded replay history. Delivery is best-effort: a full subscriber
// channel drops the event for that subscriber only.
type Bus struct {
	mu         sync.RWMutex
	subs       map[SubscriptionID]*Subscription
	typedSubs  map[EventType]map[SubscriptionID]*Subscription
	wildcards  map[SubscriptionID]*Subscription
	subCounter uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New returns a bus with default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory returns a bus retaining the given number of events.
func NewWithHistory(historySize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*Subscription),
		typedSubs:   make(map[EventType]map[SubscriptionID]*Subscription),
		wildcards:   make(map[SubscriptionID]*Subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for one event type, or for every event
// with EventType(""). Handlers run on a dedicated goroutine per
// subscription, so a slow handler delays only its own deliveries.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	b.mu.Lock()
	b.subCounter++
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter))

	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Channel:   make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}
	b.subs[id] = sub
	if eventType == "" {
		b.wildcards[id] = sub
	} else {
		if b.typedSubs[eventType] == nil {
			b.typedSubs[eventType] = make(map[SubscriptionID]*Subscription)
		}
		b.typedSubs[eventType][id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(sub)

	return id
}

func (b *Bus) run(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.Channel:
			sub.Handler(event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return fmt.Errorf("bus: closed")
	}

	b.mu.Lock()
	sub, exists := b.subs[id]
	if !exists {
		b.mu.Unlock()
		return fmt.Errorf("bus: subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.EventType == "" {
		delete(b.wildcards, id)
	} else if typed, ok := b.typedSubs[sub.EventType]; ok {
		delete(typed, id)
		if len(typed) == 0 {
			delete(b.typedSubs, sub.EventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish fans an event out to wildcard and matching typed
// subscribers.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return fmt.Errorf("bus: closed")
	}

	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.wildcards {
		select {
		case sub.Channel <- event:
		default:
			// Subscriber too slow; drop for them only.
		}
	}
	for _, sub := range b.typedSubs[event.Type] {
		select {
		case sub.Channel <- event:
		default:
		}
	}
	return nil
}

func (b *Bus) addToHistory(event Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// SubscriptionsCount returns the number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscription goroutine and clears the maps.
// Publishing after Close is an error.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus: already closed")
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.Channel)
	}
	b.subs = make(map[SubscriptionID]*Subscription)
	b.typedSubs = make(map[EventType]map[SubscriptionID]*Subscription)
	b.wildcards = make(map[SubscriptionID]*Subscription)
	b.mu.Unlock()

	return nil
}
