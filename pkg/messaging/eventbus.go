// Package messaging distributes pushed events to in-process and remote
// subscribers. Projections use it as a wake-up signal between poll ticks;
// the event log remains the source of truth.
package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

// EventHandler processes a published event. Returning an error nacks the
// delivery where the transport supports redelivery.
type EventHandler func(event *eventstore.Event) error

// EventFilter restricts a subscription. Empty slices match everything.
type EventFilter struct {
	AggregateTypes []eventstore.AggregateType
	EventTypes     []eventstore.EventType
}

// Matches reports whether the filter accepts the event.
func (f EventFilter) Matches(event *eventstore.Event) bool {
	if len(f.AggregateTypes) > 0 && !contains(f.AggregateTypes, event.Aggregate.Type) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, event.Type) {
		return false
	}
	return true
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// EventBus publishes and subscribes to events.
type EventBus interface {
	Publish(ctx context.Context, events []*eventstore.Event) error
	Subscribe(filter EventFilter, handler EventHandler) (Subscription, error)
	Close() error
}

// Notifier adapts an EventBus to the eventstore's post-commit listener.
// Publish failures are logged, never surfaced: the events are committed and
// projections will catch up by polling.
type Notifier struct {
	bus    EventBus
	logger *slog.Logger
}

// NewNotifier wraps bus. A nil logger falls back to slog.Default().
func NewNotifier(bus EventBus, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{bus: bus, logger: logger}
}

// EventsPushed implements eventstore.PushedListener.
func (n *Notifier) EventsPushed(ctx context.Context, events []*eventstore.Event) {
	if err := n.bus.Publish(ctx, events); err != nil {
		n.logger.Error("publishing pushed events failed", "error", err, "events", len(events))
	}
}

// InProcessBus is a channel-free, mutex-guarded bus for single-process
// deployments and tests.
type InProcessBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*inProcessSub
	logger *slog.Logger
}

type inProcessSub struct {
	bus     *InProcessBus
	id      int
	filter  EventFilter
	handler EventHandler
}

// NewInProcessBus creates an empty bus.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{subs: make(map[int]*inProcessSub), logger: logger}
}

// Publish delivers events synchronously to all matching subscribers.
func (b *InProcessBus) Publish(ctx context.Context, events []*eventstore.Event) error {
	b.mu.RLock()
	subs := make([]*inProcessSub, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, event := range events {
		for _, sub := range subs {
			if !sub.filter.Matches(event) {
				continue
			}
			if err := sub.handler(event); err != nil {
				b.logger.Warn("event handler failed", "error", err, "event_type", event.Type)
			}
		}
	}
	return nil
}

// Subscribe registers a handler.
func (b *InProcessBus) Subscribe(filter EventFilter, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &inProcessSub{bus: b, id: b.nextID, filter: filter, handler: handler}
	b.subs[sub.id] = sub
	return sub, nil
}

// Close drops all subscriptions.
func (b *InProcessBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]*inProcessSub)
	return nil
}

func (s *inProcessSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}
