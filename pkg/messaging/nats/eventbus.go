// Package nats implements the event bus on NATS JetStream for multi-node
// deployments: every node's projections learn about pushes from every other
// node without polling delay.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/messaging"
)

// Config for the JetStream event bus.
type Config struct {
	// URL of the NATS server.
	URL string

	// StreamName of the JetStream stream carrying events.
	StreamName string

	// MaxAge retains events on the stream for replays of recently started
	// subscribers; the event log remains authoritative.
	MaxAge time.Duration

	// MaxBytes bounds stream storage.
	MaxBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:        nats.DefaultURL,
		StreamName: "IAM_EVENTS",
		MaxAge:     24 * time.Hour,
		MaxBytes:   1 << 30,
	}
}

// EventBus is the JetStream implementation of messaging.EventBus.
type EventBus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string

	mu   sync.Mutex
	subs []*subscription
}

// wireEvent is the JSON frame on the stream.
type wireEvent struct {
	InstanceID    string    `json:"instanceId"`
	AggregateType string    `json:"aggregateType"`
	AggregateID   string    `json:"aggregateId"`
	ResourceOwner string    `json:"resourceOwner"`
	EventType     string    `json:"eventType"`
	Creator       string    `json:"creator"`
	Sequence      uint64    `json:"sequence"`
	Position      uint64    `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
	Payload       []byte    `json:"payload,omitempty"`
}

// NewEventBus connects and ensures the stream exists.
func NewEventBus(cfg Config) (*EventBus, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	bus := &EventBus{nc: nc, js: js, streamName: cfg.StreamName}
	if err := bus.ensureStream(cfg); err != nil {
		nc.Close()
		return nil, err
	}
	return bus, nil
}

func (b *EventBus) ensureStream(cfg Config) error {
	streamCfg := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.StreamName + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}
	if _, err := b.js.StreamInfo(cfg.StreamName); err != nil {
		if _, err := b.js.AddStream(streamCfg); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}
	if _, err := b.js.UpdateStream(streamCfg); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

// subject is <stream>.<instance>.<aggregateType> so subscribers can filter
// server-side by aggregate type.
func (b *EventBus) subject(event *eventstore.Event) string {
	return fmt.Sprintf("%s.%s.%s", b.streamName, event.Aggregate.InstanceID, event.Aggregate.Type)
}

// Publish sends events to the stream.
func (b *EventBus) Publish(ctx context.Context, events []*eventstore.Event) error {
	for _, event := range events {
		data, err := json.Marshal(wireEvent{
			InstanceID:    event.Aggregate.InstanceID,
			AggregateType: string(event.Aggregate.Type),
			AggregateID:   event.Aggregate.ID,
			ResourceOwner: event.Aggregate.ResourceOwner,
			EventType:     string(event.Type),
			Creator:       event.Creator,
			Sequence:      event.Sequence,
			Position:      event.Position,
			CreatedAt:     event.CreatedAt,
			Payload:       event.Payload,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := b.js.Publish(b.subject(event), data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

// Subscribe delivers matching events to handler. Delivery is at-least-once;
// handlers must tolerate duplicates (projections are idempotent anyway).
func (b *EventBus) Subscribe(filter messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	natsSub, err := b.js.Subscribe(b.streamName+".>", func(msg *nats.Msg) {
		var frame wireEvent
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			_ = msg.Term()
			return
		}
		event := &eventstore.Event{
			Aggregate: eventstore.Aggregate{
				ID:            frame.AggregateID,
				Type:          eventstore.AggregateType(frame.AggregateType),
				ResourceOwner: frame.ResourceOwner,
				InstanceID:    frame.InstanceID,
			},
			Type:      eventstore.EventType(frame.EventType),
			Creator:   frame.Creator,
			Sequence:  frame.Sequence,
			Position:  frame.Position,
			CreatedAt: frame.CreatedAt,
			Payload:   frame.Payload,
		}
		if !filter.Matches(event) {
			_ = msg.Ack()
			return
		}
		if err := handler(event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.DeliverNew(), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &subscription{natsSub: natsSub}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// Close drains the connection.
func (b *EventBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()
	return b.nc.Drain()
}

type subscription struct {
	natsSub *nats.Subscription
	once    sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.natsSub.Unsubscribe()
	})
	return err
}
