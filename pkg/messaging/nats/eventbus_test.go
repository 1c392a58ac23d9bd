package nats_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/messaging"
	natsbus "github.com/nordlys-id/nordlys/pkg/messaging/nats"
	"github.com/nordlys-id/nordlys/pkg/messaging/natstest"
)

func TestPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded NATS server")
	}

	srv, err := natstest.Start(t.TempDir())
	require.NoError(t, err)
	defer srv.Shutdown()

	cfg := natsbus.DefaultConfig()
	cfg.URL = srv.URL()
	bus, err := natsbus.NewEventBus(cfg)
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan *eventstore.Event, 4)
	sub, err := bus.Subscribe(messaging.EventFilter{
		AggregateTypes: []eventstore.AggregateType{"user"},
	}, func(event *eventstore.Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	events := []*eventstore.Event{
		{
			Aggregate: eventstore.Aggregate{ID: "u1", Type: "user", ResourceOwner: "o1", InstanceID: "i1"},
			Type:      "user.human.added", Sequence: 1, Position: 1, CreatedAt: time.Now(),
		},
		{
			Aggregate: eventstore.Aggregate{ID: "org1", Type: "org", ResourceOwner: "org1", InstanceID: "i1"},
			Type:      "org.added", Sequence: 1, Position: 2, CreatedAt: time.Now(),
		},
	}
	require.NoError(t, bus.Publish(context.Background(), events))

	select {
	case event := <-received:
		assert.Equal(t, eventstore.EventType("user.human.added"), event.Type)
		assert.Equal(t, "u1", event.Aggregate.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	// The org event is filtered out.
	select {
	case event := <-received:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(200 * time.Millisecond):
	}
}
