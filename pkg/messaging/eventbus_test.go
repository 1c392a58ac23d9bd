package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/messaging"
)

func TestInProcessBusFiltering(t *testing.T) {
	bus := messaging.NewInProcessBus(nil)
	defer bus.Close()

	var userEvents, allEvents []*eventstore.Event
	_, err := bus.Subscribe(messaging.EventFilter{
		AggregateTypes: []eventstore.AggregateType{"user"},
	}, func(event *eventstore.Event) error {
		userEvents = append(userEvents, event)
		return nil
	})
	require.NoError(t, err)

	sub, err := bus.Subscribe(messaging.EventFilter{}, func(event *eventstore.Event) error {
		allEvents = append(allEvents, event)
		return nil
	})
	require.NoError(t, err)

	events := []*eventstore.Event{
		{Aggregate: eventstore.Aggregate{Type: "user"}, Type: "user.human.added"},
		{Aggregate: eventstore.Aggregate{Type: "org"}, Type: "org.added"},
	}
	require.NoError(t, bus.Publish(context.Background(), events))

	assert.Len(t, userEvents, 1)
	assert.Len(t, allEvents, 2)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Publish(context.Background(), events))
	assert.Len(t, allEvents, 2)
	assert.Len(t, userEvents, 2)
}

func TestFilterMatches(t *testing.T) {
	event := &eventstore.Event{
		Aggregate: eventstore.Aggregate{Type: "user"},
		Type:      "user.human.added",
	}

	assert.True(t, messaging.EventFilter{}.Matches(event))
	assert.True(t, messaging.EventFilter{EventTypes: []eventstore.EventType{"user.human.added"}}.Matches(event))
	assert.False(t, messaging.EventFilter{EventTypes: []eventstore.EventType{"org.added"}}.Matches(event))
	assert.False(t, messaging.EventFilter{AggregateTypes: []eventstore.AggregateType{"org"}}.Matches(event))
}
