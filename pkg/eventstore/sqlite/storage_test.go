package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/eventstore/sqlite"
)

func newStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	s, err := sqlite.New(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func userAggregate(id string) *eventstore.Aggregate {
	return eventstore.NewAggregate(id, "user", "o1", "i1")
}

func TestPushAssignsContiguousSequences(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	agg := userAggregate("u1")

	events, err := s.Push(ctx,
		eventstore.NewCommand(agg, "user.human.added", "system", map[string]string{"username": "alice"}),
		eventstore.NewCommand(agg, "user.human.email.changed", "system", map[string]string{"email": "a@example.com"}),
	)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)
	assert.Equal(t, uint64(2), agg.CurrentSequence)
	assert.Less(t, events[0].Position, events[1].Position)

	// Push again from the updated head: sequences continue without gaps.
	events, err = s.Push(ctx, eventstore.NewCommand(agg, "user.deactivated", "system", nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), events[0].Sequence)
}

func TestPushKeysHeadsByAggregateIdentity(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	// Commands routinely carry distinct descriptor pointers for the same
	// logical aggregate; sequences must still be assigned per identity.
	events, err := s.Push(ctx,
		eventstore.NewCommand(userAggregate("u1"), "user.human.email.changed", "system", nil),
		eventstore.NewCommand(userAggregate("u1"), "user.human.email.verified", "system", nil),
	)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)
}

func TestPushDetectsConcurrencyConflict(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	first := userAggregate("u1")
	_, err := s.Push(ctx, eventstore.NewCommand(first, "user.human.added", "system", nil))
	require.NoError(t, err)

	// A second writer loaded before the first push landed.
	stale := userAggregate("u1")
	_, err = s.Push(ctx, eventstore.NewCommand(stale, "user.human.added", "system", nil))
	assert.True(t, apperr.IsConcurrencyConflict(err))
}

func TestPushIsAtomicAcrossAggregates(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	u1 := userAggregate("u1")
	u2 := userAggregate("u2")
	_, err := s.Push(ctx, eventstore.NewCommand(u2, "user.human.added", "system", nil))
	require.NoError(t, err)

	// u2's descriptor is stale, so the multi-aggregate push must fail and
	// leave u1 without events.
	stale := userAggregate("u2")
	_, err = s.Push(ctx,
		eventstore.NewCommand(u1, "user.human.added", "system", nil),
		eventstore.NewCommand(stale, "user.human.email.changed", "system", nil),
	)
	require.Error(t, err)

	events, err := s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").
		WithAggregateTypes("user").WithAggregateIDs("u1"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUniqueConstraints(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	claim := func(agg *eventstore.Aggregate, username string) error {
		_, err := s.Push(ctx, eventstore.NewCommand(agg, "user.human.added", "system", nil,
			eventstore.NewAddUniqueConstraint("usernames", "o1:"+username, "USER-101"),
		))
		return err
	}

	require.NoError(t, claim(userAggregate("u1"), "alice"))

	err := claim(userAggregate("u2"), "alice")
	require.True(t, apperr.IsAlreadyExists(err))
	assert.Equal(t, "USER-101", apperr.IDOf(err))

	// Releasing frees the value for a new claim.
	u1 := userAggregate("u1")
	u1.CurrentSequence = 1
	_, err = s.Push(ctx, eventstore.NewCommand(u1, "user.removed", "system", nil,
		eventstore.NewRemoveUniqueConstraint("usernames", "o1:alice"),
	))
	require.NoError(t, err)
	assert.NoError(t, claim(userAggregate("u3"), "alice"))
}

func TestFilterOrdering(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	u1 := userAggregate("u1")
	u2 := userAggregate("u2")
	_, err := s.Push(ctx,
		eventstore.NewCommand(u1, "user.human.added", "system", nil),
		eventstore.NewCommand(u2, "user.human.added", "system", nil),
		eventstore.NewCommand(u1, "user.human.email.changed", "system", nil),
	)
	require.NoError(t, err)

	// Single aggregate: ordered by sequence.
	events, err := s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").
		WithAggregateTypes("user").WithAggregateIDs("u1"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)

	// Multi aggregate: ordered by global position.
	events, err = s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").WithAggregateTypes("user"))
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Position, events[i-1].Position)
	}
}

func TestFilterByEventTypeAndPosition(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	agg := userAggregate("u1")
	pushed, err := s.Push(ctx,
		eventstore.NewCommand(agg, "user.human.added", "system", nil),
		eventstore.NewCommand(agg, "user.human.email.changed", "system", nil),
	)
	require.NoError(t, err)

	events, err := s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").
		WithEventTypes("user.human.email.changed"))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").
		WithPositionAfter(pushed[0].Position))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventstore.EventType("user.human.email.changed"), events[0].Type)

	position, err := s.LatestPosition(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, pushed[1].Position, position)
}

func TestInstanceIsolation(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	a := eventstore.NewAggregate("u1", "user", "o1", "i1")
	b := eventstore.NewAggregate("u1", "user", "o9", "i2")
	_, err := s.Push(ctx,
		eventstore.NewCommand(a, "user.human.added", "system", nil),
		eventstore.NewCommand(b, "user.human.added", "system", nil),
	)
	require.NoError(t, err)

	events, err := s.Filter(ctx, eventstore.NewSearchQueryBuilder("i2"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "i2", events[0].Aggregate.InstanceID)
}

func TestPayloadRoundTrip(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	type addedPayload struct {
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
	}

	agg := userAggregate("u1")
	_, err := s.Push(ctx, eventstore.NewCommand(agg, "user.human.added", "system",
		addedPayload{Username: "alice", FirstName: "A"}))
	require.NoError(t, err)

	events, err := s.Filter(ctx, eventstore.NewSearchQueryBuilder("i1").
		WithAggregateTypes("user").WithAggregateIDs("u1"))
	require.NoError(t, err)
	require.Len(t, events, 1)

	var got addedPayload
	require.NoError(t, events[0].UnmarshalPayload(&got))
	assert.Equal(t, addedPayload{Username: "alice", FirstName: "A"}, got)
}
