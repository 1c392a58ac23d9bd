package eventstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

type fakeStorage struct {
	pushCalls int
	failTimes int
	failWith  error
	events    []*eventstore.Event
}

func (f *fakeStorage) Push(ctx context.Context, commands ...*eventstore.Command) ([]*eventstore.Event, error) {
	f.pushCalls++
	if f.pushCalls <= f.failTimes {
		return nil, f.failWith
	}
	events := make([]*eventstore.Event, len(commands))
	for i, cmd := range commands {
		events[i] = &eventstore.Event{
			Aggregate: *cmd.Aggregate,
			Type:      cmd.Type,
			Sequence:  cmd.Aggregate.CurrentSequence + uint64(i) + 1,
			Position:  uint64(len(f.events) + i + 1),
			CreatedAt: time.Now(),
		}
	}
	f.events = append(f.events, events...)
	return events, nil
}

func (f *fakeStorage) Filter(ctx context.Context, query *eventstore.SearchQueryBuilder) ([]*eventstore.Event, error) {
	return f.events, nil
}

func (f *fakeStorage) LatestPosition(ctx context.Context, instanceID string) (uint64, error) {
	return uint64(len(f.events)), nil
}

func (f *fakeStorage) Close() error { return nil }

func TestPushRetriesUnavailable(t *testing.T) {
	storage := &fakeStorage{
		failTimes: 2,
		failWith:  apperr.ThrowUnavailable(nil, "SQL-000", "busy"),
	}
	es := eventstore.New(storage)

	agg := eventstore.NewAggregate("u1", "user", "o1", "i1")
	events, err := es.Push(context.Background(), eventstore.NewCommand(agg, "user.human.added", "system", nil))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 3, storage.pushCalls)
}

func TestPushGivesUpAfterThreeAttempts(t *testing.T) {
	storage := &fakeStorage{
		failTimes: 10,
		failWith:  apperr.ThrowUnavailable(nil, "SQL-000", "busy"),
	}
	es := eventstore.New(storage)

	agg := eventstore.NewAggregate("u1", "user", "o1", "i1")
	_, err := es.Push(context.Background(), eventstore.NewCommand(agg, "user.human.added", "system", nil))
	assert.True(t, apperr.IsUnavailable(err))
	assert.Equal(t, 3, storage.pushCalls)
}

func TestPushDoesNotRetryConflicts(t *testing.T) {
	storage := &fakeStorage{
		failTimes: 1,
		failWith:  apperr.ThrowConcurrencyConflict(nil, "SQL-003", "conflict"),
	}
	es := eventstore.New(storage)

	agg := eventstore.NewAggregate("u1", "user", "o1", "i1")
	_, err := es.Push(context.Background(), eventstore.NewCommand(agg, "user.human.added", "system", nil))
	assert.True(t, apperr.IsConcurrencyConflict(err))
	assert.Equal(t, 1, storage.pushCalls)
}

type recordingListener struct {
	notified int
}

func (l *recordingListener) EventsPushed(ctx context.Context, events []*eventstore.Event) {
	l.notified += len(events)
}

func TestPushNotifiesListeners(t *testing.T) {
	storage := &fakeStorage{}
	listener := &recordingListener{}
	es := eventstore.New(storage, eventstore.WithPushedListener(listener))

	agg := eventstore.NewAggregate("u1", "user", "o1", "i1")
	_, err := es.Push(context.Background(),
		eventstore.NewCommand(agg, "user.human.added", "system", nil),
		eventstore.NewCommand(agg, "user.human.email.changed", "system", nil),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, listener.notified)
}

type testModel struct {
	eventstore.WriteModel
	added int
}

func (m *testModel) Reduce() error {
	for _, event := range m.Events {
		if event.Type == "user.human.added" {
			m.added++
		}
	}
	return m.WriteModel.Reduce()
}

func TestWriteModelFold(t *testing.T) {
	now := time.Now()
	model := &testModel{}
	model.AppendEvents(
		&eventstore.Event{
			Aggregate: eventstore.Aggregate{ID: "u1", ResourceOwner: "o1", InstanceID: "i1"},
			Type:      "user.human.added", Sequence: 1, CreatedAt: now,
		},
		&eventstore.Event{
			Aggregate: eventstore.Aggregate{ID: "u1", ResourceOwner: "o1", InstanceID: "i1"},
			Type:      "user.human.email.changed", Sequence: 2, CreatedAt: now.Add(time.Second),
		},
	)
	require.NoError(t, model.Reduce())

	assert.Equal(t, 1, model.added)
	assert.Equal(t, uint64(2), model.ProcessedSequence)
	assert.Equal(t, "o1", model.ResourceOwner)
	assert.Empty(t, model.Events)

	details := eventstore.WriteModelToObjectDetails(&model.WriteModel)
	assert.Equal(t, uint64(2), details.Sequence)
	assert.Equal(t, "o1", details.ResourceOwner)

	// Fold determinism: the same prefix yields the same state.
	again := &testModel{}
	again.AppendEvents(
		&eventstore.Event{Aggregate: eventstore.Aggregate{ID: "u1", ResourceOwner: "o1", InstanceID: "i1"}, Type: "user.human.added", Sequence: 1, CreatedAt: now},
		&eventstore.Event{Aggregate: eventstore.Aggregate{ID: "u1", ResourceOwner: "o1", InstanceID: "i1"}, Type: "user.human.email.changed", Sequence: 2, CreatedAt: now.Add(time.Second)},
	)
	require.NoError(t, again.Reduce())
	assert.Equal(t, model.added, again.added)
	assert.Equal(t, model.ProcessedSequence, again.ProcessedSequence)
}
