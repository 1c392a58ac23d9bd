package projection_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/eventstore/sqlite"
	"github.com/nordlys-id/nordlys/pkg/projection"
)

type countingProjection struct {
	reduced int
	failing bool
}

func (p *countingProjection) Name() string { return "counting" }

func (p *countingProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{"user.human.added", "user.removed"}
}

func (p *countingProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS test_users (
			id          TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			username    TEXT NOT NULL,
			removed     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (p *countingProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	if p.failing {
		return assert.AnError
	}
	p.reduced++
	switch event.Type {
	case "user.human.added":
		var payload struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO test_users (id, instance_id, username)
			VALUES (?, ?, ?)
			ON CONFLICT(instance_id, id) DO UPDATE SET username = excluded.username`,
			event.Aggregate.ID, event.Aggregate.InstanceID, payload.Username)
		return err
	case "user.removed":
		_, err := tx.ExecContext(ctx,
			`UPDATE test_users SET removed = 1 WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}

func newTestLog(t *testing.T) (*eventstore.Eventstore, *sql.DB) {
	t.Helper()
	storage, err := sqlite.New(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return eventstore.New(storage), storage.DB()
}

func pushUser(t *testing.T, es *eventstore.Eventstore, id, username string) *eventstore.Event {
	t.Helper()
	agg := eventstore.NewAggregate(id, "user", "org-1", "inst-1")
	events, err := es.Push(context.Background(),
		eventstore.NewCommand(agg, "user.human.added", "tester",
			map[string]any{"username": username}))
	require.NoError(t, err)
	return events[0]
}

func TestTriggerAppliesEvents(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(handler)

	pushUser(t, es, "u1", "alice")
	pushUser(t, es, "u2", "bob")

	require.NoError(t, manager.Trigger(context.Background(), "counting"))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM test_users`).Scan(&count))
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, handler.reduced)
}

func TestTriggerIsIdempotent(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(handler)

	event := pushUser(t, es, "u1", "alice")

	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	require.NoError(t, manager.Trigger(context.Background(), "counting"))

	// The cursor advanced; the second run saw nothing.
	assert.Equal(t, 1, handler.reduced)
	position, err := manager.CurrentPosition(context.Background(), "counting")
	require.NoError(t, err)
	assert.Equal(t, event.Position, position)
}

func TestFailedReduceDoesNotAdvanceCursor(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{failing: true}
	manager := projection.NewManager(db, es)
	manager.Register(handler)

	pushUser(t, es, "u1", "alice")

	require.Error(t, manager.Trigger(context.Background(), "counting"))
	position, err := manager.CurrentPosition(context.Background(), "counting")
	require.NoError(t, err)
	assert.Zero(t, position)

	// Once the handler recovers, the same event replays.
	handler.failing = false
	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	assert.Equal(t, 1, handler.reduced)
}

func TestEventTypeFiltering(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(handler)

	pushUser(t, es, "u1", "alice")
	agg := eventstore.NewAggregate("org-1", "org", "org-1", "inst-1")
	_, err := es.Push(context.Background(),
		eventstore.NewCommand(agg, "org.added", "tester", map[string]any{"name": "Acme"}))
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	assert.Equal(t, 1, handler.reduced)
}

type orgTableProjection struct {
	reduced int
}

func (p *orgTableProjection) Name() string { return "org_table" }

func (p *orgTableProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{"org.added"}
}

func (p *orgTableProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS test_orgs (
			id          TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (p *orgTableProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	p.reduced++
	_, err := tx.ExecContext(ctx, `
		INSERT INTO test_orgs (id, instance_id) VALUES (?, ?)
		ON CONFLICT(instance_id, id) DO NOTHING`,
		event.Aggregate.ID, event.Aggregate.InstanceID)
	return err
}

func TestTriggerInitialisesEachProjection(t *testing.T) {
	es, db := newTestLog(t)
	users := &countingProjection{}
	orgs := &orgTableProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(users)
	manager.Register(orgs)

	pushUser(t, es, "u1", "alice")
	agg := eventstore.NewAggregate("org-1", "org", "org-1", "inst-1")
	_, err := es.Push(context.Background(),
		eventstore.NewCommand(agg, "org.added", "tester", map[string]any{"name": "Acme"}))
	require.NoError(t, err)

	// Triggering one projection first must not leave the other without
	// its tables.
	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	require.NoError(t, manager.Trigger(context.Background(), "org_table"))
	assert.Equal(t, 1, users.reduced)
	assert.Equal(t, 1, orgs.reduced)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM test_orgs`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestAwaitPosition(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(handler)

	event := pushUser(t, es, "u1", "alice")
	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	require.NoError(t, manager.AwaitPosition(context.Background(), "counting", event.Position))
}

func TestBatching(t *testing.T) {
	es, db := newTestLog(t)
	handler := &countingProjection{}
	manager := projection.NewManager(db, es)
	manager.Register(handler, projection.WithBatchSize(2))

	for i := 0; i < 5; i++ {
		pushUser(t, es, "u"+string(rune('a'+i)), "user")
	}

	require.NoError(t, manager.Trigger(context.Background(), "counting"))
	assert.Equal(t, 5, handler.reduced)
}
