// Package projection tails the event log and materialises query-side
// tables. Each projection owns a cursor (highest global position applied)
// persisted in current_states; reduces and cursor advance commit in one
// transaction, so replays are idempotent and crashes never skip events.
package projection

import (
	"context"
	"database/sql"
	"time"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

// Handler is one projection. Init runs the DDL; Reduce applies a single
// event inside the runtime's transaction and must be idempotent under
// replay (upserts keyed by natural identity).
type Handler interface {
	Name() string
	EventTypes() []eventstore.EventType
	Init(ctx context.Context, db *sql.DB) error
	Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error
}

const (
	defaultBatchSize = 200
	defaultInterval  = time.Second
)

// checkpointStore persists projection cursors in current_states.
type checkpointStore struct {
	db *sql.DB
}

func newCheckpointStore(db *sql.DB) (*checkpointStore, error) {
	s := &checkpointStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS current_states (
			projection_name     TEXT PRIMARY KEY,
			position            INTEGER NOT NULL,
			last_successful_run INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// load returns the projection's cursor, 0 when it never ran.
func (s *checkpointStore) load(ctx context.Context, name string) (uint64, error) {
	var position uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM current_states WHERE projection_name = ?`, name,
	).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return position, err
}

// saveInTx advances the cursor within the reduce transaction to avoid a
// dual write.
func (s *checkpointStore) saveInTx(ctx context.Context, tx *sql.Tx, name string, position uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO current_states (projection_name, position, last_successful_run)
		VALUES (?, ?, ?)
		ON CONFLICT(projection_name) DO UPDATE SET
			position = excluded.position,
			last_successful_run = excluded.last_successful_run`,
		name, position, time.Now().Unix())
	return err
}
