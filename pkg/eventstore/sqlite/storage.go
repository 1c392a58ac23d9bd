// Package sqlite implements the eventstore storage contract on SQLite.
// Pure Go driver, ACID pushes, WAL mode for concurrent readers.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is the SQLite event log.
type Storage struct {
	db *sql.DB

	// SQLite allows one writer; serialising pushes in-process avoids
	// SQLITE_BUSY churn under write contention.
	pushMu sync.Mutex
}

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultConfig() config {
	return config{
		dsn:          "nordlys.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures the storage.
type Option func(*config)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database (tests).
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithWALMode toggles write-ahead logging.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// WithAutoMigrate toggles running pending migrations on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// New opens (and by default migrates) the event log database.
func New(opts ...Option) (*Storage, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: gets its own database; force one.
	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db}

	if cfg.walMode && cfg.dsn != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if cfg.autoMigrate {
		if err := s.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate runs pending event log migrations.
func (s *Storage) Migrate() error {
	m := migrate.New(s.db, "eventstore_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// DB exposes the handle so projections and the key store can share the
// database file.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Push appends all commands in one transaction. See eventstore.Storage.
func (s *Storage) Push(ctx context.Context, commands ...*eventstore.Command) ([]*eventstore.Event, error) {
	if len(commands) == 0 {
		return nil, nil
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "SQL-001", "begin push transaction")
	}
	defer tx.Rollback()

	// Verify optimistic concurrency once per distinct aggregate and
	// remember its head for sequence assignment. Commands on the same
	// logical aggregate usually carry distinct Aggregate pointers, so the
	// map is keyed by identity, not pointer.
	heads := make(map[aggregateKey]uint64)
	for _, cmd := range commands {
		agg := cmd.Aggregate
		if _, checked := heads[keyOf(agg)]; checked {
			continue
		}
		var current uint64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(sequence), 0) FROM events
			WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
			agg.InstanceID, agg.Type, agg.ID,
		).Scan(&current)
		if err != nil {
			return nil, classify(err, "SQL-002", "check aggregate head")
		}
		if current != agg.CurrentSequence {
			return nil, apperr.ThrowConcurrencyConflict(nil, "SQL-003", "aggregate version mismatch").
				WithDetail("aggregate_id", agg.ID)
		}
		heads[keyOf(agg)] = current
	}

	var position uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM events`,
	).Scan(&position); err != nil {
		return nil, classify(err, "SQL-004", "read global position")
	}

	now := time.Now().UTC()
	events := make([]*eventstore.Event, 0, len(commands))
	for _, cmd := range commands {
		if err := s.applyUniqueConstraints(ctx, tx, cmd); err != nil {
			return nil, err
		}

		payload, err := eventstore.MarshalPayload(cmd.Payload)
		if err != nil {
			return nil, err
		}

		heads[keyOf(cmd.Aggregate)]++
		position++
		event := &eventstore.Event{
			Aggregate: *cmd.Aggregate,
			Type:      cmd.Type,
			Creator:   cmd.Creator,
			Sequence:  heads[keyOf(cmd.Aggregate)],
			Position:  position,
			CreatedAt: now,
			Payload:   payload,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (
				instance_id, aggregate_type, aggregate_id, sequence,
				event_type, resource_owner, creator, created_at, position, payload
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.Aggregate.InstanceID, event.Aggregate.Type, event.Aggregate.ID,
			event.Sequence, event.Type, event.Aggregate.ResourceOwner,
			event.Creator, event.CreatedAt.UnixNano(), event.Position, event.Payload,
		)
		if err != nil {
			return nil, classify(err, "SQL-005", "insert event")
		}
		events = append(events, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err, "SQL-006", "commit push")
	}

	for _, cmd := range commands {
		cmd.Aggregate.CurrentSequence = heads[keyOf(cmd.Aggregate)]
	}
	return events, nil
}

// aggregateKey identifies a logical aggregate within the log.
type aggregateKey struct {
	instanceID string
	aggType    eventstore.AggregateType
	id         string
}

func keyOf(agg *eventstore.Aggregate) aggregateKey {
	return aggregateKey{instanceID: agg.InstanceID, aggType: agg.Type, id: agg.ID}
}

func (s *Storage) applyUniqueConstraints(ctx context.Context, tx *sql.Tx, cmd *eventstore.Command) error {
	for _, constraint := range cmd.UniqueConstraints {
		switch constraint.Action {
		case eventstore.UniqueConstraintAdd:
			_, err := tx.ExecContext(ctx, `
				INSERT INTO unique_constraints (instance_id, unique_type, unique_field)
				VALUES (?, ?, ?)`,
				cmd.Aggregate.InstanceID, constraint.UniqueType, constraint.UniqueField,
			)
			if isConstraintViolation(err) {
				errID := constraint.ErrorID
				if errID == "" {
					errID = "SQL-007"
				}
				return apperr.ThrowAlreadyExists(nil, errID, "value already taken").
					WithDetail("type", constraint.UniqueType)
			}
			if err != nil {
				return classify(err, "SQL-008", "claim unique value")
			}
		case eventstore.UniqueConstraintRemove:
			_, err := tx.ExecContext(ctx, `
				DELETE FROM unique_constraints
				WHERE instance_id = ? AND unique_type = ? AND unique_field = ?`,
				cmd.Aggregate.InstanceID, constraint.UniqueType, constraint.UniqueField,
			)
			if err != nil {
				return classify(err, "SQL-009", "release unique value")
			}
		case eventstore.UniqueConstraintRemoveAll:
			_, err := tx.ExecContext(ctx, `
				DELETE FROM unique_constraints
				WHERE instance_id = ? AND unique_type = ?`,
				cmd.Aggregate.InstanceID, constraint.UniqueType,
			)
			if err != nil {
				return classify(err, "SQL-010", "release unique values")
			}
		}
	}
	return nil
}

// Filter returns events matching the query.
func (s *Storage) Filter(ctx context.Context, query *eventstore.SearchQueryBuilder) ([]*eventstore.Event, error) {
	var (
		where []string
		args  []any
	)
	if query.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, query.InstanceID)
	}
	if query.ResourceOwner != "" {
		where = append(where, "resource_owner = ?")
		args = append(args, query.ResourceOwner)
	}
	if len(query.AggregateTypes) > 0 {
		where = append(where, "aggregate_type IN ("+placeholders(len(query.AggregateTypes))+")")
		for _, t := range query.AggregateTypes {
			args = append(args, string(t))
		}
	}
	if len(query.AggregateIDs) > 0 {
		where = append(where, "aggregate_id IN ("+placeholders(len(query.AggregateIDs))+")")
		for _, id := range query.AggregateIDs {
			args = append(args, id)
		}
	}
	if len(query.EventTypes) > 0 {
		where = append(where, "event_type IN ("+placeholders(len(query.EventTypes))+")")
		for _, t := range query.EventTypes {
			args = append(args, string(t))
		}
	}
	if query.PositionAfter > 0 {
		where = append(where, "position > ?")
		args = append(args, query.PositionAfter)
	}

	stmt := `SELECT instance_id, aggregate_type, aggregate_id, sequence,
		event_type, resource_owner, creator, created_at, position, payload
		FROM events`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	order := "position"
	if query.OrderBySequence() {
		order = "sequence"
	}
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}
	stmt += fmt.Sprintf(" ORDER BY %s %s", order, direction)
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(err, "SQL-011", "filter events")
	}
	defer rows.Close()

	var events []*eventstore.Event
	for rows.Next() {
		event := new(eventstore.Event)
		var createdAt int64
		err := rows.Scan(
			&event.Aggregate.InstanceID, &event.Aggregate.Type, &event.Aggregate.ID,
			&event.Sequence, &event.Type, &event.Aggregate.ResourceOwner,
			&event.Creator, &createdAt, &event.Position, &event.Payload,
		)
		if err != nil {
			return nil, classify(err, "SQL-012", "scan event")
		}
		event.CreatedAt = time.Unix(0, createdAt).UTC()
		event.Aggregate.CurrentSequence = event.Sequence
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "SQL-013", "iterate events")
	}
	return events, nil
}

// LatestPosition returns the highest global position for an instance.
func (s *Storage) LatestPosition(ctx context.Context, instanceID string) (uint64, error) {
	var position uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM events WHERE instance_id = ?`,
		instanceID,
	).Scan(&position)
	if err != nil {
		return 0, classify(err, "SQL-014", "read latest position")
	}
	return position, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// classify maps driver errors onto the taxonomy: cancelled contexts become
// DEADLINE_EXCEEDED, busy/locked become retryable UNAVAILABLE, the rest is
// INTERNAL.
func classify(err error, id, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.ThrowDeadlineExceeded(err, id, action+" cancelled")
	case isBusy(err):
		return apperr.ThrowUnavailable(err, id, action+" failed, storage busy")
	default:
		return apperr.ThrowInternal(err, id, action+" failed")
	}
}

func isBusy(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
	}
	return false
}

func isConstraintViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT
	}
	return false
}
