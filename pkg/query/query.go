// Package query is the read side: projection handlers materialising the
// query tables, and the point lookups commands use to validate against
// read state.
package query

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/messaging"
	"github.com/nordlys-id/nordlys/pkg/projection"
)

// Queries wires the projection runtime and exposes lookups over the
// materialised tables.
type Queries struct {
	db      *sql.DB
	es      *eventstore.Eventstore
	manager *projection.Manager
}

// Option configures Queries.
type Option func(*options)

type options struct {
	bus    messaging.EventBus
	logger *slog.Logger
}

// WithEventBus wakes projections on pushes.
func WithEventBus(bus messaging.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithLogger sets the projection runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New registers every projection on a fresh manager.
func New(db *sql.DB, es *eventstore.Eventstore, opts ...Option) *Queries {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	managerOpts := []projection.Option{projection.WithLogger(o.logger)}
	if o.bus != nil {
		managerOpts = append(managerOpts, projection.WithEventBus(o.bus))
	}
	q := &Queries{
		db:      db,
		es:      es,
		manager: projection.NewManager(db, es, managerOpts...),
	}
	for _, handler := range q.handlers() {
		q.manager.Register(handler)
	}
	return q
}

func (q *Queries) handlers() []projection.Handler {
	handlers := []projection.Handler{
		&userProjection{},
		&orgProjection{},
		&idpTemplateProjection{},
		&idpUserLinkProjection{},
		&idpIntentProjection{},
		&samlRequestProjection{},
		&appProjection{},
		&executionProjection{},
		&targetProjection{},
		&patProjection{},
	}
	return append(handlers, policyProjections()...)
}

// Start launches the projection loops.
func (q *Queries) Start(ctx context.Context) error {
	return q.manager.Start(ctx)
}

// Stop drains the projection loops.
func (q *Queries) Stop() {
	q.manager.Stop()
}

// TriggerAll synchronously catches all projections up to the log head.
// Commands call it before lookups that must observe their own writes.
func (q *Queries) TriggerAll(ctx context.Context) error {
	return q.manager.TriggerAll(ctx)
}

// Trigger catches one projection up.
func (q *Queries) Trigger(ctx context.Context, name string) error {
	return q.manager.Trigger(ctx, name)
}

// AwaitPosition blocks until the projection reaches position.
func (q *Queries) AwaitPosition(ctx context.Context, name string, position uint64) error {
	return q.manager.AwaitPosition(ctx, name, position)
}
