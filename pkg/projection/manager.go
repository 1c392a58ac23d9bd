package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/messaging"
)

// Manager runs registered projections, one background loop each:
// wait → read batch → apply → commit → sleep(interval). A bus subscription
// shortcuts the sleep when new events land.
type Manager struct {
	db          *sql.DB
	es          *eventstore.Eventstore
	bus         messaging.EventBus
	logger      *slog.Logger
	checkpoints *checkpointStore

	mu      sync.Mutex
	runners map[string]*runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures the Manager.
type Option func(*Manager)

// WithEventBus wakes projections on pushes instead of waiting out the
// interval.
func WithEventBus(bus messaging.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a projection runtime writing to db and reading es.
func NewManager(db *sql.DB, es *eventstore.Eventstore, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		es:      es,
		logger:  slog.Default(),
		runners: make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterOption tunes one projection.
type RegisterOption func(*runner)

// WithBatchSize overrides the default batch size.
func WithBatchSize(n uint64) RegisterOption {
	return func(r *runner) { r.batchSize = n }
}

// WithInterval overrides the default poll interval.
func WithInterval(d time.Duration) RegisterOption {
	return func(r *runner) { r.interval = d }
}

// Register adds a projection. Must be called before Start.
func (m *Manager) Register(handler Handler, opts ...RegisterOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &runner{
		manager:   m,
		handler:   handler,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	m.runners[handler.Name()] = r
}

// Start initialises every projection and launches the loops. A projection
// whose Init fails must not start; Start fails as a whole so the caller
// sees the broken DDL immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoints, err := newCheckpointStore(m.db)
	if err != nil {
		return apperr.ThrowInternal(err, "PROJ-001", "initialising current_states failed")
	}
	m.checkpoints = checkpoints

	for name, r := range m.runners {
		if r.initialized {
			continue
		}
		if err := r.handler.Init(ctx, m.db); err != nil {
			return apperr.ThrowInternal(err, "PROJ-002", fmt.Sprintf("projection %s init failed", name))
		}
		r.initialized = true
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.bus != nil {
		for _, r := range m.runners {
			r := r
			sub, err := m.bus.Subscribe(messaging.EventFilter{EventTypes: r.handler.EventTypes()},
				func(*eventstore.Event) error {
					r.notify()
					return nil
				})
			if err != nil {
				cancel()
				return apperr.ThrowInternal(err, "PROJ-003", "subscribing projection failed")
			}
			r.sub = sub
		}
	}

	for _, r := range m.runners {
		m.wg.Add(1)
		go func(r *runner) {
			defer m.wg.Done()
			r.loop(runCtx)
		}(r)
	}
	return nil
}

// Stop cancels all loops and waits for them to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	for _, r := range m.runners {
		if r.sub != nil {
			_ = r.sub.Unsubscribe()
		}
	}
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Trigger synchronously catches the named projection up to the log head.
// Commands use it for read-your-write lookups; tests use it instead of
// sleeping.
func (m *Manager) Trigger(ctx context.Context, name string) error {
	m.mu.Lock()
	r, ok := m.runners[name]
	if !ok {
		m.mu.Unlock()
		return apperr.ThrowNotFound(nil, "PROJ-004", "projection not registered")
	}
	if m.checkpoints == nil {
		checkpoints, err := newCheckpointStore(m.db)
		if err != nil {
			m.mu.Unlock()
			return apperr.ThrowInternal(err, "PROJ-005", "initialising current_states failed")
		}
		m.checkpoints = checkpoints
	}
	// Init is tracked per runner so triggering one projection never
	// leaves another without its tables.
	if !r.initialized {
		if err := r.handler.Init(ctx, m.db); err != nil {
			m.mu.Unlock()
			return apperr.ThrowInternal(err, "PROJ-006", "projection init failed")
		}
		r.initialized = true
	}
	m.mu.Unlock()
	return r.catchUp(ctx)
}

// TriggerAll catches every projection up to the log head.
func (m *Manager) TriggerAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.runners))
	for name := range m.runners {
		names = append(names, name)
	}
	m.mu.Unlock()
	for _, name := range names {
		if err := m.Trigger(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// CurrentPosition returns the projection's cursor.
func (m *Manager) CurrentPosition(ctx context.Context, name string) (uint64, error) {
	if m.checkpoints == nil {
		return 0, nil
	}
	return m.checkpoints.load(ctx, name)
}

// AwaitPosition blocks until the projection's cursor reaches position.
// Readers requiring read-your-write wait on the pushed event's position.
func (m *Manager) AwaitPosition(ctx context.Context, name string, position uint64) error {
	for {
		current, err := m.CurrentPosition(ctx, name)
		if err != nil {
			return err
		}
		if current >= position {
			return nil
		}
		select {
		case <-ctx.Done():
			return apperr.ThrowDeadlineExceeded(ctx.Err(), "PROJ-007", "awaiting projection position")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type runner struct {
	manager     *Manager
	handler     Handler
	batchSize   uint64
	interval    time.Duration
	wake        chan struct{}
	sub         messaging.Subscription
	initialized bool
}

func (r *runner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *runner) loop(ctx context.Context) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	retry.MaxInterval = 30 * time.Second

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-r.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := r.catchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := retry.NextBackOff()
			r.manager.logger.Error("projection reduce failed",
				"projection", r.handler.Name(), "error", err, "retry_in", wait)
			timer.Reset(wait)
			continue
		}
		retry.Reset()
		timer.Reset(r.interval)
	}
}

// catchUp applies batches until the projection reaches the log head. Each
// batch commits atomically with the cursor; on error nothing advances.
func (r *runner) catchUp(ctx context.Context) error {
	for {
		cursor, err := r.manager.checkpoints.load(ctx, r.handler.Name())
		if err != nil {
			return err
		}

		query := eventstore.NewSearchQueryBuilder("").
			WithEventTypes(r.handler.EventTypes()...).
			WithPositionAfter(cursor).
			WithLimit(r.batchSize)
		events, err := r.manager.es.Filter(ctx, query)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		tx, err := r.manager.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := r.handler.Reduce(ctx, tx, event); err != nil {
				tx.Rollback()
				return err
			}
		}
		last := events[len(events)-1].Position
		if err := r.manager.checkpoints.saveInTx(ctx, tx, r.handler.Name(), last); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		if uint64(len(events)) < r.batchSize {
			return nil
		}
	}
}
