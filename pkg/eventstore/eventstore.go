package eventstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// Storage is the persistence contract. Pushes are atomic: either every
// command of a call lands or none does.
type Storage interface {
	// Push appends events. Fails with CONCURRENCY_CONFLICT when any
	// aggregate advanced past its CurrentSequence, ALREADY_EXISTS when a
	// unique constraint is violated, UNAVAILABLE on transient storage
	// failure.
	Push(ctx context.Context, commands ...*Command) ([]*Event, error)

	// Filter returns events matching the query. Single-aggregate queries
	// are ordered by sequence, others by global position.
	Filter(ctx context.Context, query *SearchQueryBuilder) ([]*Event, error)

	// LatestPosition returns the highest global position for an instance.
	LatestPosition(ctx context.Context, instanceID string) (uint64, error)

	Close() error
}

// PushedListener is notified after a successful commit (e.g. an event bus
// waking projections). Failures are the listener's problem, not the push's.
type PushedListener interface {
	EventsPushed(ctx context.Context, events []*Event)
}

// Eventstore fronts a Storage with bounded retry of transient failures and
// post-commit notification.
type Eventstore struct {
	storage     Storage
	listeners   []PushedListener
	maxAttempts uint64
}

// Option configures an Eventstore.
type Option func(*Eventstore)

// WithPushedListener registers a post-commit listener.
func WithPushedListener(l PushedListener) Option {
	return func(es *Eventstore) {
		es.listeners = append(es.listeners, l)
	}
}

// New creates an Eventstore on top of storage.
func New(storage Storage, opts ...Option) *Eventstore {
	es := &Eventstore{
		storage:     storage,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(es)
	}
	return es
}

// Push appends all commands atomically. UNAVAILABLE results are retried
// with exponential backoff up to 3 attempts; CONCURRENCY_CONFLICT always
// surfaces so the caller can re-run the whole command.
func (es *Eventstore) Push(ctx context.Context, commands ...*Command) ([]*Event, error) {
	if len(commands) == 0 {
		return nil, nil
	}

	var events []*Event
	operation := func() error {
		var err error
		events, err = es.storage.Push(ctx, commands...)
		if err != nil && !apperr.IsUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), es.maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.ThrowDeadlineExceeded(ctx.Err(), "EVENT-010", "push cancelled")
		}
		return nil, err
	}

	for _, l := range es.listeners {
		l.EventsPushed(ctx, events)
	}
	return events, nil
}

// Filter queries the log.
func (es *Eventstore) Filter(ctx context.Context, query *SearchQueryBuilder) ([]*Event, error) {
	return es.storage.Filter(ctx, query)
}

// FilterToReducer loads the matching events into a write model and reduces.
func (es *Eventstore) FilterToReducer(ctx context.Context, query *SearchQueryBuilder, reducer reducer) error {
	events, err := es.storage.Filter(ctx, query)
	if err != nil {
		return err
	}
	reducer.AppendEvents(events...)
	return reducer.Reduce()
}

// LatestPosition returns the instance's highest global position.
func (es *Eventstore) LatestPosition(ctx context.Context, instanceID string) (uint64, error) {
	return es.storage.LatestPosition(ctx, instanceID)
}

type reducer interface {
	AppendEvents(...*Event)
	Reduce() error
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}
