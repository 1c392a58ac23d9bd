// Package command is the write side. Every operation loads a write model
// from the event log, validates the request against it and the relevant
// policies, and pushes new events with optimistic concurrency.
package command

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idgen"
	"github.com/nordlys-id/nordlys/pkg/observability"
	"github.com/nordlys-id/nordlys/pkg/password"
	"github.com/nordlys-id/nordlys/pkg/query"
)

const (
	defaultIntentLifetime  = 10 * time.Minute
	defaultPARLifetime     = 90 * time.Second
	defaultSessionLifetime = 5 * time.Minute
	defaultCodeLifetime    = time.Hour
)

// Commands is the write-side façade. All operations require an authz
// context; the zero value is not usable, construct with New.
type Commands struct {
	es         *eventstore.Eventstore
	queries    *query.Queries
	checker    authz.PermissionChecker
	keeper     *crypto.Keeper
	hasher     *password.Hasher
	logger     *slog.Logger
	metrics    *observability.Metrics
	httpClient *http.Client

	idGenerator     func() string
	now             func() time.Time
	intentLifetime  time.Duration
	parLifetime     time.Duration
	sessionLifetime time.Duration
	codeLifetime    time.Duration
}

// Option configures Commands.
type Option func(*Commands)

// WithPermissionChecker replaces the default role-based checker.
func WithPermissionChecker(checker authz.PermissionChecker) Option {
	return func(c *Commands) { c.checker = checker }
}

// WithPasswordCost sets the bcrypt cost.
func WithPasswordCost(cost int) Option {
	return func(c *Commands) { c.hasher = password.NewHasher(cost) }
}

// WithLogger sets the command logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Commands) { c.logger = logger }
}

// WithMetrics records command and push metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Commands) { c.metrics = metrics }
}

// WithHTTPClient sets the client used for outbound IDP calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Commands) { c.httpClient = client }
}

// WithIDGenerator replaces the id generator, for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(c *Commands) { c.idGenerator = gen }
}

// WithClock replaces the time source, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(c *Commands) { c.now = now }
}

// WithIntentLifetime overrides the federated-login intent expiry.
func WithIntentLifetime(d time.Duration) Option {
	return func(c *Commands) { c.intentLifetime = d }
}

// New builds the command side on the event log, the read side for lookups,
// and the secrets keeper for everything stored encrypted.
func New(es *eventstore.Eventstore, queries *query.Queries, keeper *crypto.Keeper, opts ...Option) *Commands {
	c := &Commands{
		es:              es,
		queries:         queries,
		keeper:          keeper,
		checker:         authz.NewRolePermissionChecker(nil),
		hasher:          password.NewHasher(password.DefaultCost),
		logger:          slog.Default(),
		httpClient:      http.DefaultClient,
		idGenerator:     idgen.MustGenerateSortableID,
		now:             time.Now,
		intentLifetime:  defaultIntentLifetime,
		parLifetime:     defaultPARLifetime,
		sessionLifetime: defaultSessionLifetime,
		codeLifetime:    defaultCodeLifetime,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Commands) nextID() string { return c.idGenerator() }

// pushAppendAndReduce pushes the commands and folds the resulting events
// back into the write model so returned details carry the new sequence.
func (c *Commands) pushAppendAndReduce(ctx context.Context, model reduceModel, commands ...*eventstore.Command) error {
	start := time.Now()
	events, err := c.es.Push(ctx, commands...)
	if c.metrics != nil {
		c.metrics.RecordPush(ctx, time.Since(start), len(commands), err)
	}
	if err != nil {
		return err
	}
	return eventstore.AppendAndReduce(model, events...)
}

type reduceModel interface {
	AppendEvents(...*eventstore.Event)
	Reduce() error
}
