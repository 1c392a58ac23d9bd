package eventstore

// SearchQueryBuilder describes an event log query. Zero fields mean "no
// filter". Build one with NewSearchQueryBuilder and the With* chain.
type SearchQueryBuilder struct {
	InstanceID     string
	ResourceOwner  string
	AggregateTypes []AggregateType
	AggregateIDs   []string
	EventTypes     []EventType
	PositionAfter  uint64
	Limit          uint64
	Descending     bool
}

// NewSearchQueryBuilder starts a query scoped to an instance.
func NewSearchQueryBuilder(instanceID string) *SearchQueryBuilder {
	return &SearchQueryBuilder{InstanceID: instanceID}
}

func (b *SearchQueryBuilder) WithResourceOwner(owner string) *SearchQueryBuilder {
	b.ResourceOwner = owner
	return b
}

func (b *SearchQueryBuilder) WithAggregateTypes(types ...AggregateType) *SearchQueryBuilder {
	b.AggregateTypes = append(b.AggregateTypes, types...)
	return b
}

func (b *SearchQueryBuilder) WithAggregateIDs(ids ...string) *SearchQueryBuilder {
	b.AggregateIDs = append(b.AggregateIDs, ids...)
	return b
}

func (b *SearchQueryBuilder) WithEventTypes(types ...EventType) *SearchQueryBuilder {
	b.EventTypes = append(b.EventTypes, types...)
	return b
}

// WithPositionAfter restricts to events strictly after the global position.
func (b *SearchQueryBuilder) WithPositionAfter(position uint64) *SearchQueryBuilder {
	b.PositionAfter = position
	return b
}

func (b *SearchQueryBuilder) WithLimit(limit uint64) *SearchQueryBuilder {
	b.Limit = limit
	return b
}

func (b *SearchQueryBuilder) OrderDescending() *SearchQueryBuilder {
	b.Descending = true
	return b
}

// singleAggregate reports whether the query targets one aggregate stream,
// in which case results are ordered by sequence instead of global position.
func (b *SearchQueryBuilder) singleAggregate() bool {
	return len(b.AggregateIDs) == 1 && len(b.AggregateTypes) == 1
}

// OrderBySequence is exported for storage implementations.
func (b *SearchQueryBuilder) OrderBySequence() bool {
	return b.singleAggregate()
}
