// Package eventstore defines the append-only event log contract: commands
// going in, events coming out, search filters, unique constraints, and the
// write-model base used to fold events back into state.
package eventstore

import (
	"encoding/json"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// AggregateType names a kind of aggregate ("user", "org", ...).
type AggregateType string

// EventType names a kind of event ("user.human.added", ...).
type EventType string

// Aggregate identifies the unit of transactional consistency. Every
// aggregate is owned by exactly one resource owner and one instance.
type Aggregate struct {
	ID            string
	Type          AggregateType
	ResourceOwner string
	InstanceID    string

	// CurrentSequence is the head version observed when the caller loaded
	// its write model. Push rejects with CONCURRENCY_CONFLICT if another
	// writer advanced the aggregate past this in the meantime.
	CurrentSequence uint64
}

// NewAggregate builds an aggregate descriptor for a push.
func NewAggregate(id string, typ AggregateType, resourceOwner, instanceID string) *Aggregate {
	return &Aggregate{
		ID:            id,
		Type:          typ,
		ResourceOwner: resourceOwner,
		InstanceID:    instanceID,
	}
}

// Command is the intent to append one event. Payload is marshalled to JSON
// at push time; nil means no payload.
type Command struct {
	Aggregate         *Aggregate
	Type              EventType
	Creator           string
	Payload           any
	UniqueConstraints []*UniqueConstraint
}

// NewCommand builds a command for the given aggregate.
func NewCommand(agg *Aggregate, typ EventType, creator string, payload any, constraints ...*UniqueConstraint) *Command {
	return &Command{
		Aggregate:         agg,
		Type:              typ,
		Creator:           creator,
		Payload:           payload,
		UniqueConstraints: constraints,
	}
}

// Event is an immutable fact in the log.
type Event struct {
	Aggregate Aggregate
	Type      EventType
	Creator   string

	// Sequence is the aggregate version after this event, contiguous and
	// strictly increasing per (instance, aggregate type, aggregate id),
	// starting at 1.
	Sequence uint64

	// Position is the global, log-wide monotone position.
	Position uint64

	CreatedAt time.Time
	Payload   []byte
}

// UnmarshalPayload decodes the JSON payload into v. Unknown fields are
// ignored, which keeps older reducers compatible with newer payloads.
func (e *Event) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return apperr.ThrowInternal(err, "EVENT-001", "unable to decode event payload")
	}
	return nil
}

// MarshalPayload encodes a command payload. Exposed for storage
// implementations.
func MarshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "EVENT-002", "unable to encode event payload")
	}
	return data, nil
}
