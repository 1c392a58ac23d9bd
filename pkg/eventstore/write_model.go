package eventstore

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/domain"
)

// WriteModel is the base every aggregate reducer embeds. Load events with
// AppendEvents, fold them with Reduce, and after a push advance the state
// with AppendAndReduce so returned details reflect the new sequence without
// a reload.
//
// Concrete write models implement their own Reduce, switch on the event
// type, and finish by calling the embedded Reduce. When several sub-entities
// share one aggregate (e.g. IDP configs on an org) the concrete Reduce must
// filter payloads by the sub-entity id before touching state.
type WriteModel struct {
	AggregateID       string
	ProcessedSequence uint64
	Events            []*Event
	ResourceOwner     string
	InstanceID        string
	ChangeDate        time.Time
}

// AppendEvents stages events for the next Reduce.
func (wm *WriteModel) AppendEvents(events ...*Event) {
	wm.Events = append(wm.Events, events...)
}

// Reduce folds the staged events into the base bookkeeping and clears the
// stage. Concrete reducers call this last.
func (wm *WriteModel) Reduce() error {
	if len(wm.Events) == 0 {
		return nil
	}
	latest := wm.Events[len(wm.Events)-1]
	if wm.AggregateID == "" {
		wm.AggregateID = latest.Aggregate.ID
	}
	if wm.ResourceOwner == "" {
		wm.ResourceOwner = latest.Aggregate.ResourceOwner
	}
	if wm.InstanceID == "" {
		wm.InstanceID = latest.Aggregate.InstanceID
	}
	wm.ProcessedSequence = latest.Sequence
	wm.ChangeDate = latest.CreatedAt
	wm.Events = wm.Events[:0]
	return nil
}

// AppendAndReduce applies freshly pushed events to the model.
func AppendAndReduce(model interface {
	AppendEvents(...*Event)
	Reduce() error
}, events ...*Event) error {
	model.AppendEvents(events...)
	return model.Reduce()
}

// AggregateFromWriteModel rebuilds the aggregate descriptor for a push,
// carrying the processed sequence as the optimistic concurrency assertion.
func AggregateFromWriteModel(wm *WriteModel, typ AggregateType) *Aggregate {
	return &Aggregate{
		ID:              wm.AggregateID,
		Type:            typ,
		ResourceOwner:   wm.ResourceOwner,
		InstanceID:      wm.InstanceID,
		CurrentSequence: wm.ProcessedSequence,
	}
}

// WriteModelToObjectDetails derives the command return value.
func WriteModelToObjectDetails(wm *WriteModel) *domain.ObjectDetails {
	return &domain.ObjectDetails{
		Sequence:      wm.ProcessedSequence,
		EventDate:     wm.ChangeDate,
		ResourceOwner: wm.ResourceOwner,
		ID:            wm.AggregateID,
	}
}
