package command

import (
	"context"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type executionWriteModel struct {
	eventstore.WriteModel

	Exists  bool
	Targets []repository.ExecutionTargetRef
}

func newExecutionWriteModel(instanceID, executionID string) *executionWriteModel {
	return &executionWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   executionID,
			ResourceOwner: instanceID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *executionWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.ExecutionAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *executionWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.ExecutionSetType:
			var payload repository.ExecutionSetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Exists = true
			wm.Targets = payload.Targets

		case repository.ExecutionRemovedType:
			wm.Exists = false
			wm.Targets = nil
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *executionWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.ExecutionAggregate)
}

// executionID derives the deterministic aggregate id so that setting the
// same condition twice converges on one aggregate.
func executionID(executionType domain.ExecutionType, condition string) string {
	return string(executionType) + "/" + condition
}

// SetExecution is the input binding targets to an execution condition.
type SetExecution struct {
	ExecutionType domain.ExecutionType
	Condition     string
	Targets       []repository.ExecutionTargetRef
}

// SetExecution creates or replaces the ordered target list for a condition.
// Every referenced target must exist, includes must resolve to existing
// executions, include chains are bounded, and cycles are refused.
func (c *Commands) SetExecution(ctx context.Context, set *SetExecution) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, instanceID); err != nil {
		return nil, err
	}
	switch set.ExecutionType {
	case domain.ExecutionTypeRequest, domain.ExecutionTypeResponse,
		domain.ExecutionTypeEvent, domain.ExecutionTypeFunction:
	default:
		return nil, apperr.ThrowInvalidArgument(nil, "EXEC-001", "unknown execution type")
	}
	if err := validators.Required(set.Condition, "condition", "EXEC-002"); err != nil {
		return nil, err
	}
	if len(set.Targets) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "EXEC-003", "at least one target required")
	}

	id := executionID(set.ExecutionType, set.Condition)
	for _, ref := range set.Targets {
		switch ref.Kind {
		case repository.ExecutionTargetKindTarget:
			if _, err := c.existingTarget(ctx, ref.Target); err != nil {
				return nil, err
			}
		case repository.ExecutionTargetKindInclude:
			if ref.Target == id {
				return nil, apperr.ThrowPreconditionFailed(nil, "EXEC-004", "execution cannot include itself")
			}
			if err := c.checkInclude(ctx, instanceID, ref.Target, id, 1); err != nil {
				return nil, err
			}
		default:
			return nil, apperr.ThrowInvalidArgument(nil, "EXEC-005", "unknown target kind")
		}
	}

	model := newExecutionWriteModel(instanceID, id)
	if err := model.load(ctx, c.es); err != nil {
		return nil, err
	}
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ExecutionSetType, authz.GetCtxData(ctx).UserID,
			repository.ExecutionSetPayload{
				ExecutionType: set.ExecutionType,
				Condition:     set.Condition,
				Targets:       set.Targets,
			}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// checkInclude walks the include chain rooted at includedID. The walk is
// depth-first with the root execution id carried along for cycle detection;
// depth counts include hops from the execution being set.
func (c *Commands) checkInclude(ctx context.Context, instanceID, includedID, rootID string, depth int) error {
	if depth > domain.MaxIncludeDepth {
		return apperr.ThrowPreconditionFailed(nil, "EXEC-010", "include chain too deep")
	}
	included := newExecutionWriteModel(instanceID, includedID)
	if err := included.load(ctx, c.es); err != nil {
		return err
	}
	if !included.Exists {
		return apperr.ThrowNotFound(nil, "EXEC-011", "included execution does not exist").
			WithDetail("execution", includedID)
	}
	for _, ref := range included.Targets {
		if ref.Kind != repository.ExecutionTargetKindInclude {
			continue
		}
		if ref.Target == rootID {
			return apperr.ThrowPreconditionFailed(nil, "EXEC-012", "circular include").
				WithDetail("execution", includedID)
		}
		if err := c.checkInclude(ctx, instanceID, ref.Target, rootID, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExecution clears the target list for a condition.
func (c *Commands) DeleteExecution(ctx context.Context, executionType domain.ExecutionType, condition string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, instanceID); err != nil {
		return nil, err
	}
	model := newExecutionWriteModel(instanceID, executionID(executionType, condition))
	if err := model.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !model.Exists {
		return nil, apperr.ThrowNotFound(nil, "EXEC-020", "execution does not exist")
	}
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ExecutionRemovedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}
