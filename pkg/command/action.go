package command

import (
	"context"
	"slices"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type actionWriteModel struct {
	eventstore.WriteModel

	State domain.ActionState
	Name  string
}

func newActionWriteModel(instanceID, orgID, actionID string) *actionWriteModel {
	return &actionWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   actionID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *actionWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.ActionAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *actionWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.ActionAddedType:
			var payload repository.ActionAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.ActionStateActive
			wm.Name = payload.Name

		case repository.ActionChangedType:
			var payload repository.ActionChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			if payload.Name != nil {
				wm.Name = *payload.Name
			}

		case repository.ActionDeactivatedType:
			wm.State = domain.ActionStateInactive
		case repository.ActionReactivatedType:
			wm.State = domain.ActionStateActive
		case repository.ActionRemovedType:
			wm.State = domain.ActionStateRemoved
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *actionWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.ActionAggregate)
}

// AddAction registers a script in the org.
func (c *Commands) AddAction(ctx context.Context, orgID string, action *repository.ActionAddedPayload) (string, *domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return "", nil, err
	}
	action.Name = strings.TrimSpace(action.Name)
	if err := validators.Required(action.Name, "name", "ACTION-001"); err != nil {
		return "", nil, err
	}
	if err := validators.Required(action.Script, "script", "ACTION-002"); err != nil {
		return "", nil, err
	}
	actionID := c.nextID()
	model := newActionWriteModel(authz.GetInstance(ctx), orgID, actionID)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ActionAddedType, authz.GetCtxData(ctx).UserID, action))
	if err != nil {
		return "", nil, err
	}
	return actionID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// ChangeAction patches the script; nil fields stay untouched.
func (c *Commands) ChangeAction(ctx context.Context, orgID, actionID string, changes *repository.ActionChangedPayload) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return nil, err
	}
	action, err := c.existingAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	if changes == nil || (changes.Name == nil && changes.Script == nil &&
		changes.Timeout == nil && changes.AllowedToFail == nil) {
		return nil, apperr.ThrowInvalidArgument(nil, "ACTION-010", "no changes")
	}
	err = c.pushAppendAndReduce(ctx, action,
		eventstore.NewCommand(action.aggregate(), repository.ActionChangedType, authz.GetCtxData(ctx).UserID, changes))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&action.WriteModel), nil
}

// DeactivateAction transitions active → inactive.
func (c *Commands) DeactivateAction(ctx context.Context, orgID, actionID string) (*domain.ObjectDetails, error) {
	return c.actionLifecycle(ctx, orgID, actionID, repository.ActionDeactivatedType, func(state domain.ActionState) error {
		if state == domain.ActionStateInactive {
			return apperr.ThrowPreconditionFailed(nil, "ACTION-020", "action already inactive")
		}
		return nil
	})
}

// ReactivateAction transitions inactive → active.
func (c *Commands) ReactivateAction(ctx context.Context, orgID, actionID string) (*domain.ObjectDetails, error) {
	return c.actionLifecycle(ctx, orgID, actionID, repository.ActionReactivatedType, func(state domain.ActionState) error {
		if state != domain.ActionStateInactive {
			return apperr.ThrowPreconditionFailed(nil, "ACTION-021", "action is not inactive")
		}
		return nil
	})
}

func (c *Commands) actionLifecycle(ctx context.Context, orgID, actionID string, eventType eventstore.EventType, check func(domain.ActionState) error) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return nil, err
	}
	action, err := c.existingAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	if err := check(action.State); err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, action,
		eventstore.NewCommand(action.aggregate(), eventType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&action.WriteModel), nil
}

// RemoveAction removes the action and, in the same push, detaches it from
// every flow trigger still referencing it so no flow points at a dead
// action.
func (c *Commands) RemoveAction(ctx context.Context, orgID, actionID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return nil, err
	}
	action, err := c.existingAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	creator := authz.GetCtxData(ctx).UserID
	commands := []*eventstore.Command{
		eventstore.NewCommand(action.aggregate(), repository.ActionRemovedType, creator, nil),
	}
	for flowType, triggers := range org.Flows {
		for triggerType, actionIDs := range triggers {
			if !slices.Contains(actionIDs, actionID) {
				continue
			}
			commands = append(commands,
				eventstore.NewCommand(org.aggregate(), repository.OrgFlowTriggerActionsCascadeRemovedType, creator,
					repository.FlowTriggerActionsCascadeRemovedPayload{
						FlowType:    flowType,
						TriggerType: triggerType,
						ActionID:    actionID,
					}))
		}
	}
	events, err := c.es.Push(ctx, commands...)
	if err != nil {
		return nil, err
	}
	actionEvents := make([]*eventstore.Event, 0, 1)
	for _, event := range events {
		if event.Aggregate.Type == repository.ActionAggregate {
			actionEvents = append(actionEvents, event)
		}
	}
	if err := eventstore.AppendAndReduce(action, actionEvents...); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&action.WriteModel), nil
}

// SetTriggerActions replaces the ordered action list of a flow trigger.
// Every referenced action must exist in the org.
func (c *Commands) SetTriggerActions(ctx context.Context, orgID string, flowType domain.FlowType, triggerType domain.TriggerType, actionIDs []string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return nil, err
	}
	if flowType == domain.FlowTypeUnspecified {
		return nil, apperr.ThrowInvalidArgument(nil, "ACTION-030", "flow type required")
	}
	if triggerType == domain.TriggerTypeUnspecified {
		return nil, apperr.ThrowInvalidArgument(nil, "ACTION-031", "trigger type required")
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ACTION-032", "org does not exist")
	}
	seen := map[string]bool{}
	for _, actionID := range actionIDs {
		if seen[actionID] {
			return nil, apperr.ThrowInvalidArgument(nil, "ACTION-033", "duplicate action in list").
				WithDetail("action", actionID)
		}
		seen[actionID] = true
		if _, err := c.existingAction(ctx, orgID, actionID); err != nil {
			return nil, err
		}
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgFlowTriggerActionsSetType, authz.GetCtxData(ctx).UserID,
			repository.FlowTriggerActionsSetPayload{
				FlowType:    flowType,
				TriggerType: triggerType,
				ActionIDs:   actionIDs,
			}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// ClearFlow drops all trigger lists of a flow.
func (c *Commands) ClearFlow(ctx context.Context, orgID string, flowType domain.FlowType) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionActionWrite, orgID); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if _, ok := org.Flows[flowType]; !ok {
		return nil, apperr.ThrowNotFound(nil, "ACTION-040", "flow is not configured")
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgFlowClearedType, authz.GetCtxData(ctx).UserID,
			repository.FlowClearedPayload{FlowType: flowType}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

func (c *Commands) existingAction(ctx context.Context, orgID, actionID string) (*actionWriteModel, error) {
	action := newActionWriteModel(authz.GetInstance(ctx), orgID, actionID)
	if err := action.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !action.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ACTION-000", "action does not exist")
	}
	return action, nil
}
