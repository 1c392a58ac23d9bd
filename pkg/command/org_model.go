package command

import (
	"context"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// orgNameClaim normalises the unique org name claim.
func orgNameClaim(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// usernameClaim scopes the username claim to the org, case-insensitive.
func usernameClaim(orgID, username string) string {
	return orgID + ":" + strings.ToLower(strings.TrimSpace(username))
}

type orgWriteModel struct {
	eventstore.WriteModel

	State         domain.OrgState
	Name          string
	Domains       map[string]bool
	PrimaryDomain string
	Flows         map[domain.FlowType]map[domain.TriggerType][]string
}

func newOrgWriteModel(instanceID, orgID string) *orgWriteModel {
	return &orgWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   orgID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
		Domains: map[string]bool{},
		Flows:   map[domain.FlowType]map[domain.TriggerType][]string{},
	}
}

func (wm *orgWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.OrgAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *orgWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.OrgAddedType:
			var payload repository.OrgAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.OrgStateActive
			wm.Name = payload.Name

		case repository.OrgChangedType:
			var payload repository.OrgChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name

		case repository.OrgDeactivatedType:
			wm.State = domain.OrgStateInactive
		case repository.OrgReactivatedType:
			wm.State = domain.OrgStateActive
		case repository.OrgRemovedType:
			wm.State = domain.OrgStateRemoved

		case repository.OrgDomainAddedType:
			var payload repository.OrgDomainAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Domains[payload.Domain] = true

		case repository.OrgDomainPrimarySetType:
			var payload repository.OrgDomainPrimarySetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PrimaryDomain = payload.Domain

		case repository.OrgDomainRemovedType:
			var payload repository.OrgDomainRemovedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.Domains, payload.Domain)
			if wm.PrimaryDomain == payload.Domain {
				wm.PrimaryDomain = ""
			}

		case repository.OrgFlowTriggerActionsSetType:
			var payload repository.FlowTriggerActionsSetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			triggers := wm.Flows[payload.FlowType]
			if triggers == nil {
				triggers = map[domain.TriggerType][]string{}
				wm.Flows[payload.FlowType] = triggers
			}
			triggers[payload.TriggerType] = payload.ActionIDs

		case repository.OrgFlowClearedType:
			var payload repository.FlowClearedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.Flows, payload.FlowType)

		case repository.OrgFlowTriggerActionsCascadeRemovedType:
			var payload repository.FlowTriggerActionsCascadeRemovedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			triggers := wm.Flows[payload.FlowType]
			if triggers == nil {
				break
			}
			kept := triggers[payload.TriggerType][:0]
			for _, id := range triggers[payload.TriggerType] {
				if id != payload.ActionID {
					kept = append(kept, id)
				}
			}
			triggers[payload.TriggerType] = kept
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *orgWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.OrgAggregate)
}

// orgUsernamesWriteModel folds the usernames currently held inside one org,
// used to release all claims when the org is removed.
type orgUsernamesWriteModel struct {
	eventstore.WriteModel

	orgID string
	// usernames by user id
	usernames map[string]string
}

func newOrgUsernamesWriteModel(instanceID, orgID string) *orgUsernamesWriteModel {
	return &orgUsernamesWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   orgID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
		orgID:     orgID,
		usernames: map[string]string{},
	}
}

func (wm *orgUsernamesWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.UserAggregate).
		WithResourceOwner(wm.orgID).
		WithEventTypes(
			repository.UserHumanAddedType,
			repository.UserMachineAddedType,
			repository.UserUsernameChangedType,
			repository.UserRemovedType,
		))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *orgUsernamesWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.UserHumanAddedType:
			var payload repository.UserHumanAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.usernames[event.Aggregate.ID] = payload.Username
		case repository.UserMachineAddedType:
			var payload repository.UserMachineAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.usernames[event.Aggregate.ID] = payload.Username
		case repository.UserUsernameChangedType:
			var payload repository.UserUsernameChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.usernames[event.Aggregate.ID] = payload.Username
		case repository.UserRemovedType:
			delete(wm.usernames, event.Aggregate.ID)
		}
	}
	// Do not fold into the base model: the events belong to user
	// aggregates, not the org.
	wm.Events = wm.Events[:0]
	return nil
}
