package command

import (
	"context"
	"slices"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// policyEvents names the event set of one policy kind on one owner level
// (instance default or org override). Removed is empty at instance level:
// defaults are never removed, only changed.
type policyEvents struct {
	added   eventstore.EventType
	changed eventstore.EventType
	removed eventstore.EventType
}

var (
	instanceLoginPolicy = policyEvents{repository.InstanceLoginPolicyAddedType, repository.InstanceLoginPolicyChangedType, ""}
	orgLoginPolicy      = policyEvents{repository.OrgLoginPolicyAddedType, repository.OrgLoginPolicyChangedType, repository.OrgLoginPolicyRemovedType}

	instancePasswordComplexityPolicy = policyEvents{repository.InstancePasswordComplexityPolicyAddedType, repository.InstancePasswordComplexityPolicyChangedType, ""}
	orgPasswordComplexityPolicy      = policyEvents{repository.OrgPasswordComplexityPolicyAddedType, repository.OrgPasswordComplexityPolicyChangedType, repository.OrgPasswordComplexityPolicyRemovedType}

	instancePasswordAgePolicy = policyEvents{repository.InstancePasswordAgePolicyAddedType, repository.InstancePasswordAgePolicyChangedType, ""}
	orgPasswordAgePolicy      = policyEvents{repository.OrgPasswordAgePolicyAddedType, repository.OrgPasswordAgePolicyChangedType, repository.OrgPasswordAgePolicyRemovedType}

	instanceLockoutPolicy = policyEvents{repository.InstanceLockoutPolicyAddedType, repository.InstanceLockoutPolicyChangedType, ""}
	orgLockoutPolicy      = policyEvents{repository.OrgLockoutPolicyAddedType, repository.OrgLockoutPolicyChangedType, repository.OrgLockoutPolicyRemovedType}

	instanceDomainPolicy = policyEvents{repository.InstanceDomainPolicyAddedType, repository.InstanceDomainPolicyChangedType, ""}
	orgDomainPolicy      = policyEvents{repository.OrgDomainPolicyAddedType, repository.OrgDomainPolicyChangedType, repository.OrgDomainPolicyRemovedType}

	instancePrivacyPolicy = policyEvents{repository.InstancePrivacyPolicyAddedType, repository.InstancePrivacyPolicyChangedType, ""}
	orgPrivacyPolicy      = policyEvents{repository.OrgPrivacyPolicyAddedType, repository.OrgPrivacyPolicyChangedType, repository.OrgPrivacyPolicyRemovedType}

	instanceLabelPolicy = policyEvents{repository.InstanceLabelPolicyAddedType, repository.InstanceLabelPolicyChangedType, ""}
	orgLabelPolicy      = policyEvents{repository.OrgLabelPolicyAddedType, repository.OrgLabelPolicyChangedType, repository.OrgLabelPolicyRemovedType}

	instanceSecurityPolicy = policyEvents{repository.InstanceSecurityPolicyAddedType, repository.InstanceSecurityPolicyChangedType, ""}
	orgSecurityPolicy      = policyEvents{repository.OrgSecurityPolicyAddedType, repository.OrgSecurityPolicyChangedType, repository.OrgSecurityPolicyRemovedType}
)

// policyWriteModel tracks existence of one policy kind on one aggregate.
type policyWriteModel struct {
	eventstore.WriteModel

	aggregateType eventstore.AggregateType
	events        policyEvents

	Exists bool
}

func newPolicyWriteModel(instanceID, ownerID string, aggregateType eventstore.AggregateType, events policyEvents) *policyWriteModel {
	return &policyWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   ownerID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
		aggregateType: aggregateType,
		events:        events,
	}
}

func (wm *policyWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	types := []eventstore.EventType{wm.events.added, wm.events.changed}
	if wm.events.removed != "" {
		types = append(types, wm.events.removed)
	}
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(wm.aggregateType).
		WithAggregateIDs(wm.AggregateID).
		WithEventTypes(types...))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *policyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case wm.events.added:
			wm.Exists = true
		case wm.events.removed:
			wm.Exists = false
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *policyWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, wm.aggregateType)
}

// loginPolicyWriteModel additionally folds the factor sets.
type loginPolicyWriteModel struct {
	policyWriteModel

	SecondFactors []domain.SecondFactorType
	MultiFactors  []domain.MultiFactorType

	factorEvents loginFactorEvents
}

type loginFactorEvents struct {
	secondAdded   eventstore.EventType
	secondRemoved eventstore.EventType
	multiAdded    eventstore.EventType
	multiRemoved  eventstore.EventType
}

var (
	instanceLoginFactors = loginFactorEvents{
		repository.InstanceLoginPolicySecondFactorAddedType,
		repository.InstanceLoginPolicySecondFactorRemovedType,
		repository.InstanceLoginPolicyMultiFactorAddedType,
		repository.InstanceLoginPolicyMultiFactorRemovedType,
	}
	orgLoginFactors = loginFactorEvents{
		repository.OrgLoginPolicySecondFactorAddedType,
		repository.OrgLoginPolicySecondFactorRemovedType,
		repository.OrgLoginPolicyMultiFactorAddedType,
		repository.OrgLoginPolicyMultiFactorRemovedType,
	}
)

func newLoginPolicyWriteModel(instanceID, ownerID string, aggregateType eventstore.AggregateType, events policyEvents, factors loginFactorEvents) *loginPolicyWriteModel {
	return &loginPolicyWriteModel{
		policyWriteModel: *newPolicyWriteModel(instanceID, ownerID, aggregateType, events),
		factorEvents:     factors,
	}
}

func (wm *loginPolicyWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	types := []eventstore.EventType{
		wm.events.added, wm.events.changed,
		wm.factorEvents.secondAdded, wm.factorEvents.secondRemoved,
		wm.factorEvents.multiAdded, wm.factorEvents.multiRemoved,
	}
	if wm.events.removed != "" {
		types = append(types, wm.events.removed)
	}
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(wm.aggregateType).
		WithAggregateIDs(wm.AggregateID).
		WithEventTypes(types...))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *loginPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case wm.events.added:
			wm.Exists = true
		case wm.events.removed:
			wm.Exists = false
			wm.SecondFactors = nil
			wm.MultiFactors = nil

		case wm.factorEvents.secondAdded:
			var payload repository.LoginPolicySecondFactorPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			if !slices.Contains(wm.SecondFactors, payload.FactorType) {
				wm.SecondFactors = append(wm.SecondFactors, payload.FactorType)
			}

		case wm.factorEvents.secondRemoved:
			var payload repository.LoginPolicySecondFactorPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.SecondFactors = slices.DeleteFunc(wm.SecondFactors,
				func(f domain.SecondFactorType) bool { return f == payload.FactorType })

		case wm.factorEvents.multiAdded:
			var payload repository.LoginPolicyMultiFactorPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			if !slices.Contains(wm.MultiFactors, payload.FactorType) {
				wm.MultiFactors = append(wm.MultiFactors, payload.FactorType)
			}

		case wm.factorEvents.multiRemoved:
			var payload repository.LoginPolicyMultiFactorPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.MultiFactors = slices.DeleteFunc(wm.MultiFactors,
				func(f domain.MultiFactorType) bool { return f == payload.FactorType })
		}
	}
	return wm.WriteModel.Reduce()
}
