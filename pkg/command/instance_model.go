package command

import (
	"context"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

type instanceWriteModel struct {
	eventstore.WriteModel

	State           domain.InstanceState
	Name            string
	DefaultOrgID    string
	DefaultLanguage string
	Domains         map[string]repository.InstanceDomainAddedPayload
	PrimaryDomain   string
	TrustedDomains  map[string]bool
	Features        map[string]bool
}

func newInstanceWriteModel(instanceID string) *instanceWriteModel {
	return &instanceWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   instanceID,
			ResourceOwner: instanceID,
			InstanceID:    instanceID,
		},
		Domains:        map[string]repository.InstanceDomainAddedPayload{},
		TrustedDomains: map[string]bool{},
		Features:       map[string]bool{},
	}
}

func (wm *instanceWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.InstanceAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *instanceWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.InstanceAddedType:
			var payload repository.InstanceAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.InstanceStateActive
			wm.Name = payload.Name
			wm.DefaultLanguage = payload.DefaultLanguage

		case repository.InstanceDefaultOrgSetType:
			var payload repository.InstanceDefaultOrgSetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.DefaultOrgID = payload.OrgID

		case repository.InstanceDefaultLanguageSetType:
			var payload repository.InstanceDefaultLanguageSetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.DefaultLanguage = payload.Language

		case repository.InstanceDomainAddedType:
			var payload repository.InstanceDomainAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Domains[payload.Domain] = payload
			if payload.Primary {
				wm.PrimaryDomain = payload.Domain
			}

		case repository.InstanceDomainPrimarySetType:
			var payload repository.InstanceDomainPrimarySetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PrimaryDomain = payload.Domain

		case repository.InstanceDomainRemovedType:
			var payload repository.InstanceDomainRemovedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.Domains, payload.Domain)
			if wm.PrimaryDomain == payload.Domain {
				wm.PrimaryDomain = ""
			}

		case repository.InstanceTrustedDomainAddedType:
			var payload repository.InstanceTrustedDomainPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.TrustedDomains[payload.Domain] = true

		case repository.InstanceTrustedDomainRemovedType:
			var payload repository.InstanceTrustedDomainPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.TrustedDomains, payload.Domain)

		case repository.InstanceFeatureSetType:
			var payload repository.InstanceFeatureSetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Features[payload.Key] = payload.Value

		case repository.InstanceFeatureResetType:
			var payload repository.InstanceFeatureResetPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.Features, payload.Key)
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *instanceWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.InstanceAggregate)
}
