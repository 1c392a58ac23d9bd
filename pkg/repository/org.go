package repository

import (
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const OrgAggregate eventstore.AggregateType = "org"

const (
	OrgAddedType            eventstore.EventType = "org.added"
	OrgChangedType          eventstore.EventType = "org.changed"
	OrgDeactivatedType      eventstore.EventType = "org.deactivated"
	OrgReactivatedType      eventstore.EventType = "org.reactivated"
	OrgRemovedType          eventstore.EventType = "org.removed"
	OrgDomainAddedType      eventstore.EventType = "org.domain.added"
	OrgDomainPrimarySetType eventstore.EventType = "org.domain.primary.set"
	OrgDomainRemovedType    eventstore.EventType = "org.domain.removed"
)

const (
	// UniqueOrgName claims the org name per instance.
	UniqueOrgName = "org_name"
	// UniqueOrgDomain claims a verified domain per instance.
	UniqueOrgDomain = "org_domain"
)

type OrgAddedPayload struct {
	Name string `json:"name"`
}

type OrgChangedPayload struct {
	Name string `json:"name"`
	// OldName releases the previous name claim on the query side.
	OldName string `json:"oldName,omitempty"`
}

type OrgRemovedPayload struct {
	Name string `json:"name"`
	// Usernames and Domains released by the removal.
	Usernames []string `json:"usernames,omitempty"`
	Domains   []string `json:"domains,omitempty"`
}

type OrgDomainAddedPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainPrimarySetPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainRemovedPayload struct {
	Domain string `json:"domain"`
}
