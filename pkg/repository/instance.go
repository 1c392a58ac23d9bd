package repository

import (
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const InstanceAggregate eventstore.AggregateType = "instance"

const (
	InstanceAddedType              eventstore.EventType = "instance.added"
	InstanceDefaultOrgSetType      eventstore.EventType = "instance.default.org.set"
	InstanceDefaultLanguageSetType eventstore.EventType = "instance.default.language.set"
	InstanceDomainAddedType        eventstore.EventType = "instance.domain.added"
	InstanceDomainPrimarySetType   eventstore.EventType = "instance.domain.primary.set"
	InstanceDomainRemovedType      eventstore.EventType = "instance.domain.removed"
	InstanceTrustedDomainAddedType eventstore.EventType = "instance.trusted.domain.added"
	InstanceTrustedDomainRemovedType eventstore.EventType = "instance.trusted.domain.removed"
	InstanceFeatureSetType         eventstore.EventType = "instance.feature.set"
	InstanceFeatureResetType       eventstore.EventType = "instance.feature.reset"
)

// UniqueInstanceDomain partitions the claim index for instance domains.
const UniqueInstanceDomain = "instance_domain"

type InstanceAddedPayload struct {
	Name            string `json:"name"`
	DefaultLanguage string `json:"defaultLanguage"`
}

type InstanceDefaultOrgSetPayload struct {
	OrgID string `json:"orgId"`
}

type InstanceDefaultLanguageSetPayload struct {
	Language string `json:"language"`
}

type InstanceDomainAddedPayload struct {
	Domain    string `json:"domain"`
	Generated bool   `json:"generated"`
	Primary   bool   `json:"primary"`
}

type InstanceDomainPrimarySetPayload struct {
	Domain string `json:"domain"`
}

type InstanceDomainRemovedPayload struct {
	Domain string `json:"domain"`
}

type InstanceTrustedDomainPayload struct {
	Domain string `json:"domain"`
}

type InstanceFeatureSetPayload struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

type InstanceFeatureResetPayload struct {
	Key string `json:"key"`
}
