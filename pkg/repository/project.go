package repository

import (
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const ProjectAggregate eventstore.AggregateType = "project"

const (
	ProjectAddedType       eventstore.EventType = "project.added"
	ProjectChangedType     eventstore.EventType = "project.changed"
	ProjectDeactivatedType eventstore.EventType = "project.deactivated"
	ProjectReactivatedType eventstore.EventType = "project.reactivated"
	ProjectRemovedType     eventstore.EventType = "project.removed"

	ProjectRoleAddedType   eventstore.EventType = "project.role.added"
	ProjectRoleChangedType eventstore.EventType = "project.role.changed"
	ProjectRoleRemovedType eventstore.EventType = "project.role.removed"
)

type ProjectAddedPayload struct {
	Name                   string                        `json:"name"`
	ProjectRoleAssertion   bool                          `json:"projectRoleAssertion,omitempty"`
	ProjectRoleCheck       bool                          `json:"projectRoleCheck,omitempty"`
	HasProjectCheck        bool                          `json:"hasProjectCheck,omitempty"`
	PrivateLabelingSetting domain.PrivateLabelingSetting `json:"privateLabelingSetting,omitempty"`
}

type ProjectChangedPayload struct {
	Name                   *string                        `json:"name,omitempty"`
	ProjectRoleAssertion   *bool                          `json:"projectRoleAssertion,omitempty"`
	ProjectRoleCheck       *bool                          `json:"projectRoleCheck,omitempty"`
	HasProjectCheck        *bool                          `json:"hasProjectCheck,omitempty"`
	PrivateLabelingSetting *domain.PrivateLabelingSetting `json:"privateLabelingSetting,omitempty"`
}

type ProjectRolePayload struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName,omitempty"`
	Group       string `json:"group,omitempty"`
}

type ProjectRoleRemovedPayload struct {
	Key string `json:"key"`
}
