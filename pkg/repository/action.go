package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const ActionAggregate eventstore.AggregateType = "action"

const (
	ActionAddedType       eventstore.EventType = "action.added"
	ActionChangedType     eventstore.EventType = "action.changed"
	ActionDeactivatedType eventstore.EventType = "action.deactivated"
	ActionReactivatedType eventstore.EventType = "action.reactivated"
	ActionRemovedType     eventstore.EventType = "action.removed"

	// Flows live on the org aggregate; clearing events for flows that
	// reference a removed action land in the same push as the removal.
	OrgFlowTriggerActionsSetType            eventstore.EventType = "org.flow.trigger.actions.set"
	OrgFlowClearedType                      eventstore.EventType = "org.flow.cleared"
	OrgFlowTriggerActionsCascadeRemovedType eventstore.EventType = "org.flow.trigger.actions.cascade.removed"
)

type ActionAddedPayload struct {
	Name          string        `json:"name"`
	Script        string        `json:"script"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	AllowedToFail bool          `json:"allowedToFail,omitempty"`
}

type ActionChangedPayload struct {
	Name          *string        `json:"name,omitempty"`
	Script        *string        `json:"script,omitempty"`
	Timeout       *time.Duration `json:"timeout,omitempty"`
	AllowedToFail *bool          `json:"allowedToFail,omitempty"`
}

type FlowTriggerActionsSetPayload struct {
	FlowType    domain.FlowType    `json:"flowType"`
	TriggerType domain.TriggerType `json:"triggerType"`
	ActionIDs   []string           `json:"actionIds"`
}

type FlowClearedPayload struct {
	FlowType domain.FlowType `json:"flowType"`
}

type FlowTriggerActionsCascadeRemovedPayload struct {
	FlowType    domain.FlowType    `json:"flowType"`
	TriggerType domain.TriggerType `json:"triggerType"`
	ActionID    string             `json:"actionId"`
}
