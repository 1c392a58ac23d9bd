package domain

import "time"

// ActionState: active ↔ inactive, then terminally removed.
type ActionState int32

const (
	ActionStateUnspecified ActionState = iota
	ActionStateActive
	ActionStateInactive
	ActionStateRemoved
)

func (s ActionState) Exists() bool {
	return s == ActionStateActive || s == ActionStateInactive
}

// FlowType identifies a trigger flow referencing actions.
type FlowType int32

const (
	FlowTypeUnspecified FlowType = iota
	FlowTypeExternalAuthentication
	FlowTypeCustomiseToken
	FlowTypeInternalAuthentication
)

// TriggerType within a flow.
type TriggerType int32

const (
	TriggerTypeUnspecified TriggerType = iota
	TriggerTypePostAuthentication
	TriggerTypePreCreation
	TriggerTypePostCreation
	TriggerTypePreUserinfoCreation
	TriggerTypePreAccessTokenCreation
)

// TargetType of a webhook target invocation.
type TargetType int32

const (
	TargetTypeWebhook TargetType = iota
	TargetTypeCall
	TargetTypeAsync
)

const (
	// MaxTargetTimeout bounds a webhook target call.
	MaxTargetTimeout = 300 * time.Second
	// MaxIncludeDepth bounds execution include chains.
	MaxIncludeDepth = 3
)

// ExecutionType scopes an execution condition.
type ExecutionType string

const (
	ExecutionTypeRequest  ExecutionType = "request"
	ExecutionTypeResponse ExecutionType = "response"
	ExecutionTypeEvent    ExecutionType = "event"
	ExecutionTypeFunction ExecutionType = "function"
)
