package repository

import (
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const ExecutionAggregate eventstore.AggregateType = "execution"

const (
	ExecutionSetType     eventstore.EventType = "execution.set"
	ExecutionRemovedType eventstore.EventType = "execution.removed"
)

// ExecutionTargetKind discriminates list entries.
type ExecutionTargetKind int32

const (
	ExecutionTargetKindUnspecified ExecutionTargetKind = iota
	// ExecutionTargetKindTarget calls a webhook target.
	ExecutionTargetKindTarget
	// ExecutionTargetKindInclude splices in another execution's list.
	ExecutionTargetKindInclude
)

type ExecutionTargetRef struct {
	Kind ExecutionTargetKind `json:"kind"`
	// Target is a target id or, for includes, an execution id.
	Target string `json:"target"`
}

type ExecutionSetPayload struct {
	ExecutionType domain.ExecutionType `json:"executionType"`
	Condition     string               `json:"condition"`
	Targets       []ExecutionTargetRef `json:"targets"`
}
