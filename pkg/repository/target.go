package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const TargetAggregate eventstore.AggregateType = "target"

const (
	TargetAddedType   eventstore.EventType = "target.added"
	TargetChangedType eventstore.EventType = "target.changed"
	TargetRemovedType eventstore.EventType = "target.removed"
)

// UniqueTargetName claims target names per instance.
const UniqueTargetName = "target_name"

type TargetAddedPayload struct {
	Name             string            `json:"name"`
	TargetType       domain.TargetType `json:"targetType"`
	Endpoint         string            `json:"endpoint"`
	Timeout          time.Duration     `json:"timeout"`
	InterruptOnError bool              `json:"interruptOnError,omitempty"`
	// SigningKey is the encrypted webhook key. The plaintext is returned
	// exactly once on add and on rotation.
	SigningKey *crypto.Value `json:"signingKey,omitempty"`
}

type TargetChangedPayload struct {
	Name             *string            `json:"name,omitempty"`
	OldName          string             `json:"oldName,omitempty"`
	TargetType       *domain.TargetType `json:"targetType,omitempty"`
	Endpoint         *string            `json:"endpoint,omitempty"`
	Timeout          *time.Duration     `json:"timeout,omitempty"`
	InterruptOnError *bool              `json:"interruptOnError,omitempty"`
	SigningKey       *crypto.Value      `json:"signingKey,omitempty"`
}

type TargetRemovedPayload struct {
	Name string `json:"name"`
}
