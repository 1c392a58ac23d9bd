package command

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type targetWriteModel struct {
	eventstore.WriteModel

	Exists           bool
	Name             string
	TargetType       domain.TargetType
	Endpoint         string
	Timeout          time.Duration
	InterruptOnError bool
	SigningKey       *crypto.Value
}

func newTargetWriteModel(instanceID, targetID string) *targetWriteModel {
	return &targetWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   targetID,
			ResourceOwner: instanceID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *targetWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.TargetAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *targetWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.TargetAddedType:
			var payload repository.TargetAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Exists = true
			wm.Name = payload.Name
			wm.TargetType = payload.TargetType
			wm.Endpoint = payload.Endpoint
			wm.Timeout = payload.Timeout
			wm.InterruptOnError = payload.InterruptOnError
			wm.SigningKey = payload.SigningKey

		case repository.TargetChangedType:
			var payload repository.TargetChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			if payload.Name != nil {
				wm.Name = *payload.Name
			}
			if payload.TargetType != nil {
				wm.TargetType = *payload.TargetType
			}
			if payload.Endpoint != nil {
				wm.Endpoint = *payload.Endpoint
			}
			if payload.Timeout != nil {
				wm.Timeout = *payload.Timeout
			}
			if payload.InterruptOnError != nil {
				wm.InterruptOnError = *payload.InterruptOnError
			}
			if payload.SigningKey != nil {
				wm.SigningKey = payload.SigningKey
			}

		case repository.TargetRemovedType:
			wm.Exists = false
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *targetWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.TargetAggregate)
}

// AddTarget is the input for registering a webhook target.
type AddTarget struct {
	Name             string
	TargetType       domain.TargetType
	Endpoint         string
	Timeout          time.Duration
	InterruptOnError bool
}

// AddedTarget carries the generated signing key back to the caller,
// base64-encoded. The plaintext key leaves the system exactly once.
type AddedTarget struct {
	TargetID   string
	SigningKey string
	Details    *domain.ObjectDetails
}

// AddTarget registers a target with a fresh 32-byte signing key. The name
// is claimed instance-wide; the timeout must be positive and at most five
// minutes.
func (c *Commands) AddTarget(ctx context.Context, target *AddTarget) (*AddedTarget, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionTargetWrite, instanceID); err != nil {
		return nil, err
	}
	target.Name = strings.TrimSpace(target.Name)
	if err := validators.Required(target.Name, "name", "TARGET-001"); err != nil {
		return nil, err
	}
	if err := validators.URL(target.Endpoint, "TARGET-002"); err != nil {
		return nil, err
	}
	if err := validateTargetTimeout(target.Timeout); err != nil {
		return nil, err
	}
	key, encryptedKey, err := c.newSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	targetID := c.nextID()
	model := newTargetWriteModel(instanceID, targetID)
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.TargetAddedType, authz.GetCtxData(ctx).UserID,
			repository.TargetAddedPayload{
				Name:             target.Name,
				TargetType:       target.TargetType,
				Endpoint:         target.Endpoint,
				Timeout:          target.Timeout,
				InterruptOnError: target.InterruptOnError,
				SigningKey:       encryptedKey,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueTargetName, target.Name, "TARGET-003")))
	if err != nil {
		return nil, err
	}
	return &AddedTarget{
		TargetID:   targetID,
		SigningKey: key,
		Details:    eventstore.WriteModelToObjectDetails(&model.WriteModel),
	}, nil
}

// ChangeTarget patches target settings; nil fields stay untouched. A name
// change swaps the instance-wide claim.
func (c *Commands) ChangeTarget(ctx context.Context, targetID string, changes *repository.TargetChangedPayload) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionTargetWrite, instanceID); err != nil {
		return nil, err
	}
	target, err := c.existingTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		return nil, apperr.ThrowInvalidArgument(nil, "TARGET-010", "no changes")
	}
	if changes.Endpoint != nil {
		if err := validators.URL(*changes.Endpoint, "TARGET-011"); err != nil {
			return nil, err
		}
	}
	if changes.Timeout != nil {
		if err := validateTargetTimeout(*changes.Timeout); err != nil {
			return nil, err
		}
	}
	constraints := []*eventstore.UniqueConstraint{}
	if changes.Name != nil {
		*changes.Name = strings.TrimSpace(*changes.Name)
		if err := validators.Required(*changes.Name, "name", "TARGET-012"); err != nil {
			return nil, err
		}
		if *changes.Name != target.Name {
			changes.OldName = target.Name
			constraints = append(constraints,
				eventstore.NewRemoveUniqueConstraint(repository.UniqueTargetName, target.Name),
				eventstore.NewAddUniqueConstraint(repository.UniqueTargetName, *changes.Name, "TARGET-013"))
		}
	}
	err = c.pushAppendAndReduce(ctx, target,
		eventstore.NewCommand(target.aggregate(), repository.TargetChangedType, authz.GetCtxData(ctx).UserID,
			changes, constraints...))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&target.WriteModel), nil
}

// RotateTargetSigningKey replaces the webhook signing key and returns the
// new plaintext once.
func (c *Commands) RotateTargetSigningKey(ctx context.Context, targetID string) (string, *domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionTargetWrite, instanceID); err != nil {
		return "", nil, err
	}
	target, err := c.existingTarget(ctx, targetID)
	if err != nil {
		return "", nil, err
	}
	key, encryptedKey, err := c.newSigningKey(ctx)
	if err != nil {
		return "", nil, err
	}
	err = c.pushAppendAndReduce(ctx, target,
		eventstore.NewCommand(target.aggregate(), repository.TargetChangedType, authz.GetCtxData(ctx).UserID,
			repository.TargetChangedPayload{SigningKey: encryptedKey}))
	if err != nil {
		return "", nil, err
	}
	return key, eventstore.WriteModelToObjectDetails(&target.WriteModel), nil
}

// RemoveTarget removes the target and releases its name claim. Executions
// referencing it keep their lists; calls against a removed target fail at
// dispatch time.
func (c *Commands) RemoveTarget(ctx context.Context, targetID string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionTargetWrite, instanceID); err != nil {
		return nil, err
	}
	target, err := c.existingTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, target,
		eventstore.NewCommand(target.aggregate(), repository.TargetRemovedType, authz.GetCtxData(ctx).UserID,
			repository.TargetRemovedPayload{Name: target.Name},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueTargetName, target.Name)))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&target.WriteModel), nil
}

func (c *Commands) existingTarget(ctx context.Context, targetID string) (*targetWriteModel, error) {
	target := newTargetWriteModel(authz.GetInstance(ctx), targetID)
	if err := target.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !target.Exists {
		return nil, apperr.ThrowNotFound(nil, "TARGET-000", "target does not exist")
	}
	return target, nil
}

func (c *Commands) newSigningKey(ctx context.Context) (string, *crypto.Value, error) {
	raw, err := crypto.NewSigningKey()
	if err != nil {
		return "", nil, err
	}
	encrypted, err := c.keeper.Encrypt(ctx, raw)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(raw), encrypted, nil
}

func validateTargetTimeout(timeout time.Duration) error {
	if timeout <= 0 || timeout > domain.MaxTargetTimeout {
		return apperr.ThrowInvalidArgument(nil, "TARGET-020", "timeout must be positive and at most five minutes")
	}
	return nil
}
