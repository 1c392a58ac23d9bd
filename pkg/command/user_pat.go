package command

import (
	"context"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idgen"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// PersonalAccessToken is returned once on creation; only the SHA-256
// digest of Token is persisted.
type PersonalAccessToken struct {
	TokenID    string
	Token      string
	Expiration time.Time
	Details    *domain.ObjectDetails
}

// AddPersonalAccessToken mints a token for the user. Expiration must lie in
// the future.
func (c *Commands) AddPersonalAccessToken(ctx context.Context, orgID, userID string, expiration time.Time, scopes []string) (*PersonalAccessToken, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserCredWrite, orgID); err != nil {
		return nil, err
	}
	if !expiration.After(c.now()) {
		return nil, apperr.ThrowInvalidArgument(nil, "USER-090", "expiration must be in the future")
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	plain, err := idgen.RandomToken(32)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "USER-091", "generate token")
	}
	tokenID := c.nextID()
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPATAddedType, authz.GetCtxData(ctx).UserID,
			repository.UserPATAddedPayload{
				TokenID:    tokenID,
				Expiration: expiration.UTC(),
				Scopes:     scopes,
				Digest:     crypto.HashToken(plain),
			}))
	if err != nil {
		return nil, err
	}
	return &PersonalAccessToken{
		TokenID:    tokenID,
		Token:      plain,
		Expiration: expiration.UTC(),
		Details:    eventstore.WriteModelToObjectDetails(&user.WriteModel),
	}, nil
}

// RemovePersonalAccessToken revokes a token.
func (c *Commands) RemovePersonalAccessToken(ctx context.Context, orgID, userID, tokenID string) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserCredWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := user.PATs[tokenID]; !ok {
		return nil, apperr.ThrowNotFound(nil, "USER-092", "token not found")
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPATRemovedType, authz.GetCtxData(ctx).UserID,
			repository.UserPATRemovedPayload{TokenID: tokenID}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}
