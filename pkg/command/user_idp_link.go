package command

import (
	"context"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/query"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// AddUserIDPLink links an external identity to the user.
func (c *Commands) AddUserIDPLink(ctx context.Context, orgID, userID string, link *domain.UserIDPLink) (*domain.ObjectDetails, error) {
	details, err := c.BulkAddUserIDPLinks(ctx, orgID, userID, []*domain.UserIDPLink{link})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// BulkAddUserIDPLinks validates every link before writing any: one invalid
// entry fails the whole batch and no event is produced.
func (c *Commands) BulkAddUserIDPLinks(ctx context.Context, orgID, userID string, links []*domain.UserIDPLink) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "USER-100", "no links provided")
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	instanceID := authz.GetInstance(ctx)
	// Catch the template projection up so fresh providers are visible.
	if err := c.queries.Trigger(ctx, query.IDPTemplateProjectionName); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, link := range links {
		if err := validators.Required(link.IDPConfigID, "idpConfigId", "USER-101"); err != nil {
			return nil, err
		}
		if err := validators.Required(link.ExternalUserID, "externalUserId", "USER-102"); err != nil {
			return nil, err
		}
		key := linkKey(link.IDPConfigID, link.ExternalUserID)
		if seen[key] {
			return nil, apperr.ThrowInvalidArgument(nil, "USER-103", "duplicate link in request")
		}
		seen[key] = true
		if _, ok := user.IDPLinks[key]; ok {
			return nil, apperr.ThrowAlreadyExists(nil, "USER-104", "identity already linked")
		}
		template, err := c.queries.IDPTemplateByID(ctx, instanceID, link.IDPConfigID)
		if err != nil {
			return nil, err
		}
		if !template.State.Exists() {
			return nil, apperr.ThrowPreconditionFailed(nil, "USER-105", "identity provider not active")
		}
	}
	creator := authz.GetCtxData(ctx).UserID
	commands := make([]*eventstore.Command, 0, len(links))
	for _, link := range links {
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserIDPLinkAddedType, creator,
				repository.UserIDPLinkPayload{
					IDPConfigID:    link.IDPConfigID,
					ExternalUserID: link.ExternalUserID,
					DisplayName:    link.DisplayName,
				}))
	}
	if err := c.pushAppendAndReduce(ctx, user, commands...); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// RemoveUserIDPLink unlinks an external identity.
func (c *Commands) RemoveUserIDPLink(ctx context.Context, orgID, userID, idpID, externalUserID string) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	link, ok := user.IDPLinks[linkKey(idpID, externalUserID)]
	if !ok {
		return nil, apperr.ThrowNotFound(nil, "USER-110", "link not found")
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserIDPLinkRemovedType, authz.GetCtxData(ctx).UserID, link))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// MigrateUserIDPExternalID swaps the external id of an existing link,
// preserving the linked user. Used when a provider renumbers its subjects.
func (c *Commands) MigrateUserIDPExternalID(ctx context.Context, orgID, userID, idpID, previousID, newID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	if err := validators.Required(newID, "newId", "USER-120"); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := user.IDPLinks[linkKey(idpID, previousID)]; !ok {
		return nil, apperr.ThrowNotFound(nil, "USER-121", "link not found")
	}
	if previousID == newID {
		return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
	}
	if _, ok := user.IDPLinks[linkKey(idpID, newID)]; ok {
		return nil, apperr.ThrowAlreadyExists(nil, "USER-122", "target identity already linked")
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserIDPExternalIDMigratedType, authz.GetCtxData(ctx).UserID,
			repository.UserIDPExternalIDMigratedPayload{
				IDPConfigID: idpID,
				PreviousID:  previousID,
				NewID:       newID,
			}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}
