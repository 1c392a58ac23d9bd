package command

import (
	"context"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// AddOrg creates an org and claims its name.
func (c *Commands) AddOrg(ctx context.Context, name string) (string, *domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, instanceID); err != nil {
		return "", nil, err
	}
	name = strings.TrimSpace(name)
	if err := validators.Required(name, "name", "ORG-010"); err != nil {
		return "", nil, err
	}
	orgID := c.nextID()
	org := newOrgWriteModel(instanceID, orgID)
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgAddedType, authz.GetCtxData(ctx).UserID,
			repository.OrgAddedPayload{Name: name},
			eventstore.NewAddUniqueConstraint(repository.UniqueOrgName, orgNameClaim(name), "ORG-011")))
	if err != nil {
		return "", nil, err
	}
	return orgID, eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// ChangeOrg renames the org, swapping the name claim.
func (c *Commands) ChangeOrg(ctx context.Context, orgID, name string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validators.Required(name, "name", "ORG-020"); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ORG-021", "org does not exist")
	}
	if org.Name == name {
		return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgChangedType, authz.GetCtxData(ctx).UserID,
			repository.OrgChangedPayload{Name: name, OldName: org.Name},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueOrgName, orgNameClaim(org.Name)),
			eventstore.NewAddUniqueConstraint(repository.UniqueOrgName, orgNameClaim(name), "ORG-022")))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// DeactivateOrg transitions active → inactive.
func (c *Commands) DeactivateOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ORG-030", "org does not exist")
	}
	if org.State == domain.OrgStateInactive {
		return nil, apperr.ThrowPreconditionFailed(nil, "ORG-031", "org already inactive")
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgDeactivatedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// ReactivateOrg transitions inactive → active.
func (c *Commands) ReactivateOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ORG-032", "org does not exist")
	}
	if org.State == domain.OrgStateActive {
		return nil, apperr.ThrowPreconditionFailed(nil, "ORG-033", "org already active")
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgReactivatedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// RemoveOrg removes the org and releases every claim it holds: its name,
// its domains, and all usernames inside it.
func (c *Commands) RemoveOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if instance.DefaultOrgID == orgID {
		return nil, apperr.ThrowPreconditionFailed(nil, "ORG-040", "default org cannot be removed")
	}
	org := newOrgWriteModel(instanceID, orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ORG-041", "org does not exist")
	}
	held := newOrgUsernamesWriteModel(instanceID, orgID)
	if err := held.load(ctx, c.es); err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(held.usernames))
	constraints := []*eventstore.UniqueConstraint{
		eventstore.NewRemoveUniqueConstraint(repository.UniqueOrgName, orgNameClaim(org.Name)),
	}
	for _, username := range held.usernames {
		usernames = append(usernames, username)
		constraints = append(constraints,
			eventstore.NewRemoveUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, username)))
	}
	domains := make([]string, 0, len(org.Domains))
	for d := range org.Domains {
		domains = append(domains, d)
		constraints = append(constraints,
			eventstore.NewRemoveUniqueConstraint(repository.UniqueOrgDomain, d))
	}

	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgRemovedType, authz.GetCtxData(ctx).UserID,
			repository.OrgRemovedPayload{Name: org.Name, Usernames: usernames, Domains: domains},
			constraints...))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// AddOrgDomain registers and claims a domain for the org.
func (c *Commands) AddOrgDomain(ctx context.Context, orgID, domainName string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if err := validators.Domain(domainName, "ORG-050"); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "ORG-051", "org does not exist")
	}
	if org.Domains[domainName] {
		return nil, apperr.ThrowAlreadyExists(nil, "ORG-052", "domain already added")
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgDomainAddedType, authz.GetCtxData(ctx).UserID,
			repository.OrgDomainAddedPayload{Domain: domainName},
			eventstore.NewAddUniqueConstraint(repository.UniqueOrgDomain, domainName, "ORG-053")))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// SetPrimaryOrgDomain marks a registered domain as the org's primary.
func (c *Commands) SetPrimaryOrgDomain(ctx context.Context, orgID, domainName string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.Domains[domainName] {
		return nil, apperr.ThrowNotFound(nil, "ORG-054", "domain not found")
	}
	if org.PrimaryDomain == domainName {
		return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgDomainPrimarySetType, authz.GetCtxData(ctx).UserID,
			repository.OrgDomainPrimarySetPayload{Domain: domainName}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}

// RemoveOrgDomain releases the domain claim. The primary domain cannot be
// removed.
func (c *Commands) RemoveOrgDomain(ctx context.Context, orgID, domainName string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	org := newOrgWriteModel(authz.GetInstance(ctx), orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.Domains[domainName] {
		return nil, apperr.ThrowNotFound(nil, "ORG-055", "domain not found")
	}
	if org.PrimaryDomain == domainName {
		return nil, apperr.ThrowPreconditionFailed(nil, "ORG-056", "primary domain cannot be removed")
	}
	err := c.pushAppendAndReduce(ctx, org,
		eventstore.NewCommand(org.aggregate(), repository.OrgDomainRemovedType, authz.GetCtxData(ctx).UserID,
			repository.OrgDomainRemovedPayload{Domain: domainName},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueOrgDomain, domainName)))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&org.WriteModel), nil
}
