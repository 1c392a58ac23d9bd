package command

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// SetUpInstance is the bootstrap input: the instance plus its first org.
type SetUpInstance struct {
	InstanceID      string
	Name            string
	DefaultLanguage string
	FirstOrgName    string
	// BaseDomain is the suffix of the generated primary instance domain
	// ("<name>.<baseDomain>").
	BaseDomain string
}

// SetUpInstanceResult carries the generated identifiers.
type SetUpInstanceResult struct {
	InstanceID      string
	DefaultOrgID    string
	GeneratedDomain string
	Details         *domain.ObjectDetails
}

// SetUpInstance creates an instance with its default org and a generated
// primary domain in a single push.
func (c *Commands) SetUpInstance(ctx context.Context, setup *SetUpInstance) (*SetUpInstanceResult, error) {
	if err := validators.Required(setup.Name, "name", "INST-001"); err != nil {
		return nil, err
	}
	if setup.FirstOrgName == "" {
		setup.FirstOrgName = setup.Name
	}
	lang := setup.DefaultLanguage
	if lang == "" {
		lang = language.English.String()
	} else if _, err := language.Parse(lang); err != nil {
		return nil, apperr.ThrowInvalidArgument(err, "INST-002", "invalid default language")
	}

	instanceID := setup.InstanceID
	if instanceID == "" {
		instanceID = c.nextID()
	}
	orgID := c.nextID()
	ctx = authz.NewSystemContext(ctx, instanceID)

	generated := generatedInstanceDomain(setup.Name, instanceID, setup.BaseDomain)

	instance := newInstanceWriteModel(instanceID)
	instanceAgg := instance.aggregate()
	org := newOrgWriteModel(instanceID, orgID)
	orgAgg := org.aggregate()

	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instanceAgg, repository.InstanceAddedType, authz.SystemUserID,
			repository.InstanceAddedPayload{Name: setup.Name, DefaultLanguage: lang}),
		eventstore.NewCommand(instanceAgg, repository.InstanceDomainAddedType, authz.SystemUserID,
			repository.InstanceDomainAddedPayload{Domain: generated, Generated: true, Primary: true},
			eventstore.NewAddUniqueConstraint(repository.UniqueInstanceDomain, generated, "INST-003")),
		eventstore.NewCommand(orgAgg, repository.OrgAddedType, authz.SystemUserID,
			repository.OrgAddedPayload{Name: setup.FirstOrgName},
			eventstore.NewAddUniqueConstraint(repository.UniqueOrgName, orgNameClaim(setup.FirstOrgName), "ORG-001")),
		eventstore.NewCommand(instanceAgg, repository.InstanceDefaultOrgSetType, authz.SystemUserID,
			repository.InstanceDefaultOrgSetPayload{OrgID: orgID}),
	)
	if err != nil {
		return nil, err
	}
	return &SetUpInstanceResult{
		InstanceID:      instanceID,
		DefaultOrgID:    orgID,
		GeneratedDomain: generated,
		Details:         eventstore.WriteModelToObjectDetails(&instance.WriteModel),
	}, nil
}

// SetDefaultOrg points the instance at an existing, non-removed org.
func (c *Commands) SetDefaultOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	org := newOrgWriteModel(instanceID, orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "INST-010", "org does not exist")
	}

	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if instance.State != domain.InstanceStateActive {
		return nil, apperr.ThrowNotFound(nil, "INST-011", "instance does not exist")
	}
	if instance.DefaultOrgID == orgID {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceDefaultOrgSetType, authz.GetCtxData(ctx).UserID,
			repository.InstanceDefaultOrgSetPayload{OrgID: orgID}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// SetDefaultLanguage changes the instance default language.
func (c *Commands) SetDefaultLanguage(ctx context.Context, lang string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	if _, err := language.Parse(lang); err != nil {
		return nil, apperr.ThrowInvalidArgument(err, "INST-012", "invalid language")
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if instance.State != domain.InstanceStateActive {
		return nil, apperr.ThrowNotFound(nil, "INST-013", "instance does not exist")
	}
	if instance.DefaultLanguage == lang {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceDefaultLanguageSetType, authz.GetCtxData(ctx).UserID,
			repository.InstanceDefaultLanguageSetPayload{Language: lang}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// AddInstanceDomain registers a custom domain. The first domain of an
// instance becomes primary implicitly at setup; added ones do not.
func (c *Commands) AddInstanceDomain(ctx context.Context, domainName string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if err := validators.Domain(domainName, "INST-020"); err != nil {
		return nil, err
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if instance.State != domain.InstanceStateActive {
		return nil, apperr.ThrowNotFound(nil, "INST-021", "instance does not exist")
	}
	if _, ok := instance.Domains[domainName]; ok {
		return nil, apperr.ThrowAlreadyExists(nil, "INST-022", "domain already added")
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceDomainAddedType, authz.GetCtxData(ctx).UserID,
			repository.InstanceDomainAddedPayload{Domain: domainName},
			eventstore.NewAddUniqueConstraint(repository.UniqueInstanceDomain, domainName, "INST-023")))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// SetPrimaryInstanceDomain marks an already registered domain primary.
func (c *Commands) SetPrimaryInstanceDomain(ctx context.Context, domainName string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if _, ok := instance.Domains[domainName]; !ok {
		return nil, apperr.ThrowNotFound(nil, "INST-024", "domain not found")
	}
	if instance.PrimaryDomain == domainName {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceDomainPrimarySetType, authz.GetCtxData(ctx).UserID,
			repository.InstanceDomainPrimarySetPayload{Domain: domainName}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// RemoveInstanceDomain releases the domain claim. Generated domains cannot
// be removed.
func (c *Commands) RemoveInstanceDomain(ctx context.Context, domainName string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	registered, ok := instance.Domains[domainName]
	if !ok {
		return nil, apperr.ThrowNotFound(nil, "INST-025", "domain not found")
	}
	if registered.Generated {
		return nil, apperr.ThrowPreconditionFailed(nil, "INST-026", "generated domain cannot be removed")
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceDomainRemovedType, authz.GetCtxData(ctx).UserID,
			repository.InstanceDomainRemovedPayload{Domain: domainName},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueInstanceDomain, domainName)))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// AddTrustedDomain allows redirects to the domain without registering it.
func (c *Commands) AddTrustedDomain(ctx context.Context, domainName string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if err := validators.Domain(domainName, "INST-030"); err != nil {
		return nil, err
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if instance.TrustedDomains[domainName] {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceTrustedDomainAddedType, authz.GetCtxData(ctx).UserID,
			repository.InstanceTrustedDomainPayload{Domain: domainName}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// RemoveTrustedDomain is idempotent.
func (c *Commands) RemoveTrustedDomain(ctx context.Context, domainName string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !instance.TrustedDomains[domainName] {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceTrustedDomainRemovedType, authz.GetCtxData(ctx).UserID,
			repository.InstanceTrustedDomainPayload{Domain: domainName}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// SetInstanceFeature toggles a named feature flag.
func (c *Commands) SetInstanceFeature(ctx context.Context, key string, value bool) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	if err := validators.Required(key, "key", "INST-040"); err != nil {
		return nil, err
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if current, ok := instance.Features[key]; ok && current == value {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceFeatureSetType, authz.GetCtxData(ctx).UserID,
			repository.InstanceFeatureSetPayload{Key: key, Value: value}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// ResetInstanceFeature returns a flag to its built-in default.
func (c *Commands) ResetInstanceFeature(ctx context.Context, key string) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionInstanceWrite, instanceID); err != nil {
		return nil, err
	}
	instance := newInstanceWriteModel(instanceID)
	if err := instance.load(ctx, c.es); err != nil {
		return nil, err
	}
	if _, ok := instance.Features[key]; !ok {
		return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, instance,
		eventstore.NewCommand(instance.aggregate(), repository.InstanceFeatureResetType, authz.GetCtxData(ctx).UserID,
			repository.InstanceFeatureResetPayload{Key: key}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&instance.WriteModel), nil
}

// generatedInstanceDomain derives "<slug>-<id suffix>.<base>" so setup never
// collides across instances sharing a name.
func generatedInstanceDomain(name, instanceID, baseDomain string) string {
	if baseDomain == "" {
		baseDomain = "nordlys.localhost"
	}
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "instance"
	}
	suffix := instanceID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return slug + "-" + strings.ToLower(suffix) + "." + baseDomain
}
