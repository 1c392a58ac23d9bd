package command

import (
	"context"
	"slices"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// addOrgPolicy creates an org override for one policy kind.
func (c *Commands) addOrgPolicy(ctx context.Context, orgID string, events policyEvents, payload any) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, orgID); err != nil {
		return nil, err
	}
	instanceID := authz.GetInstance(ctx)
	org := newOrgWriteModel(instanceID, orgID)
	if err := org.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "POLICY-001", "org does not exist")
	}
	policy := newPolicyWriteModel(instanceID, orgID, repository.OrgAggregate, events)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if policy.Exists {
		return nil, apperr.ThrowAlreadyExists(nil, "POLICY-002", "policy already exists")
	}
	err := c.pushAppendAndReduce(ctx, policy,
		eventstore.NewCommand(policy.aggregate(), events.added, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

func (c *Commands) changeOrgPolicy(ctx context.Context, orgID string, events policyEvents, payload any) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, orgID); err != nil {
		return nil, err
	}
	policy := newPolicyWriteModel(authz.GetInstance(ctx), orgID, repository.OrgAggregate, events)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !policy.Exists {
		return nil, apperr.ThrowNotFound(nil, "POLICY-003", "policy not found")
	}
	err := c.pushAppendAndReduce(ctx, policy,
		eventstore.NewCommand(policy.aggregate(), events.changed, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

// removeOrgPolicy drops the override; reads fall back to the instance
// default afterwards.
func (c *Commands) removeOrgPolicy(ctx context.Context, orgID string, events policyEvents) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, orgID); err != nil {
		return nil, err
	}
	policy := newPolicyWriteModel(authz.GetInstance(ctx), orgID, repository.OrgAggregate, events)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !policy.Exists {
		return nil, apperr.ThrowNotFound(nil, "POLICY-004", "policy not found")
	}
	err := c.pushAppendAndReduce(ctx, policy,
		eventstore.NewCommand(policy.aggregate(), events.removed, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

// addDefaultPolicy creates the instance default.
func (c *Commands) addDefaultPolicy(ctx context.Context, events policyEvents, payload any) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, instanceID); err != nil {
		return nil, err
	}
	policy := newPolicyWriteModel(instanceID, instanceID, repository.InstanceAggregate, events)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if policy.Exists {
		return nil, apperr.ThrowAlreadyExists(nil, "POLICY-005", "default policy already exists")
	}
	err := c.pushAppendAndReduce(ctx, policy,
		eventstore.NewCommand(policy.aggregate(), events.added, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

// changeDefaultPolicy refuses when no default exists: callers must override
// at the org level instead.
func (c *Commands) changeDefaultPolicy(ctx context.Context, events policyEvents, payload any) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, instanceID); err != nil {
		return nil, err
	}
	policy := newPolicyWriteModel(instanceID, instanceID, repository.InstanceAggregate, events)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !policy.Exists {
		return nil, apperr.ThrowPreconditionFailed(nil, "POLICY-006", "no default policy to change")
	}
	err := c.pushAppendAndReduce(ctx, policy,
		eventstore.NewCommand(policy.aggregate(), events.changed, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

// Login policy.

func (c *Commands) AddOrgLoginPolicy(ctx context.Context, orgID string, policy *domain.LoginPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgLoginPolicy, repository.LoginPolicyPayload{LoginPolicy: *policy})
}

func (c *Commands) ChangeOrgLoginPolicy(ctx context.Context, orgID string, policy *domain.LoginPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgLoginPolicy, repository.LoginPolicyPayload{LoginPolicy: *policy})
}

func (c *Commands) RemoveOrgLoginPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgLoginPolicy)
}

func (c *Commands) AddDefaultLoginPolicy(ctx context.Context, policy *domain.LoginPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instanceLoginPolicy, repository.LoginPolicyPayload{LoginPolicy: *policy})
}

func (c *Commands) ChangeDefaultLoginPolicy(ctx context.Context, policy *domain.LoginPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instanceLoginPolicy, repository.LoginPolicyPayload{LoginPolicy: *policy})
}

// Login factors. Adds are idempotent-checked against the folded set; each
// change is its own event.

func (c *Commands) addLoginFactor(ctx context.Context, ownerID string, aggregateType eventstore.AggregateType, events policyEvents, factors loginFactorEvents, apply func(*loginPolicyWriteModel) (*eventstore.Command, error)) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionPolicyWrite, ownerID); err != nil {
		return nil, err
	}
	policy := newLoginPolicyWriteModel(authz.GetInstance(ctx), ownerID, aggregateType, events, factors)
	if err := policy.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !policy.Exists {
		return nil, apperr.ThrowPreconditionFailed(nil, "POLICY-010", "login policy not found")
	}
	command, err := apply(policy)
	if err != nil {
		return nil, err
	}
	command.Creator = authz.GetCtxData(ctx).UserID
	if err := c.pushAppendAndReduce(ctx, policy, command); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&policy.WriteModel), nil
}

func (c *Commands) AddSecondFactorToOrgLoginPolicy(ctx context.Context, orgID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	return c.addLoginFactor(ctx, orgID, repository.OrgAggregate, orgLoginPolicy, orgLoginFactors,
		secondFactorAdd(factor, orgLoginFactors))
}

func (c *Commands) RemoveSecondFactorFromOrgLoginPolicy(ctx context.Context, orgID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	return c.addLoginFactor(ctx, orgID, repository.OrgAggregate, orgLoginPolicy, orgLoginFactors,
		secondFactorRemove(factor, orgLoginFactors))
}

func (c *Commands) AddMultiFactorToOrgLoginPolicy(ctx context.Context, orgID string, factor domain.MultiFactorType) (*domain.ObjectDetails, error) {
	return c.addLoginFactor(ctx, orgID, repository.OrgAggregate, orgLoginPolicy, orgLoginFactors,
		multiFactorAdd(factor, orgLoginFactors))
}

func (c *Commands) RemoveMultiFactorFromOrgLoginPolicy(ctx context.Context, orgID string, factor domain.MultiFactorType) (*domain.ObjectDetails, error) {
	return c.addLoginFactor(ctx, orgID, repository.OrgAggregate, orgLoginPolicy, orgLoginFactors,
		multiFactorRemove(factor, orgLoginFactors))
}

func (c *Commands) AddSecondFactorToDefaultLoginPolicy(ctx context.Context, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	return c.addLoginFactor(ctx, instanceID, repository.InstanceAggregate, instanceLoginPolicy, instanceLoginFactors,
		secondFactorAdd(factor, instanceLoginFactors))
}

func (c *Commands) RemoveSecondFactorFromDefaultLoginPolicy(ctx context.Context, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	return c.addLoginFactor(ctx, instanceID, repository.InstanceAggregate, instanceLoginPolicy, instanceLoginFactors,
		secondFactorRemove(factor, instanceLoginFactors))
}

func (c *Commands) AddMultiFactorToDefaultLoginPolicy(ctx context.Context, factor domain.MultiFactorType) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	return c.addLoginFactor(ctx, instanceID, repository.InstanceAggregate, instanceLoginPolicy, instanceLoginFactors,
		multiFactorAdd(factor, instanceLoginFactors))
}

func (c *Commands) RemoveMultiFactorFromDefaultLoginPolicy(ctx context.Context, factor domain.MultiFactorType) (*domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	return c.addLoginFactor(ctx, instanceID, repository.InstanceAggregate, instanceLoginPolicy, instanceLoginFactors,
		multiFactorRemove(factor, instanceLoginFactors))
}

func secondFactorAdd(factor domain.SecondFactorType, events loginFactorEvents) func(*loginPolicyWriteModel) (*eventstore.Command, error) {
	return func(wm *loginPolicyWriteModel) (*eventstore.Command, error) {
		if factor == domain.SecondFactorTypeUnspecified {
			return nil, apperr.ThrowInvalidArgument(nil, "POLICY-011", "invalid factor")
		}
		if slices.Contains(wm.SecondFactors, factor) {
			return nil, apperr.ThrowAlreadyExists(nil, "POLICY-012", "factor already enabled")
		}
		return eventstore.NewCommand(wm.aggregate(), events.secondAdded, "",
			repository.LoginPolicySecondFactorPayload{FactorType: factor}), nil
	}
}

func secondFactorRemove(factor domain.SecondFactorType, events loginFactorEvents) func(*loginPolicyWriteModel) (*eventstore.Command, error) {
	return func(wm *loginPolicyWriteModel) (*eventstore.Command, error) {
		if !slices.Contains(wm.SecondFactors, factor) {
			return nil, apperr.ThrowNotFound(nil, "POLICY-013", "factor not enabled")
		}
		return eventstore.NewCommand(wm.aggregate(), events.secondRemoved, "",
			repository.LoginPolicySecondFactorPayload{FactorType: factor}), nil
	}
}

func multiFactorAdd(factor domain.MultiFactorType, events loginFactorEvents) func(*loginPolicyWriteModel) (*eventstore.Command, error) {
	return func(wm *loginPolicyWriteModel) (*eventstore.Command, error) {
		if factor == domain.MultiFactorTypeUnspecified {
			return nil, apperr.ThrowInvalidArgument(nil, "POLICY-014", "invalid factor")
		}
		if slices.Contains(wm.MultiFactors, factor) {
			return nil, apperr.ThrowAlreadyExists(nil, "POLICY-015", "factor already enabled")
		}
		return eventstore.NewCommand(wm.aggregate(), events.multiAdded, "",
			repository.LoginPolicyMultiFactorPayload{FactorType: factor}), nil
	}
}

func multiFactorRemove(factor domain.MultiFactorType, events loginFactorEvents) func(*loginPolicyWriteModel) (*eventstore.Command, error) {
	return func(wm *loginPolicyWriteModel) (*eventstore.Command, error) {
		if !slices.Contains(wm.MultiFactors, factor) {
			return nil, apperr.ThrowNotFound(nil, "POLICY-016", "factor not enabled")
		}
		return eventstore.NewCommand(wm.aggregate(), events.multiRemoved, "",
			repository.LoginPolicyMultiFactorPayload{FactorType: factor}), nil
	}
}

// Password complexity policy.

func (c *Commands) AddOrgPasswordComplexityPolicy(ctx context.Context, orgID string, policy *domain.PasswordComplexityPolicy) (*domain.ObjectDetails, error) {
	if err := validatePasswordComplexity(policy); err != nil {
		return nil, err
	}
	return c.addOrgPolicy(ctx, orgID, orgPasswordComplexityPolicy, repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: *policy})
}

func (c *Commands) ChangeOrgPasswordComplexityPolicy(ctx context.Context, orgID string, policy *domain.PasswordComplexityPolicy) (*domain.ObjectDetails, error) {
	if err := validatePasswordComplexity(policy); err != nil {
		return nil, err
	}
	return c.changeOrgPolicy(ctx, orgID, orgPasswordComplexityPolicy, repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: *policy})
}

func (c *Commands) RemoveOrgPasswordComplexityPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgPasswordComplexityPolicy)
}

func (c *Commands) AddDefaultPasswordComplexityPolicy(ctx context.Context, policy *domain.PasswordComplexityPolicy) (*domain.ObjectDetails, error) {
	if err := validatePasswordComplexity(policy); err != nil {
		return nil, err
	}
	return c.addDefaultPolicy(ctx, instancePasswordComplexityPolicy, repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: *policy})
}

func (c *Commands) ChangeDefaultPasswordComplexityPolicy(ctx context.Context, policy *domain.PasswordComplexityPolicy) (*domain.ObjectDetails, error) {
	if err := validatePasswordComplexity(policy); err != nil {
		return nil, err
	}
	return c.changeDefaultPolicy(ctx, instancePasswordComplexityPolicy, repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: *policy})
}

func validatePasswordComplexity(policy *domain.PasswordComplexityPolicy) error {
	if policy.MinLength == 0 {
		return apperr.ThrowInvalidArgument(nil, "POLICY-020", "min length must be set")
	}
	return nil
}

// Password age policy.

func (c *Commands) AddOrgPasswordAgePolicy(ctx context.Context, orgID string, policy *domain.PasswordAgePolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgPasswordAgePolicy, repository.PasswordAgePolicyPayload{PasswordAgePolicy: *policy})
}

func (c *Commands) ChangeOrgPasswordAgePolicy(ctx context.Context, orgID string, policy *domain.PasswordAgePolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgPasswordAgePolicy, repository.PasswordAgePolicyPayload{PasswordAgePolicy: *policy})
}

func (c *Commands) RemoveOrgPasswordAgePolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgPasswordAgePolicy)
}

func (c *Commands) AddDefaultPasswordAgePolicy(ctx context.Context, policy *domain.PasswordAgePolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instancePasswordAgePolicy, repository.PasswordAgePolicyPayload{PasswordAgePolicy: *policy})
}

func (c *Commands) ChangeDefaultPasswordAgePolicy(ctx context.Context, policy *domain.PasswordAgePolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instancePasswordAgePolicy, repository.PasswordAgePolicyPayload{PasswordAgePolicy: *policy})
}

// Lockout policy.

func (c *Commands) AddOrgLockoutPolicy(ctx context.Context, orgID string, policy *domain.LockoutPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgLockoutPolicy, repository.LockoutPolicyPayload{LockoutPolicy: *policy})
}

func (c *Commands) ChangeOrgLockoutPolicy(ctx context.Context, orgID string, policy *domain.LockoutPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgLockoutPolicy, repository.LockoutPolicyPayload{LockoutPolicy: *policy})
}

func (c *Commands) RemoveOrgLockoutPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgLockoutPolicy)
}

func (c *Commands) AddDefaultLockoutPolicy(ctx context.Context, policy *domain.LockoutPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instanceLockoutPolicy, repository.LockoutPolicyPayload{LockoutPolicy: *policy})
}

func (c *Commands) ChangeDefaultLockoutPolicy(ctx context.Context, policy *domain.LockoutPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instanceLockoutPolicy, repository.LockoutPolicyPayload{LockoutPolicy: *policy})
}

// Domain policy.

func (c *Commands) AddOrgDomainPolicy(ctx context.Context, orgID string, policy *domain.DomainPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgDomainPolicy, repository.DomainPolicyPayload{DomainPolicy: *policy})
}

func (c *Commands) ChangeOrgDomainPolicy(ctx context.Context, orgID string, policy *domain.DomainPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgDomainPolicy, repository.DomainPolicyPayload{DomainPolicy: *policy})
}

func (c *Commands) RemoveOrgDomainPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgDomainPolicy)
}

func (c *Commands) AddDefaultDomainPolicy(ctx context.Context, policy *domain.DomainPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instanceDomainPolicy, repository.DomainPolicyPayload{DomainPolicy: *policy})
}

func (c *Commands) ChangeDefaultDomainPolicy(ctx context.Context, policy *domain.DomainPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instanceDomainPolicy, repository.DomainPolicyPayload{DomainPolicy: *policy})
}

// Privacy policy.

func (c *Commands) AddOrgPrivacyPolicy(ctx context.Context, orgID string, policy *domain.PrivacyPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgPrivacyPolicy, repository.PrivacyPolicyPayload{PrivacyPolicy: *policy})
}

func (c *Commands) ChangeOrgPrivacyPolicy(ctx context.Context, orgID string, policy *domain.PrivacyPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgPrivacyPolicy, repository.PrivacyPolicyPayload{PrivacyPolicy: *policy})
}

func (c *Commands) RemoveOrgPrivacyPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgPrivacyPolicy)
}

func (c *Commands) AddDefaultPrivacyPolicy(ctx context.Context, policy *domain.PrivacyPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instancePrivacyPolicy, repository.PrivacyPolicyPayload{PrivacyPolicy: *policy})
}

func (c *Commands) ChangeDefaultPrivacyPolicy(ctx context.Context, policy *domain.PrivacyPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instancePrivacyPolicy, repository.PrivacyPolicyPayload{PrivacyPolicy: *policy})
}

// Security policy.

func (c *Commands) AddOrgSecurityPolicy(ctx context.Context, orgID string, policy *domain.SecurityPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgSecurityPolicy, repository.SecurityPolicyPayload{SecurityPolicy: *policy})
}

func (c *Commands) ChangeOrgSecurityPolicy(ctx context.Context, orgID string, policy *domain.SecurityPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgSecurityPolicy, repository.SecurityPolicyPayload{SecurityPolicy: *policy})
}

func (c *Commands) RemoveOrgSecurityPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgSecurityPolicy)
}

func (c *Commands) AddDefaultSecurityPolicy(ctx context.Context, policy *domain.SecurityPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instanceSecurityPolicy, repository.SecurityPolicyPayload{SecurityPolicy: *policy})
}

func (c *Commands) ChangeDefaultSecurityPolicy(ctx context.Context, policy *domain.SecurityPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instanceSecurityPolicy, repository.SecurityPolicyPayload{SecurityPolicy: *policy})
}

// Label policy.

func (c *Commands) AddOrgLabelPolicy(ctx context.Context, orgID string, policy *domain.LabelPolicy) (*domain.ObjectDetails, error) {
	return c.addOrgPolicy(ctx, orgID, orgLabelPolicy, repository.LabelPolicyPayload{LabelPolicy: *policy})
}

func (c *Commands) ChangeOrgLabelPolicy(ctx context.Context, orgID string, policy *domain.LabelPolicy) (*domain.ObjectDetails, error) {
	return c.changeOrgPolicy(ctx, orgID, orgLabelPolicy, repository.LabelPolicyPayload{LabelPolicy: *policy})
}

func (c *Commands) RemoveOrgLabelPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.removeOrgPolicy(ctx, orgID, orgLabelPolicy)
}

func (c *Commands) AddDefaultLabelPolicy(ctx context.Context, policy *domain.LabelPolicy) (*domain.ObjectDetails, error) {
	return c.addDefaultPolicy(ctx, instanceLabelPolicy, repository.LabelPolicyPayload{LabelPolicy: *policy})
}

func (c *Commands) ChangeDefaultLabelPolicy(ctx context.Context, policy *domain.LabelPolicy) (*domain.ObjectDetails, error) {
	return c.changeDefaultPolicy(ctx, instanceLabelPolicy, repository.LabelPolicyPayload{LabelPolicy: *policy})
}
