package repository

import (
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

// Policy events exist twice: on the instance aggregate as defaults and on
// the org aggregate as overrides. The payload schemas are shared.
const (
	InstanceLoginPolicyAddedType   eventstore.EventType = "instance.policy.login.added"
	InstanceLoginPolicyChangedType eventstore.EventType = "instance.policy.login.changed"
	OrgLoginPolicyAddedType        eventstore.EventType = "org.policy.login.added"
	OrgLoginPolicyChangedType      eventstore.EventType = "org.policy.login.changed"
	OrgLoginPolicyRemovedType      eventstore.EventType = "org.policy.login.removed"

	InstanceLoginPolicySecondFactorAddedType   eventstore.EventType = "instance.policy.login.secondfactor.added"
	InstanceLoginPolicySecondFactorRemovedType eventstore.EventType = "instance.policy.login.secondfactor.removed"
	OrgLoginPolicySecondFactorAddedType        eventstore.EventType = "org.policy.login.secondfactor.added"
	OrgLoginPolicySecondFactorRemovedType      eventstore.EventType = "org.policy.login.secondfactor.removed"

	InstanceLoginPolicyMultiFactorAddedType   eventstore.EventType = "instance.policy.login.multifactor.added"
	InstanceLoginPolicyMultiFactorRemovedType eventstore.EventType = "instance.policy.login.multifactor.removed"
	OrgLoginPolicyMultiFactorAddedType        eventstore.EventType = "org.policy.login.multifactor.added"
	OrgLoginPolicyMultiFactorRemovedType      eventstore.EventType = "org.policy.login.multifactor.removed"

	InstancePasswordComplexityPolicyAddedType   eventstore.EventType = "instance.policy.password.complexity.added"
	InstancePasswordComplexityPolicyChangedType eventstore.EventType = "instance.policy.password.complexity.changed"
	OrgPasswordComplexityPolicyAddedType        eventstore.EventType = "org.policy.password.complexity.added"
	OrgPasswordComplexityPolicyChangedType      eventstore.EventType = "org.policy.password.complexity.changed"
	OrgPasswordComplexityPolicyRemovedType      eventstore.EventType = "org.policy.password.complexity.removed"

	InstancePasswordAgePolicyAddedType   eventstore.EventType = "instance.policy.password.age.added"
	InstancePasswordAgePolicyChangedType eventstore.EventType = "instance.policy.password.age.changed"
	OrgPasswordAgePolicyAddedType        eventstore.EventType = "org.policy.password.age.added"
	OrgPasswordAgePolicyChangedType      eventstore.EventType = "org.policy.password.age.changed"
	OrgPasswordAgePolicyRemovedType      eventstore.EventType = "org.policy.password.age.removed"

	InstanceLockoutPolicyAddedType   eventstore.EventType = "instance.policy.lockout.added"
	InstanceLockoutPolicyChangedType eventstore.EventType = "instance.policy.lockout.changed"
	OrgLockoutPolicyAddedType        eventstore.EventType = "org.policy.lockout.added"
	OrgLockoutPolicyChangedType      eventstore.EventType = "org.policy.lockout.changed"
	OrgLockoutPolicyRemovedType      eventstore.EventType = "org.policy.lockout.removed"

	InstanceDomainPolicyAddedType   eventstore.EventType = "instance.policy.domain.added"
	InstanceDomainPolicyChangedType eventstore.EventType = "instance.policy.domain.changed"
	OrgDomainPolicyAddedType        eventstore.EventType = "org.policy.domain.added"
	OrgDomainPolicyChangedType      eventstore.EventType = "org.policy.domain.changed"
	OrgDomainPolicyRemovedType      eventstore.EventType = "org.policy.domain.removed"

	InstancePrivacyPolicyAddedType   eventstore.EventType = "instance.policy.privacy.added"
	InstancePrivacyPolicyChangedType eventstore.EventType = "instance.policy.privacy.changed"
	OrgPrivacyPolicyAddedType        eventstore.EventType = "org.policy.privacy.added"
	OrgPrivacyPolicyChangedType      eventstore.EventType = "org.policy.privacy.changed"
	OrgPrivacyPolicyRemovedType      eventstore.EventType = "org.policy.privacy.removed"

	InstanceSecurityPolicyAddedType   eventstore.EventType = "instance.policy.security.added"
	InstanceSecurityPolicyChangedType eventstore.EventType = "instance.policy.security.changed"
	OrgSecurityPolicyAddedType        eventstore.EventType = "org.policy.security.added"
	OrgSecurityPolicyChangedType      eventstore.EventType = "org.policy.security.changed"
	OrgSecurityPolicyRemovedType      eventstore.EventType = "org.policy.security.removed"

	InstanceLabelPolicyAddedType   eventstore.EventType = "instance.policy.label.added"
	InstanceLabelPolicyChangedType eventstore.EventType = "instance.policy.label.changed"
	OrgLabelPolicyAddedType        eventstore.EventType = "org.policy.label.added"
	OrgLabelPolicyChangedType      eventstore.EventType = "org.policy.label.changed"
	OrgLabelPolicyRemovedType      eventstore.EventType = "org.policy.label.removed"
)

type LoginPolicyPayload struct {
	domain.LoginPolicy
}

type LoginPolicySecondFactorPayload struct {
	FactorType domain.SecondFactorType `json:"factorType"`
}

type LoginPolicyMultiFactorPayload struct {
	FactorType domain.MultiFactorType `json:"factorType"`
}

type PasswordComplexityPolicyPayload struct {
	domain.PasswordComplexityPolicy
}

type PasswordAgePolicyPayload struct {
	domain.PasswordAgePolicy
}

type LockoutPolicyPayload struct {
	domain.LockoutPolicy
}

type DomainPolicyPayload struct {
	domain.DomainPolicy
}

type PrivacyPolicyPayload struct {
	domain.PrivacyPolicy
}

type SecurityPolicyPayload struct {
	domain.SecurityPolicy
}

type LabelPolicyPayload struct {
	domain.LabelPolicy
}
