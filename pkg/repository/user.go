package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const UserAggregate eventstore.AggregateType = "user"

const (
	UserHumanAddedType      eventstore.EventType = "user.human.added"
	UserMachineAddedType    eventstore.EventType = "user.machine.added"
	UserUsernameChangedType eventstore.EventType = "user.username.changed"
	UserProfileChangedType  eventstore.EventType = "user.profile.changed"

	UserEmailChangedType   eventstore.EventType = "user.email.changed"
	UserEmailCodeAddedType eventstore.EventType = "user.email.code.added"
	UserEmailVerifiedType  eventstore.EventType = "user.email.verified"

	UserPhoneChangedType   eventstore.EventType = "user.phone.changed"
	UserPhoneCodeAddedType eventstore.EventType = "user.phone.code.added"
	UserPhoneVerifiedType  eventstore.EventType = "user.phone.verified"
	UserPhoneRemovedType   eventstore.EventType = "user.phone.removed"

	UserPasswordChangedType      eventstore.EventType = "user.password.changed"
	UserPasswordCheckFailedType  eventstore.EventType = "user.password.check.failed"
	UserPasswordCheckSucceededType eventstore.EventType = "user.password.check.succeeded"

	UserDeactivatedType eventstore.EventType = "user.deactivated"
	UserReactivatedType eventstore.EventType = "user.reactivated"
	UserLockedType      eventstore.EventType = "user.locked"
	UserUnlockedType    eventstore.EventType = "user.unlocked"
	UserRemovedType     eventstore.EventType = "user.removed"

	UserPATAddedType   eventstore.EventType = "user.pat.added"
	UserPATRemovedType eventstore.EventType = "user.pat.removed"

	UserIDPCheckSucceededType eventstore.EventType = "user.idp.check.succeeded"

	UserIDPLinkAddedType          eventstore.EventType = "user.idp.link.added"
	UserIDPLinkRemovedType        eventstore.EventType = "user.idp.link.removed"
	UserIDPLinkCascadeRemovedType eventstore.EventType = "user.idp.link.cascade.removed"
	UserIDPExternalIDMigratedType eventstore.EventType = "user.idp.externalid.migrated"
)

// UniqueUsername claims usernames; the field is "<orgID>:<lowercase name>"
// so the claim is case-insensitive and org-scoped.
const UniqueUsername = "usernames"

type UserHumanAddedPayload struct {
	Username          string        `json:"username"`
	FirstName         string        `json:"firstName"`
	LastName          string        `json:"lastName"`
	NickName          string        `json:"nickName,omitempty"`
	DisplayName       string        `json:"displayName,omitempty"`
	PreferredLanguage string        `json:"preferredLanguage,omitempty"`
	Gender            domain.Gender `json:"gender,omitempty"`
	Email             string        `json:"email"`
	EmailVerified     bool          `json:"emailVerified,omitempty"`
	Phone             string        `json:"phone,omitempty"`
	PhoneVerified     bool          `json:"phoneVerified,omitempty"`
	PasswordHash      string        `json:"passwordHash,omitempty"`
	ChangeRequired    bool          `json:"changeRequired,omitempty"`
}

type UserMachineAddedPayload struct {
	Username    string `json:"username"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UserUsernameChangedPayload struct {
	Username string `json:"username"`
	// OldUsername releases the previous claim on the query side.
	OldUsername string `json:"oldUsername"`
}

type UserProfileChangedPayload struct {
	FirstName         string        `json:"firstName"`
	LastName          string        `json:"lastName"`
	NickName          string        `json:"nickName,omitempty"`
	DisplayName       string        `json:"displayName,omitempty"`
	PreferredLanguage string        `json:"preferredLanguage,omitempty"`
	Gender            domain.Gender `json:"gender,omitempty"`
}

type UserEmailChangedPayload struct {
	Email string `json:"email"`
}

type UserEmailCodeAddedPayload struct {
	Code   *crypto.Value `json:"code"`
	Expiry time.Duration `json:"expiry"`
}

type UserPhoneChangedPayload struct {
	Phone string `json:"phone"`
}

type UserPhoneCodeAddedPayload struct {
	Code   *crypto.Value `json:"code"`
	Expiry time.Duration `json:"expiry"`
}

type UserPasswordChangedPayload struct {
	Hash           string `json:"hash"`
	ChangeRequired bool   `json:"changeRequired,omitempty"`
}

type UserRemovedPayload struct {
	Username string `json:"username"`
}

type UserPATAddedPayload struct {
	TokenID    string    `json:"tokenId"`
	Expiration time.Time `json:"expiration"`
	Scopes     []string  `json:"scopes,omitempty"`
	// Digest is the SHA-256 of the token; the plaintext is returned once
	// and never stored.
	Digest string `json:"digest"`
}

type UserPATRemovedPayload struct {
	TokenID string `json:"tokenId"`
}

type UserIDPLinkPayload struct {
	IDPConfigID    string `json:"idpConfigId"`
	ExternalUserID string `json:"externalUserId"`
	DisplayName    string `json:"displayName,omitempty"`
}

type UserIDPExternalIDMigratedPayload struct {
	IDPConfigID string `json:"idpConfigId"`
	PreviousID  string `json:"previousId"`
	NewID       string `json:"newId"`
}
