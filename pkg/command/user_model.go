package command

import (
	"context"
	"time"

	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

type verificationCode struct {
	Code      *crypto.Value
	IssuedAt  time.Time
	Expiry    time.Duration
}

func (v *verificationCode) expired(now time.Time) bool {
	return v.Expiry > 0 && now.After(v.IssuedAt.Add(v.Expiry))
}

type userWriteModel struct {
	eventstore.WriteModel

	State    domain.UserState
	Type     domain.UserType
	Username string

	FirstName   string
	LastName    string
	DisplayName string

	Email         string
	EmailVerified bool
	EmailCode     *verificationCode

	Phone         string
	PhoneVerified bool
	PhoneCode     *verificationCode

	PasswordHash        string
	FailedPasswordTries uint64

	// PATs by token id.
	PATs map[string]time.Time
	// IDPLinks by "<idpID>:<externalUserID>".
	IDPLinks map[string]repository.UserIDPLinkPayload
}

func newUserWriteModel(instanceID, orgID, userID string) *userWriteModel {
	return &userWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   userID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
		PATs:     map[string]time.Time{},
		IDPLinks: map[string]repository.UserIDPLinkPayload{},
	}
}

func (wm *userWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.UserAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func linkKey(idpID, externalUserID string) string { return idpID + ":" + externalUserID }

func (wm *userWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.UserHumanAddedType:
			var payload repository.UserHumanAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.UserStateActive
			wm.Type = domain.UserTypeHuman
			wm.Username = payload.Username
			wm.FirstName = payload.FirstName
			wm.LastName = payload.LastName
			wm.DisplayName = payload.DisplayName
			wm.Email = payload.Email
			wm.EmailVerified = payload.EmailVerified
			wm.Phone = payload.Phone
			wm.PhoneVerified = payload.PhoneVerified
			wm.PasswordHash = payload.PasswordHash

		case repository.UserMachineAddedType:
			var payload repository.UserMachineAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.UserStateActive
			wm.Type = domain.UserTypeMachine
			wm.Username = payload.Username
			wm.DisplayName = payload.Name

		case repository.UserUsernameChangedType:
			var payload repository.UserUsernameChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username

		case repository.UserProfileChangedType:
			var payload repository.UserProfileChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.FirstName = payload.FirstName
			wm.LastName = payload.LastName
			wm.DisplayName = payload.DisplayName

		case repository.UserEmailChangedType:
			var payload repository.UserEmailChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Email = payload.Email
			wm.EmailVerified = false
			wm.EmailCode = nil

		case repository.UserEmailCodeAddedType:
			var payload repository.UserEmailCodeAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.EmailCode = &verificationCode{Code: payload.Code, IssuedAt: event.CreatedAt, Expiry: payload.Expiry}

		case repository.UserEmailVerifiedType:
			wm.EmailVerified = true
			wm.EmailCode = nil

		case repository.UserPhoneChangedType:
			var payload repository.UserPhoneChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Phone = payload.Phone
			wm.PhoneVerified = false
			wm.PhoneCode = nil

		case repository.UserPhoneCodeAddedType:
			var payload repository.UserPhoneCodeAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PhoneCode = &verificationCode{Code: payload.Code, IssuedAt: event.CreatedAt, Expiry: payload.Expiry}

		case repository.UserPhoneVerifiedType:
			wm.PhoneVerified = true
			wm.PhoneCode = nil

		case repository.UserPhoneRemovedType:
			wm.Phone = ""
			wm.PhoneVerified = false
			wm.PhoneCode = nil

		case repository.UserPasswordChangedType:
			var payload repository.UserPasswordChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PasswordHash = payload.Hash
			wm.FailedPasswordTries = 0

		case repository.UserPasswordCheckFailedType:
			wm.FailedPasswordTries++
		case repository.UserPasswordCheckSucceededType,
			repository.UserIDPCheckSucceededType:
			wm.FailedPasswordTries = 0

		case repository.UserDeactivatedType:
			wm.State = domain.UserStateInactive
		case repository.UserReactivatedType:
			wm.State = domain.UserStateActive
		case repository.UserLockedType:
			wm.State = domain.UserStateLocked
		case repository.UserUnlockedType:
			wm.State = domain.UserStateActive
		case repository.UserRemovedType:
			wm.State = domain.UserStateDeleted

		case repository.UserPATAddedType:
			var payload repository.UserPATAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PATs[payload.TokenID] = payload.Expiration

		case repository.UserPATRemovedType:
			var payload repository.UserPATRemovedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.PATs, payload.TokenID)

		case repository.UserIDPLinkAddedType:
			var payload repository.UserIDPLinkPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.IDPLinks[linkKey(payload.IDPConfigID, payload.ExternalUserID)] = payload

		case repository.UserIDPLinkRemovedType, repository.UserIDPLinkCascadeRemovedType:
			var payload repository.UserIDPLinkPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.IDPLinks, linkKey(payload.IDPConfigID, payload.ExternalUserID))

		case repository.UserIDPExternalIDMigratedType:
			var payload repository.UserIDPExternalIDMigratedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			link, ok := wm.IDPLinks[linkKey(payload.IDPConfigID, payload.PreviousID)]
			if ok {
				delete(wm.IDPLinks, linkKey(payload.IDPConfigID, payload.PreviousID))
				link.ExternalUserID = payload.NewID
				wm.IDPLinks[linkKey(payload.IDPConfigID, payload.NewID)] = link
			}
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *userWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.UserAggregate)
}
