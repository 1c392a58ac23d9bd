package query

import (
	"context"
	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const UserProjectionName = "users"

type userProjection struct{}

func (*userProjection) Name() string { return UserProjectionName }

func (*userProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.UserHumanAddedType,
		repository.UserMachineAddedType,
		repository.UserUsernameChangedType,
		repository.UserProfileChangedType,
		repository.UserEmailChangedType,
		repository.UserEmailVerifiedType,
		repository.UserPhoneChangedType,
		repository.UserPhoneVerifiedType,
		repository.UserPhoneRemovedType,
		repository.UserPasswordChangedType,
		repository.UserDeactivatedType,
		repository.UserReactivatedType,
		repository.UserLockedType,
		repository.UserUnlockedType,
		repository.UserRemovedType,
	}
}

func (*userProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			instance_id        TEXT NOT NULL,
			id                 TEXT NOT NULL,
			resource_owner     TEXT NOT NULL,
			username           TEXT NOT NULL,
			user_type          INTEGER NOT NULL,
			state              INTEGER NOT NULL,
			first_name         TEXT NOT NULL DEFAULT '',
			last_name          TEXT NOT NULL DEFAULT '',
			display_name       TEXT NOT NULL DEFAULT '',
			preferred_language TEXT NOT NULL DEFAULT '',
			gender             INTEGER NOT NULL DEFAULT 0,
			email              TEXT NOT NULL DEFAULT '',
			email_verified     INTEGER NOT NULL DEFAULT 0,
			phone              TEXT NOT NULL DEFAULT '',
			phone_verified     INTEGER NOT NULL DEFAULT 0,
			password_hash      TEXT NOT NULL DEFAULT '',
			machine_name       TEXT NOT NULL DEFAULT '',
			description        TEXT NOT NULL DEFAULT '',
			sequence           INTEGER NOT NULL,
			changed_at         INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_users_username
			ON users (instance_id, resource_owner, username)`)
	return err
}

func (*userProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.UserHumanAddedType:
		var payload repository.UserHumanAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		displayName := payload.DisplayName
		if displayName == "" {
			displayName = payload.FirstName + " " + payload.LastName
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (
				instance_id, id, resource_owner, username, user_type, state,
				first_name, last_name, display_name, preferred_language, gender,
				email, email_verified, phone, phone_verified, password_hash,
				sequence, changed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, event.Aggregate.ResourceOwner,
			payload.Username, domain.UserTypeHuman, domain.UserStateActive,
			payload.FirstName, payload.LastName, displayName, payload.PreferredLanguage, payload.Gender,
			payload.Email, payload.EmailVerified, payload.Phone, payload.PhoneVerified, payload.PasswordHash,
			event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.UserMachineAddedType:
		var payload repository.UserMachineAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (
				instance_id, id, resource_owner, username, user_type, state,
				machine_name, description, sequence, changed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, event.Aggregate.ResourceOwner,
			payload.Username, domain.UserTypeMachine, domain.UserStateActive,
			payload.Name, payload.Description, event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.UserUsernameChangedType:
		var payload repository.UserUsernameChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateUser(ctx, tx, event, `username = ?`, payload.Username)

	case repository.UserProfileChangedType:
		var payload repository.UserProfileChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		displayName := payload.DisplayName
		if displayName == "" {
			displayName = payload.FirstName + " " + payload.LastName
		}
		return updateUser(ctx, tx, event,
			`first_name = ?, last_name = ?, display_name = ?, preferred_language = ?, gender = ?`,
			payload.FirstName, payload.LastName, displayName, payload.PreferredLanguage, payload.Gender)

	case repository.UserEmailChangedType:
		var payload repository.UserEmailChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateUser(ctx, tx, event, `email = ?, email_verified = 0`, payload.Email)

	case repository.UserEmailVerifiedType:
		return updateUser(ctx, tx, event, `email_verified = 1`)

	case repository.UserPhoneChangedType:
		var payload repository.UserPhoneChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateUser(ctx, tx, event, `phone = ?, phone_verified = 0`, payload.Phone)

	case repository.UserPhoneVerifiedType:
		return updateUser(ctx, tx, event, `phone_verified = 1`)

	case repository.UserPhoneRemovedType:
		return updateUser(ctx, tx, event, `phone = '', phone_verified = 0`)

	case repository.UserPasswordChangedType:
		var payload repository.UserPasswordChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateUser(ctx, tx, event, `password_hash = ?`, payload.Hash)

	case repository.UserDeactivatedType:
		return updateUser(ctx, tx, event, `state = ?`, domain.UserStateInactive)
	case repository.UserReactivatedType, repository.UserUnlockedType:
		return updateUser(ctx, tx, event, `state = ?`, domain.UserStateActive)
	case repository.UserLockedType:
		return updateUser(ctx, tx, event, `state = ?`, domain.UserStateLocked)

	case repository.UserRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM users WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}

func updateUser(ctx context.Context, tx *sql.Tx, event *eventstore.Event, set string, args ...any) error {
	args = append(args, event.Sequence, event.CreatedAt.UnixNano(),
		event.Aggregate.InstanceID, event.Aggregate.ID)
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET `+set+`, sequence = ?, changed_at = ? WHERE instance_id = ? AND id = ?`,
		args...)
	return err
}
