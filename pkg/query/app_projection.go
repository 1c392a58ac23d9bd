package query

import (
	"context"
	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const AppProjectionName = "apps"

type appProjection struct{}

func (*appProjection) Name() string { return AppProjectionName }

func (*appProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.ApplicationAddedType,
		repository.ApplicationChangedType,
		repository.ApplicationDeactivatedType,
		repository.ApplicationReactivatedType,
		repository.ApplicationRemovedType,
		repository.ApplicationOIDCConfigAddedType,
		repository.ApplicationOIDCConfigChangedType,
		repository.ApplicationAPIConfigAddedType,
		repository.ApplicationAPIConfigChangedType,
		repository.ApplicationSecretChangedType,
	}
}

func (*appProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS apps (
			instance_id        TEXT NOT NULL,
			id                 TEXT NOT NULL,
			project_id         TEXT NOT NULL,
			resource_owner     TEXT NOT NULL,
			name               TEXT NOT NULL,
			state              INTEGER NOT NULL,
			app_type           INTEGER NOT NULL DEFAULT 0,
			client_id          TEXT NOT NULL DEFAULT '',
			client_secret_hash TEXT NOT NULL DEFAULT '',
			config             TEXT NOT NULL DEFAULT '',
			sequence           INTEGER NOT NULL,
			changed_at         INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_apps_client_id
			ON apps (instance_id, client_id)`)
	return err
}

func (*appProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.ApplicationAddedType:
		var payload repository.ApplicationAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO apps (instance_id, id, project_id, resource_owner, name, state, sequence, changed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, payload.ProjectID,
			event.Aggregate.ResourceOwner, payload.Name, domain.AppStateActive,
			event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.ApplicationChangedType:
		var payload repository.ApplicationChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateApp(ctx, tx, event, `name = ?`, payload.Name)

	case repository.ApplicationDeactivatedType:
		return updateApp(ctx, tx, event, `state = ?`, domain.AppStateInactive)
	case repository.ApplicationReactivatedType:
		return updateApp(ctx, tx, event, `state = ?`, domain.AppStateActive)

	case repository.ApplicationRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM apps WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err

	case repository.ApplicationOIDCConfigAddedType, repository.ApplicationOIDCConfigChangedType:
		var payload repository.ApplicationOIDCConfigPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateApp(ctx, tx, event,
			`app_type = ?, client_id = ?, client_secret_hash = ?, config = ?`,
			domain.AppTypeOIDC, payload.ClientID, payload.ClientSecretHash, string(event.Payload))

	case repository.ApplicationAPIConfigAddedType, repository.ApplicationAPIConfigChangedType:
		var payload repository.ApplicationAPIConfigPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateApp(ctx, tx, event,
			`app_type = ?, client_id = ?, client_secret_hash = ?, config = ?`,
			domain.AppTypeAPI, payload.ClientID, payload.ClientSecretHash, string(event.Payload))

	case repository.ApplicationSecretChangedType:
		var payload repository.ApplicationSecretChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateApp(ctx, tx, event, `client_secret_hash = ?`, payload.ClientSecretHash)
	}
	return nil
}

func updateApp(ctx context.Context, tx *sql.Tx, event *eventstore.Event, set string, args ...any) error {
	args = append(args, event.Sequence, event.CreatedAt.UnixNano(),
		event.Aggregate.InstanceID, event.Aggregate.ID)
	_, err := tx.ExecContext(ctx,
		`UPDATE apps SET `+set+`, sequence = ?, changed_at = ? WHERE instance_id = ? AND id = ?`,
		args...)
	return err
}
