package query

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const PATProjectionName = "personal_access_tokens"

type patProjection struct{}

func (*patProjection) Name() string { return PATProjectionName }

func (*patProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.UserPATAddedType,
		repository.UserPATRemovedType,
		repository.UserRemovedType,
	}
}

func (*patProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS personal_access_tokens (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			resource_owner TEXT NOT NULL,
			expiration     INTEGER NOT NULL,
			scopes         TEXT NOT NULL DEFAULT '[]',
			digest         TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_pats_digest
			ON personal_access_tokens (instance_id, digest)`)
	return err
}

func (*patProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.UserPATAddedType:
		var payload repository.UserPATAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		scopes, err := json.Marshal(payload.Scopes)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO personal_access_tokens (
				instance_id, id, user_id, resource_owner, expiration, scopes, digest, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, payload.TokenID, event.Aggregate.ID,
			event.Aggregate.ResourceOwner, payload.Expiration.UnixNano(),
			string(scopes), payload.Digest, event.CreatedAt.UnixNano())
		return err

	case repository.UserPATRemovedType:
		var payload repository.UserPATRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM personal_access_tokens WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, payload.TokenID)
		return err

	case repository.UserRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM personal_access_tokens WHERE instance_id = ? AND user_id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}
