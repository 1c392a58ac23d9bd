package query

import (
	"context"
	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const (
	IDPTemplateProjectionName = "idp_templates"
	IDPUserLinkProjectionName = "idp_user_links"
	IDPIntentProjectionName   = "idp_intents"
)

type idpTemplateProjection struct{}

func (*idpTemplateProjection) Name() string { return IDPTemplateProjectionName }

func (*idpTemplateProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.IDPOIDCAddedType, repository.IDPOIDCChangedType,
		repository.IDPOAuthAddedType, repository.IDPOAuthChangedType,
		repository.IDPJWTAddedType, repository.IDPJWTChangedType,
		repository.IDPSAMLAddedType, repository.IDPSAMLChangedType,
		repository.IDPLDAPAddedType, repository.IDPLDAPChangedType,
		repository.IDPAppleAddedType, repository.IDPAppleChangedType,
		repository.IDPRemovedType,
	}
}

func (*idpTemplateProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idp_templates (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			resource_owner TEXT NOT NULL,
			name           TEXT NOT NULL,
			idp_type       INTEGER NOT NULL,
			state          INTEGER NOT NULL,
			config         TEXT NOT NULL,
			sequence       INTEGER NOT NULL,
			changed_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func idpTypeOfEvent(eventType eventstore.EventType) domain.IDPType {
	switch eventType {
	case repository.IDPOIDCAddedType, repository.IDPOIDCChangedType:
		return domain.IDPTypeOIDC
	case repository.IDPOAuthAddedType, repository.IDPOAuthChangedType:
		return domain.IDPTypeOAuth
	case repository.IDPJWTAddedType, repository.IDPJWTChangedType:
		return domain.IDPTypeJWT
	case repository.IDPSAMLAddedType, repository.IDPSAMLChangedType:
		return domain.IDPTypeSAML
	case repository.IDPLDAPAddedType, repository.IDPLDAPChangedType:
		return domain.IDPTypeLDAP
	case repository.IDPAppleAddedType, repository.IDPAppleChangedType:
		return domain.IDPTypeApple
	}
	return domain.IDPTypeUnspecified
}

func (*idpTemplateProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	if event.Type == repository.IDPRemovedType {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM idp_templates WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}

	// All config payloads share the name field; the rest stays opaque and
	// is decoded by the lookup into the matching provider config.
	var named struct {
		Name string `json:"name"`
	}
	if err := event.UnmarshalPayload(&named); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO idp_templates (
			instance_id, id, resource_owner, name, idp_type, state, config, sequence, changed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, id) DO UPDATE SET
			name = excluded.name,
			config = excluded.config,
			sequence = excluded.sequence,
			changed_at = excluded.changed_at`,
		event.Aggregate.InstanceID, event.Aggregate.ID, event.Aggregate.ResourceOwner,
		named.Name, idpTypeOfEvent(event.Type), domain.IDPStateActive,
		string(event.Payload), event.Sequence, event.CreatedAt.UnixNano())
	return err
}

type idpUserLinkProjection struct{}

func (*idpUserLinkProjection) Name() string { return IDPUserLinkProjectionName }

func (*idpUserLinkProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.UserIDPLinkAddedType,
		repository.UserIDPLinkRemovedType,
		repository.UserIDPLinkCascadeRemovedType,
		repository.UserIDPExternalIDMigratedType,
		repository.UserRemovedType,
		repository.IDPRemovedType,
	}
}

func (*idpUserLinkProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idp_user_links (
			instance_id      TEXT NOT NULL,
			idp_id           TEXT NOT NULL,
			external_user_id TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			resource_owner   TEXT NOT NULL,
			display_name     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (instance_id, idp_id, external_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_idp_user_links_user
			ON idp_user_links (instance_id, user_id)`)
	return err
}

func (*idpUserLinkProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	instanceID := event.Aggregate.InstanceID
	switch event.Type {
	case repository.UserIDPLinkAddedType:
		var payload repository.UserIDPLinkPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO idp_user_links (instance_id, idp_id, external_user_id, user_id, resource_owner, display_name)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, idp_id, external_user_id) DO UPDATE SET
				user_id = excluded.user_id,
				display_name = excluded.display_name`,
			instanceID, payload.IDPConfigID, payload.ExternalUserID,
			event.Aggregate.ID, event.Aggregate.ResourceOwner, payload.DisplayName)
		return err

	case repository.UserIDPLinkRemovedType, repository.UserIDPLinkCascadeRemovedType:
		var payload repository.UserIDPLinkPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM idp_user_links
			WHERE instance_id = ? AND idp_id = ? AND external_user_id = ?`,
			instanceID, payload.IDPConfigID, payload.ExternalUserID)
		return err

	case repository.UserIDPExternalIDMigratedType:
		var payload repository.UserIDPExternalIDMigratedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE idp_user_links SET external_user_id = ?
			WHERE instance_id = ? AND idp_id = ? AND external_user_id = ?`,
			payload.NewID, instanceID, payload.IDPConfigID, payload.PreviousID)
		return err

	case repository.UserRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM idp_user_links WHERE instance_id = ? AND user_id = ?`,
			instanceID, event.Aggregate.ID)
		return err

	case repository.IDPRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM idp_user_links WHERE instance_id = ? AND idp_id = ?`,
			instanceID, event.Aggregate.ID)
		return err
	}
	return nil
}

type idpIntentProjection struct{}

func (*idpIntentProjection) Name() string { return IDPIntentProjectionName }

func (*idpIntentProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.IDPIntentStartedType,
		repository.IDPIntentSucceededType,
		repository.IDPIntentFailedType,
	}
}

func (*idpIntentProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idp_intents (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			resource_owner TEXT NOT NULL,
			idp_id         TEXT NOT NULL,
			state          INTEGER NOT NULL,
			state_token    TEXT NOT NULL,
			success_url    TEXT NOT NULL,
			failure_url    TEXT NOT NULL,
			nonce          TEXT NOT NULL DEFAULT '',
			code_verifier  TEXT NOT NULL DEFAULT '',
			expires_at     INTEGER NOT NULL,
			external_user_id TEXT NOT NULL DEFAULT '',
			user_id        TEXT NOT NULL DEFAULT '',
			sequence       INTEGER NOT NULL,
			changed_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_idp_intents_state_token
			ON idp_intents (instance_id, state_token)`)
	return err
}

func (*idpIntentProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.IDPIntentStartedType:
		var payload repository.IDPIntentStartedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		verifier, err := eventstore.MarshalPayload(payload.CodeVerifier)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO idp_intents (
				instance_id, id, resource_owner, idp_id, state, state_token,
				success_url, failure_url, nonce, code_verifier, expires_at,
				sequence, changed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, event.Aggregate.ResourceOwner,
			payload.IDPID, domain.IDPIntentStateStarted, payload.State,
			payload.SuccessURL, payload.FailureURL, payload.Nonce, string(verifier),
			payload.ExpiresAt.UnixNano(), event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.IDPIntentSucceededType:
		var payload repository.IDPIntentSucceededPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE idp_intents SET state = ?, external_user_id = ?, user_id = ?, sequence = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			domain.IDPIntentStateSucceeded, payload.ExternalUserID, payload.UserID,
			event.Sequence, event.CreatedAt.UnixNano(),
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err

	case repository.IDPIntentFailedType:
		_, err := tx.ExecContext(ctx, `
			UPDATE idp_intents SET state = ?, sequence = ?, changed_at = ?
			WHERE instance_id = ? AND id = ?`,
			domain.IDPIntentStateFailed, event.Sequence, event.CreatedAt.UnixNano(),
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}
