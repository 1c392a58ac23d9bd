package query

import (
	"context"
	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const SAMLRequestProjectionName = "saml_requests"

type samlRequestProjection struct{}

func (*samlRequestProjection) Name() string { return SAMLRequestProjectionName }

func (*samlRequestProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.SAMLRequestAddedType,
		repository.SAMLRequestSessionLinkedType,
		repository.SAMLRequestSucceededType,
		repository.SAMLRequestFailedType,
	}
}

func (*samlRequestProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS saml_requests (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			resource_owner TEXT NOT NULL,
			state          INTEGER NOT NULL,
			login_client   TEXT NOT NULL,
			issuer         TEXT NOT NULL,
			acs_url        TEXT NOT NULL,
			relay_state    TEXT NOT NULL DEFAULT '',
			binding        INTEGER NOT NULL,
			session_id     TEXT NOT NULL DEFAULT '',
			sequence       INTEGER NOT NULL,
			changed_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (*samlRequestProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.SAMLRequestAddedType:
		var payload repository.SAMLRequestAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO saml_requests (
				instance_id, id, resource_owner, state, login_client, issuer,
				acs_url, relay_state, binding, sequence, changed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, event.Aggregate.ResourceOwner,
			domain.SAMLRequestStateAdded, payload.LoginClient, payload.Issuer,
			payload.ACSURL, payload.RelayState, payload.Binding,
			event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.SAMLRequestSessionLinkedType:
		var payload repository.SAMLRequestSessionLinkedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateSAMLRequest(ctx, tx, event, `session_id = ?`, payload.SessionID)

	case repository.SAMLRequestSucceededType:
		return updateSAMLRequest(ctx, tx, event, `state = ?`, domain.SAMLRequestStateSucceeded)

	case repository.SAMLRequestFailedType:
		return updateSAMLRequest(ctx, tx, event, `state = ?`, domain.SAMLRequestStateFailed)
	}
	return nil
}

func updateSAMLRequest(ctx context.Context, tx *sql.Tx, event *eventstore.Event, set string, args ...any) error {
	args = append(args, event.Sequence, event.CreatedAt.UnixNano(),
		event.Aggregate.InstanceID, event.Aggregate.ID)
	_, err := tx.ExecContext(ctx,
		`UPDATE saml_requests SET `+set+`, sequence = ?, changed_at = ? WHERE instance_id = ? AND id = ?`,
		args...)
	return err
}
