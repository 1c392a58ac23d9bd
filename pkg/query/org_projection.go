package query

import (
	"context"
	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const OrgProjectionName = "orgs"

type orgProjection struct{}

func (*orgProjection) Name() string { return OrgProjectionName }

func (*orgProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.OrgAddedType,
		repository.OrgChangedType,
		repository.OrgDeactivatedType,
		repository.OrgReactivatedType,
		repository.OrgRemovedType,
		repository.OrgDomainAddedType,
		repository.OrgDomainPrimarySetType,
		repository.OrgDomainRemovedType,
	}
}

func (*orgProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orgs (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			name           TEXT NOT NULL,
			primary_domain TEXT NOT NULL DEFAULT '',
			state          INTEGER NOT NULL,
			sequence       INTEGER NOT NULL,
			changed_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		);
		CREATE TABLE IF NOT EXISTS org_domains (
			instance_id TEXT NOT NULL,
			org_id      TEXT NOT NULL,
			domain      TEXT NOT NULL,
			is_primary  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (instance_id, org_id, domain)
		)`)
	return err
}

func (*orgProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	instanceID, orgID := event.Aggregate.InstanceID, event.Aggregate.ID
	switch event.Type {
	case repository.OrgAddedType:
		var payload repository.OrgAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orgs (instance_id, id, name, state, sequence, changed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			instanceID, orgID, payload.Name, domain.OrgStateActive,
			event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.OrgChangedType:
		var payload repository.OrgChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return updateOrg(ctx, tx, event, `name = ?`, payload.Name)

	case repository.OrgDeactivatedType:
		return updateOrg(ctx, tx, event, `state = ?`, domain.OrgStateInactive)
	case repository.OrgReactivatedType:
		return updateOrg(ctx, tx, event, `state = ?`, domain.OrgStateActive)

	case repository.OrgRemovedType:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM org_domains WHERE instance_id = ? AND org_id = ?`,
			instanceID, orgID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM orgs WHERE instance_id = ? AND id = ?`, instanceID, orgID)
		return err

	case repository.OrgDomainAddedType:
		var payload repository.OrgDomainAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO org_domains (instance_id, org_id, domain)
			VALUES (?, ?, ?)
			ON CONFLICT (instance_id, org_id, domain) DO NOTHING`,
			instanceID, orgID, payload.Domain)
		return err

	case repository.OrgDomainPrimarySetType:
		var payload repository.OrgDomainPrimarySetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE org_domains SET is_primary = (domain = ?) WHERE instance_id = ? AND org_id = ?`,
			payload.Domain, instanceID, orgID); err != nil {
			return err
		}
		return updateOrg(ctx, tx, event, `primary_domain = ?`, payload.Domain)

	case repository.OrgDomainRemovedType:
		var payload repository.OrgDomainRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM org_domains WHERE instance_id = ? AND org_id = ? AND domain = ?`,
			instanceID, orgID, payload.Domain)
		return err
	}
	return nil
}

func updateOrg(ctx context.Context, tx *sql.Tx, event *eventstore.Event, set string, args ...any) error {
	args = append(args, event.Sequence, event.CreatedAt.UnixNano(),
		event.Aggregate.InstanceID, event.Aggregate.ID)
	_, err := tx.ExecContext(ctx,
		`UPDATE orgs SET `+set+`, sequence = ?, changed_at = ? WHERE instance_id = ? AND id = ?`,
		args...)
	return err
}
