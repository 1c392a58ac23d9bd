package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/projection"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// Policy projection table names, one per policy kind. Each table holds the
// instance default (is_default = 1, owner_id = instance id) and org
// overrides (is_default = 0, owner_id = org id); lookups let the override
// shadow the default.
const (
	LoginPolicyProjectionName              = "login_policies"
	PasswordComplexityPolicyProjectionName = "password_complexity_policies"
	PasswordAgePolicyProjectionName        = "password_age_policies"
	LockoutPolicyProjectionName            = "lockout_policies"
	DomainPolicyProjectionName             = "domain_policies"
	PrivacyPolicyProjectionName            = "privacy_policies"
	LabelPolicyProjectionName              = "label_policies"
	SecurityPolicyProjectionName           = "security_policies"
)

// policyProjection is generic over the policy kinds: the payload is
// stored as-is, typed decoding happens in the lookup.
type policyProjection struct {
	name          string
	table         string
	instanceAdded eventstore.EventType
	instanceChanged eventstore.EventType
	orgAdded      eventstore.EventType
	orgChanged    eventstore.EventType
	orgRemoved    eventstore.EventType
	// extra event types reduced by reduceExtra (login factor events).
	extra       []eventstore.EventType
	reduceExtra func(ctx context.Context, tx *sql.Tx, table string, event *eventstore.Event) (bool, error)
}

func policyProjections() []projection.Handler {
	return []projection.Handler{
		&policyProjection{
			name:            LoginPolicyProjectionName,
			table:           LoginPolicyProjectionName,
			instanceAdded:   repository.InstanceLoginPolicyAddedType,
			instanceChanged: repository.InstanceLoginPolicyChangedType,
			orgAdded:        repository.OrgLoginPolicyAddedType,
			orgChanged:      repository.OrgLoginPolicyChangedType,
			orgRemoved:      repository.OrgLoginPolicyRemovedType,
			extra: []eventstore.EventType{
				repository.InstanceLoginPolicySecondFactorAddedType,
				repository.InstanceLoginPolicySecondFactorRemovedType,
				repository.InstanceLoginPolicyMultiFactorAddedType,
				repository.InstanceLoginPolicyMultiFactorRemovedType,
				repository.OrgLoginPolicySecondFactorAddedType,
				repository.OrgLoginPolicySecondFactorRemovedType,
				repository.OrgLoginPolicyMultiFactorAddedType,
				repository.OrgLoginPolicyMultiFactorRemovedType,
			},
			reduceExtra: reduceLoginFactor,
		},
		&policyProjection{
			name:            PasswordComplexityPolicyProjectionName,
			table:           PasswordComplexityPolicyProjectionName,
			instanceAdded:   repository.InstancePasswordComplexityPolicyAddedType,
			instanceChanged: repository.InstancePasswordComplexityPolicyChangedType,
			orgAdded:        repository.OrgPasswordComplexityPolicyAddedType,
			orgChanged:      repository.OrgPasswordComplexityPolicyChangedType,
			orgRemoved:      repository.OrgPasswordComplexityPolicyRemovedType,
		},
		&policyProjection{
			name:            PasswordAgePolicyProjectionName,
			table:           PasswordAgePolicyProjectionName,
			instanceAdded:   repository.InstancePasswordAgePolicyAddedType,
			instanceChanged: repository.InstancePasswordAgePolicyChangedType,
			orgAdded:        repository.OrgPasswordAgePolicyAddedType,
			orgChanged:      repository.OrgPasswordAgePolicyChangedType,
			orgRemoved:      repository.OrgPasswordAgePolicyRemovedType,
		},
		&policyProjection{
			name:            LockoutPolicyProjectionName,
			table:           LockoutPolicyProjectionName,
			instanceAdded:   repository.InstanceLockoutPolicyAddedType,
			instanceChanged: repository.InstanceLockoutPolicyChangedType,
			orgAdded:        repository.OrgLockoutPolicyAddedType,
			orgChanged:      repository.OrgLockoutPolicyChangedType,
			orgRemoved:      repository.OrgLockoutPolicyRemovedType,
		},
		&policyProjection{
			name:            DomainPolicyProjectionName,
			table:           DomainPolicyProjectionName,
			instanceAdded:   repository.InstanceDomainPolicyAddedType,
			instanceChanged: repository.InstanceDomainPolicyChangedType,
			orgAdded:        repository.OrgDomainPolicyAddedType,
			orgChanged:      repository.OrgDomainPolicyChangedType,
			orgRemoved:      repository.OrgDomainPolicyRemovedType,
		},
		&policyProjection{
			name:            PrivacyPolicyProjectionName,
			table:           PrivacyPolicyProjectionName,
			instanceAdded:   repository.InstancePrivacyPolicyAddedType,
			instanceChanged: repository.InstancePrivacyPolicyChangedType,
			orgAdded:        repository.OrgPrivacyPolicyAddedType,
			orgChanged:      repository.OrgPrivacyPolicyChangedType,
			orgRemoved:      repository.OrgPrivacyPolicyRemovedType,
		},
		&policyProjection{
			name:            LabelPolicyProjectionName,
			table:           LabelPolicyProjectionName,
			instanceAdded:   repository.InstanceLabelPolicyAddedType,
			instanceChanged: repository.InstanceLabelPolicyChangedType,
			orgAdded:        repository.OrgLabelPolicyAddedType,
			orgChanged:      repository.OrgLabelPolicyChangedType,
			orgRemoved:      repository.OrgLabelPolicyRemovedType,
		},
		&policyProjection{
			name:            SecurityPolicyProjectionName,
			table:           SecurityPolicyProjectionName,
			instanceAdded:   repository.InstanceSecurityPolicyAddedType,
			instanceChanged: repository.InstanceSecurityPolicyChangedType,
			orgAdded:        repository.OrgSecurityPolicyAddedType,
			orgChanged:      repository.OrgSecurityPolicyChangedType,
			orgRemoved:      repository.OrgSecurityPolicyRemovedType,
		},
	}
}

func (p *policyProjection) Name() string { return p.name }

func (p *policyProjection) EventTypes() []eventstore.EventType {
	types := []eventstore.EventType{
		p.instanceAdded, p.instanceChanged, p.orgAdded, p.orgChanged, p.orgRemoved,
	}
	return append(types, p.extra...)
}

func (p *policyProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			instance_id TEXT NOT NULL,
			owner_id    TEXT NOT NULL,
			is_default  INTEGER NOT NULL,
			policy      TEXT NOT NULL,
			sequence    INTEGER NOT NULL,
			changed_at  INTEGER NOT NULL,
			PRIMARY KEY (instance_id, owner_id)
		)`, p.table))
	return err
}

func (p *policyProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	if p.reduceExtra != nil {
		handled, err := p.reduceExtra(ctx, tx, p.table, event)
		if handled || err != nil {
			return err
		}
	}

	switch event.Type {
	case p.instanceAdded, p.instanceChanged:
		return upsertPolicy(ctx, tx, p.table, event, event.Aggregate.InstanceID, true)
	case p.orgAdded, p.orgChanged:
		return upsertPolicy(ctx, tx, p.table, event, event.Aggregate.ID, false)
	case p.orgRemoved:
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE instance_id = ? AND owner_id = ? AND is_default = 0`, p.table),
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}

func upsertPolicy(ctx context.Context, tx *sql.Tx, table string, event *eventstore.Event, ownerID string, isDefault bool) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (instance_id, owner_id, is_default, policy, sequence, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, owner_id) DO UPDATE SET
			policy = excluded.policy,
			sequence = excluded.sequence,
			changed_at = excluded.changed_at`, table),
		event.Aggregate.InstanceID, ownerID, isDefault, string(event.Payload),
		event.Sequence, event.CreatedAt.UnixNano())
	return err
}
