package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// reduceLoginFactor folds second/multi factor events into the stored login
// policy document. A factor event without a policy row is skipped; the
// write side guarantees the policy exists first.
func reduceLoginFactor(ctx context.Context, tx *sql.Tx, table string, event *eventstore.Event) (bool, error) {
	var (
		ownerID string
		mutate  func(*domain.LoginPolicy) error
	)

	switch event.Type {
	case repository.InstanceLoginPolicySecondFactorAddedType,
		repository.InstanceLoginPolicySecondFactorRemovedType,
		repository.InstanceLoginPolicyMultiFactorAddedType,
		repository.InstanceLoginPolicyMultiFactorRemovedType:
		ownerID = event.Aggregate.InstanceID
	case repository.OrgLoginPolicySecondFactorAddedType,
		repository.OrgLoginPolicySecondFactorRemovedType,
		repository.OrgLoginPolicyMultiFactorAddedType,
		repository.OrgLoginPolicyMultiFactorRemovedType:
		ownerID = event.Aggregate.ID
	default:
		return false, nil
	}

	switch event.Type {
	case repository.InstanceLoginPolicySecondFactorAddedType, repository.OrgLoginPolicySecondFactorAddedType:
		var payload repository.LoginPolicySecondFactorPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return true, err
		}
		mutate = func(p *domain.LoginPolicy) error {
			p.SecondFactors = appendFactor(p.SecondFactors, payload.FactorType)
			return nil
		}
	case repository.InstanceLoginPolicySecondFactorRemovedType, repository.OrgLoginPolicySecondFactorRemovedType:
		var payload repository.LoginPolicySecondFactorPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return true, err
		}
		mutate = func(p *domain.LoginPolicy) error {
			p.SecondFactors = removeFactor(p.SecondFactors, payload.FactorType)
			return nil
		}
	case repository.InstanceLoginPolicyMultiFactorAddedType, repository.OrgLoginPolicyMultiFactorAddedType:
		var payload repository.LoginPolicyMultiFactorPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return true, err
		}
		mutate = func(p *domain.LoginPolicy) error {
			p.MultiFactors = appendFactor(p.MultiFactors, payload.FactorType)
			return nil
		}
	case repository.InstanceLoginPolicyMultiFactorRemovedType, repository.OrgLoginPolicyMultiFactorRemovedType:
		var payload repository.LoginPolicyMultiFactorPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return true, err
		}
		mutate = func(p *domain.LoginPolicy) error {
			p.MultiFactors = removeFactor(p.MultiFactors, payload.FactorType)
			return nil
		}
	}

	var raw string
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT policy FROM %s WHERE instance_id = ? AND owner_id = ?`, table),
		event.Aggregate.InstanceID, ownerID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return true, err
	}

	var policy domain.LoginPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return true, err
	}
	if err := mutate(&policy); err != nil {
		return true, err
	}
	updated, err := json.Marshal(policy)
	if err != nil {
		return true, err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET policy = ?, sequence = ?, changed_at = ? WHERE instance_id = ? AND owner_id = ?`, table),
		string(updated), event.Sequence, event.CreatedAt.UnixNano(),
		event.Aggregate.InstanceID, ownerID)
	return true, err
}

func appendFactor[T comparable](factors []T, factor T) []T {
	for _, existing := range factors {
		if existing == factor {
			return factors
		}
	}
	return append(factors, factor)
}

func removeFactor[T comparable](factors []T, factor T) []T {
	out := factors[:0]
	for _, existing := range factors {
		if existing != factor {
			out = append(out, existing)
		}
	}
	return out
}
