package query

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const (
	ExecutionProjectionName = "executions"
	TargetProjectionName    = "targets"
)

type executionProjection struct{}

func (*executionProjection) Name() string { return ExecutionProjectionName }

func (*executionProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.ExecutionSetType,
		repository.ExecutionRemovedType,
	}
}

func (*executionProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS executions (
			instance_id    TEXT NOT NULL,
			id             TEXT NOT NULL,
			execution_type TEXT NOT NULL,
			condition      TEXT NOT NULL,
			targets        TEXT NOT NULL,
			sequence       INTEGER NOT NULL,
			changed_at     INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (*executionProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.ExecutionSetType:
		var payload repository.ExecutionSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		targets, err := json.Marshal(payload.Targets)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO executions (instance_id, id, execution_type, condition, targets, sequence, changed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO UPDATE SET
				targets = excluded.targets,
				sequence = excluded.sequence,
				changed_at = excluded.changed_at`,
			event.Aggregate.InstanceID, event.Aggregate.ID, payload.ExecutionType,
			payload.Condition, string(targets), event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.ExecutionRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM executions WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}

type targetProjection struct{}

func (*targetProjection) Name() string { return TargetProjectionName }

func (*targetProjection) EventTypes() []eventstore.EventType {
	return []eventstore.EventType{
		repository.TargetAddedType,
		repository.TargetChangedType,
		repository.TargetRemovedType,
	}
}

func (*targetProjection) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS targets (
			instance_id        TEXT NOT NULL,
			id                 TEXT NOT NULL,
			name               TEXT NOT NULL,
			target_type        INTEGER NOT NULL,
			endpoint           TEXT NOT NULL,
			timeout            INTEGER NOT NULL,
			interrupt_on_error INTEGER NOT NULL DEFAULT 0,
			signing_key        TEXT NOT NULL DEFAULT '',
			sequence           INTEGER NOT NULL,
			changed_at         INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (*targetProjection) Reduce(ctx context.Context, tx *sql.Tx, event *eventstore.Event) error {
	switch event.Type {
	case repository.TargetAddedType:
		var payload repository.TargetAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		signingKey, err := eventstore.MarshalPayload(payload.SigningKey)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO targets (
				instance_id, id, name, target_type, endpoint, timeout,
				interrupt_on_error, signing_key, sequence, changed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`,
			event.Aggregate.InstanceID, event.Aggregate.ID, payload.Name,
			payload.TargetType, payload.Endpoint, int64(payload.Timeout),
			payload.InterruptOnError, string(signingKey),
			event.Sequence, event.CreatedAt.UnixNano())
		return err

	case repository.TargetChangedType:
		var payload repository.TargetChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		set := ""
		var args []any
		appendSet := func(col string, value any) {
			if set != "" {
				set += ", "
			}
			set += col + " = ?"
			args = append(args, value)
		}
		if payload.Name != nil {
			appendSet("name", *payload.Name)
		}
		if payload.TargetType != nil {
			appendSet("target_type", *payload.TargetType)
		}
		if payload.Endpoint != nil {
			appendSet("endpoint", *payload.Endpoint)
		}
		if payload.Timeout != nil {
			appendSet("timeout", int64(*payload.Timeout))
		}
		if payload.InterruptOnError != nil {
			appendSet("interrupt_on_error", *payload.InterruptOnError)
		}
		if payload.SigningKey != nil {
			signingKey, err := eventstore.MarshalPayload(payload.SigningKey)
			if err != nil {
				return err
			}
			appendSet("signing_key", string(signingKey))
		}
		if set == "" {
			return nil
		}
		args = append(args, event.Sequence, event.CreatedAt.UnixNano(),
			event.Aggregate.InstanceID, event.Aggregate.ID)
		_, err := tx.ExecContext(ctx,
			`UPDATE targets SET `+set+`, sequence = ?, changed_at = ? WHERE instance_id = ? AND id = ?`,
			args...)
		return err

	case repository.TargetRemovedType:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM targets WHERE instance_id = ? AND id = ?`,
			event.Aggregate.InstanceID, event.Aggregate.ID)
		return err
	}
	return nil
}
