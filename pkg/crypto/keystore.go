package crypto

import (
	"context"
	"database/sql"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/idgen"
)

// Key is a stored encryption key. The material is opaque, assumed already
// wrapped by the caller's KMS.
type Key struct {
	ID         string
	InstanceID string
	Identifier string
	Algorithm  string
	Material   []byte
	CreatedAt  time.Time
}

// KeyStore persists encryption keys in a dedicated table, deliberately not
// event-sourced: key material must never enter the log.
type KeyStore struct {
	db *sql.DB
}

// NewKeyStore creates the table when missing and returns the store.
func NewKeyStore(db *sql.DB) (*KeyStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS encryption_keys (
			id          TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			identifier  TEXT NOT NULL,
			algorithm   TEXT NOT NULL,
			material    BLOB NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (instance_id, id),
			UNIQUE (instance_id, identifier)
		)`)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-010", "create encryption_keys table")
	}
	return &KeyStore{db: db}, nil
}

// Add stores a key. The identifier must be unique within the instance.
func (s *KeyStore) Add(ctx context.Context, instanceID, identifier, algorithm string, material []byte) (*Key, error) {
	if identifier == "" {
		return nil, apperr.ThrowInvalidArgument(nil, "KEY-011", "key identifier missing")
	}
	if len(material) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "KEY-012", "key material missing")
	}
	key := &Key{
		ID:         idgen.MustGenerateSortableID(),
		InstanceID: instanceID,
		Identifier: identifier,
		Algorithm:  algorithm,
		Material:   material,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO encryption_keys (id, instance_id, identifier, algorithm, material, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, key.InstanceID, key.Identifier, key.Algorithm, key.Material, key.CreatedAt.UnixNano())
	if err != nil {
		return nil, apperr.ThrowAlreadyExists(err, "KEY-013", "key identifier already in use")
	}
	return key, nil
}

// Get returns a key by id or identifier, whichever matches.
func (s *KeyStore) Get(ctx context.Context, instanceID, idOrIdentifier string) (*Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, identifier, algorithm, material, created_at
		FROM encryption_keys
		WHERE instance_id = ? AND (id = ? OR identifier = ?)`,
		instanceID, idOrIdentifier, idOrIdentifier)
	return scanKey(row)
}

// List returns the instance's keys, optionally filtered by algorithm.
func (s *KeyStore) List(ctx context.Context, instanceID, algorithm string) ([]*Key, error) {
	stmt := `SELECT id, instance_id, identifier, algorithm, material, created_at
		FROM encryption_keys WHERE instance_id = ?`
	args := []any{instanceID}
	if algorithm != "" {
		stmt += ` AND algorithm = ?`
		args = append(args, algorithm)
	}
	stmt += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-015", "list encryption keys")
	}
	defer rows.Close()

	var keys []*Key
	for rows.Next() {
		key, err := scanKeyRows(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *KeyStore) Remove(ctx context.Context, instanceID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM encryption_keys WHERE instance_id = ? AND id = ?`,
		instanceID, id)
	if err != nil {
		return apperr.ThrowInternal(err, "KEY-016", "remove encryption key")
	}
	return nil
}

func scanKey(row *sql.Row) (*Key, error) {
	key := new(Key)
	var createdAt int64
	err := row.Scan(&key.ID, &key.InstanceID, &key.Identifier, &key.Algorithm, &key.Material, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(err, "KEY-014", "encryption key not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-017", "read encryption key")
	}
	key.CreatedAt = time.Unix(0, createdAt).UTC()
	return key, nil
}

func scanKeyRows(rows *sql.Rows) (*Key, error) {
	key := new(Key)
	var createdAt int64
	err := rows.Scan(&key.ID, &key.InstanceID, &key.Identifier, &key.Algorithm, &key.Material, &createdAt)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-018", "scan encryption key")
	}
	key.CreatedAt = time.Unix(0, createdAt).UTC()
	return key, nil
}
