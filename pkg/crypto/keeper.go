package crypto

import (
	"context"

	"gocloud.dev/secrets"
	// Keeper backends are opt-in; applications import the driver they use:
	// _ "gocloud.dev/secrets/awskms"
	// _ "gocloud.dev/secrets/gcpkms"
	// _ "gocloud.dev/secrets/hashivault"
	// _ "gocloud.dev/secrets/localsecrets"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// Keeper encrypts and decrypts secret material through a gocloud.dev
// secrets backend ("base64key://..." locally, KMS URLs in production).
type Keeper struct {
	keeper *secrets.Keeper
	keyID  string
}

// NewKeeper opens the keeper behind url. keyID tags produced Values so a
// later keeper generation can recognise its own ciphertexts.
func NewKeeper(ctx context.Context, url, keyID string) (*Keeper, error) {
	if url == "" {
		return nil, apperr.ThrowInvalidArgument(nil, "KEY-001", "keeper url missing")
	}
	keeper, err := secrets.OpenKeeper(ctx, url)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-002", "open secrets keeper")
	}
	return &Keeper{keeper: keeper, keyID: keyID}, nil
}

// Encrypt wraps plaintext into a Value.
func (k *Keeper) Encrypt(ctx context.Context, plaintext []byte) (*Value, error) {
	ciphertext, err := k.keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-003", "encrypt secret")
	}
	return &Value{KeyID: k.keyID, Crypted: ciphertext}, nil
}

// EncryptString wraps a string secret.
func (k *Keeper) EncryptString(ctx context.Context, plaintext string) (*Value, error) {
	return k.Encrypt(ctx, []byte(plaintext))
}

// Decrypt unwraps a Value.
func (k *Keeper) Decrypt(ctx context.Context, value *Value) ([]byte, error) {
	if value.IsZero() {
		return nil, apperr.ThrowInvalidArgument(nil, "KEY-004", "nothing to decrypt")
	}
	plaintext, err := k.keeper.Decrypt(ctx, value.Crypted)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-005", "decrypt secret")
	}
	return plaintext, nil
}

// DecryptString unwraps a string secret.
func (k *Keeper) DecryptString(ctx context.Context, value *Value) (string, error) {
	plaintext, err := k.Decrypt(ctx, value)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Close releases the backend.
func (k *Keeper) Close() error {
	return k.keeper.Close()
}
