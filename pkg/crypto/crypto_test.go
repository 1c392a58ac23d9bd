package crypto_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/secrets/localsecrets"
	_ "modernc.org/sqlite"

	"database/sql"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/crypto"
)

const localKeeperURL = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

func TestKeeperRoundTrip(t *testing.T) {
	ctx := context.Background()
	keeper, err := crypto.NewKeeper(ctx, localKeeperURL, "local-v1")
	require.NoError(t, err)
	defer keeper.Close()

	value, err := keeper.EncryptString(ctx, "client-secret")
	require.NoError(t, err)
	assert.Equal(t, "local-v1", value.KeyID)
	assert.NotContains(t, string(value.Crypted), "client-secret")

	plaintext, err := keeper.DecryptString(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, "client-secret", plaintext)
}

func TestKeeperEmptyValue(t *testing.T) {
	ctx := context.Background()
	keeper, err := crypto.NewKeeper(ctx, localKeeperURL, "local-v1")
	require.NoError(t, err)
	defer keeper.Close()

	_, err = keeper.Decrypt(ctx, &crypto.Value{})
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestHashToken(t *testing.T) {
	digest := crypto.HashToken("pat-secret")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, crypto.HashToken("pat-secret"))
	assert.NotEqual(t, digest, crypto.HashToken("other"))
}

func TestHMAC(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	payload := []byte(`{"event":"user.added"}`)

	sig := crypto.ComputeHMACSHA256(key, payload)
	assert.True(t, crypto.VerifyHMACSHA256(key, payload, sig))
	assert.False(t, crypto.VerifyHMACSHA256(key, []byte("tampered"), sig))
	assert.False(t, crypto.VerifyHMACSHA256(key, payload, "not-hex"))
}

func TestNewSigningKey(t *testing.T) {
	a, err := crypto.NewSigningKey()
	require.NoError(t, err)
	b, err := crypto.NewSigningKey()
	require.NoError(t, err)
	assert.Len(t, a, crypto.SigningKeyLength)
	assert.NotEqual(t, a, b)
}

func TestAppleClientSecret(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	secret, err := crypto.AppleClientSecret("TEAM123", "com.example.app", "KEY123", pemKey, time.Hour)
	require.NoError(t, err)

	token, err := jwt.Parse(secret, func(token *jwt.Token) (any, error) {
		return &ecKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "TEAM123", claims["iss"])
	assert.Equal(t, "com.example.app", claims["sub"])
	assert.Equal(t, "KEY123", token.Header["kid"])
	audience, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Contains(t, audience, "https://appleid.apple.com")
}

func TestAppleClientSecretBadKey(t *testing.T) {
	_, err := crypto.AppleClientSecret("TEAM123", "com.example.app", "KEY123", []byte("not a key"), time.Hour)
	assert.True(t, apperr.IsInvalidArgument(err))
}

func newKeyStore(t *testing.T) (*crypto.KeyStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := crypto.NewKeyStore(db)
	require.NoError(t, err)
	return store, db
}

func TestKeyStoreCRUD(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	key, err := store.Add(ctx, "inst-1", "saml-signing", "RSA", []byte("wrapped-material"))
	require.NoError(t, err)
	require.NotEmpty(t, key.ID)

	byID, err := store.Get(ctx, "inst-1", key.ID)
	require.NoError(t, err)
	assert.Equal(t, "saml-signing", byID.Identifier)

	byIdentifier, err := store.Get(ctx, "inst-1", "saml-signing")
	require.NoError(t, err)
	assert.Equal(t, key.ID, byIdentifier.ID)
	assert.Equal(t, []byte("wrapped-material"), byIdentifier.Material)

	require.NoError(t, store.Remove(ctx, "inst-1", key.ID))
	_, err = store.Get(ctx, "inst-1", key.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestKeyStoreIdentifierUniquePerInstance(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "inst-1", "otp-key", "AES256", []byte("a"))
	require.NoError(t, err)

	_, err = store.Add(ctx, "inst-1", "otp-key", "AES256", []byte("b"))
	assert.True(t, apperr.IsAlreadyExists(err))

	// Same identifier in another instance is fine.
	_, err = store.Add(ctx, "inst-2", "otp-key", "AES256", []byte("c"))
	assert.NoError(t, err)
}

func TestKeyStoreListFiltersAlgorithm(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "inst-1", "k1", "AES256", []byte("a"))
	require.NoError(t, err)
	_, err = store.Add(ctx, "inst-1", "k2", "RSA", []byte("b"))
	require.NoError(t, err)

	all, err := store.List(ctx, "inst-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rsa, err := store.List(ctx, "inst-1", "RSA")
	require.NoError(t, err)
	require.Len(t, rsa, 1)
	assert.Equal(t, "k2", rsa[0].Identifier)
}

func TestKeyStoreValidation(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "inst-1", "", "AES256", []byte("a"))
	assert.True(t, apperr.IsInvalidArgument(err))
	_, err = store.Add(ctx, "inst-1", "k", "AES256", nil)
	assert.True(t, apperr.IsInvalidArgument(err))
}
