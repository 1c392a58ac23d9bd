package idgen

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// MustGenerateSortableID returns a ULID. IDs generated later sort later,
// which keeps id-ordered scans roughly insertion-ordered.
func MustGenerateSortableID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := cryptorand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomToken returns a URL-safe base64 token built from n random bytes.
// Used for OAuth state values and similar single-use secrets.
func RandomToken(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomHex returns the hex encoding of n random bytes.
func RandomHex(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
