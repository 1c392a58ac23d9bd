// Package crypto holds the at-rest encryption keeper, the encryption-key
// store, signing keys and token digests. Secrets never land in the event
// log as plaintext: payloads carry Values produced by the keeper.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Value is an encrypted blob as stored in event payloads and projection
// tables. KeyID names the keeper key so rotation can tell generations
// apart.
type Value struct {
	KeyID   string `json:"keyId"`
	Crypted []byte `json:"crypted"`
}

// IsZero reports whether the value holds no ciphertext.
func (v *Value) IsZero() bool {
	return v == nil || len(v.Crypted) == 0
}

// HashToken returns the hex SHA-256 digest of a bearer token. Personal
// access tokens are stored and compared in this form only.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ComputeHMACSHA256 signs payload with key, hex encoded. Webhook targets
// use it to authenticate calls.
func ComputeHMACSHA256(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a hex signature in constant time.
func VerifyHMACSHA256(key, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
