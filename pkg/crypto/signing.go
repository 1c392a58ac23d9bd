package crypto

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/idgen"
)

// SigningKeyLength is the size of webhook signing keys.
const SigningKeyLength = 32

// NewSigningKey returns fresh random key material for webhook targets.
func NewSigningKey() ([]byte, error) {
	key, err := idgen.RandomBytes(SigningKeyLength)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "KEY-020", "generate signing key")
	}
	return key, nil
}

// AppleClientSecret builds the ES256 client secret JWT Apple expects in
// place of a static client secret. privateKey is the PEM-encoded EC key
// from the Apple developer portal.
func AppleClientSecret(teamID, clientID, keyID string, privateKey []byte, lifetime time.Duration) (string, error) {
	if teamID == "" || clientID == "" || keyID == "" {
		return "", apperr.ThrowInvalidArgument(nil, "KEY-021", "apple team, client and key id required")
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(privateKey)
	if err != nil {
		return "", apperr.ThrowInvalidArgument(err, "KEY-022", "parse apple private key")
	}
	// Apple caps client secret validity at 6 months.
	if lifetime <= 0 || lifetime > 6*30*24*time.Hour {
		lifetime = time.Hour
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    teamID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{"https://appleid.apple.com"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	})
	token.Header["kid"] = keyID

	secret, err := token.SignedString(key)
	if err != nil {
		return "", apperr.ThrowInternal(err, "KEY-023", "sign apple client secret")
	}
	return secret, nil
}
