package idp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/idp"
)

func TestProviderValidate(t *testing.T) {
	secret := &crypto.Value{KeyID: "k", Crypted: []byte("x")}

	tests := []struct {
		name     string
		provider idp.Provider
		wantErr  bool
	}{
		{
			name: "valid oidc",
			provider: idp.Provider{Type: domain.IDPTypeOIDC, OIDC: &idp.OIDCConfig{
				Issuer: "https://issuer.example.com", ClientID: "client", ClientSecret: secret,
			}},
		},
		{
			name: "oidc missing issuer",
			provider: idp.Provider{Type: domain.IDPTypeOIDC, OIDC: &idp.OIDCConfig{
				ClientID: "client",
			}},
			wantErr: true,
		},
		{
			name: "valid oauth",
			provider: idp.Provider{Type: domain.IDPTypeOAuth, OAuth: &idp.OAuthConfig{
				ClientID:              "client",
				AuthorizationEndpoint: "https://p.example.com/auth",
				TokenEndpoint:         "https://p.example.com/token",
				UserEndpoint:          "https://p.example.com/user",
				IDAttribute:           "id",
			}},
		},
		{
			name: "oauth missing id attribute",
			provider: idp.Provider{Type: domain.IDPTypeOAuth, OAuth: &idp.OAuthConfig{
				ClientID:              "client",
				AuthorizationEndpoint: "https://p.example.com/auth",
				TokenEndpoint:         "https://p.example.com/token",
				UserEndpoint:          "https://p.example.com/user",
			}},
			wantErr: true,
		},
		{
			name: "jwt header required",
			provider: idp.Provider{Type: domain.IDPTypeJWT, JWT: &idp.JWTConfig{
				Issuer: "https://issuer", JWTEndpoint: "https://issuer/jwt", KeysEndpoint: "https://issuer/keys",
			}},
			wantErr: true,
		},
		{
			name: "saml inline metadata",
			provider: idp.Provider{Type: domain.IDPTypeSAML, SAML: &idp.SAMLConfig{
				Metadata: []byte(`<EntityDescriptor entityID="https://sp.example.com"/>`),
			}},
		},
		{
			name: "saml bogus metadata",
			provider: idp.Provider{Type: domain.IDPTypeSAML, SAML: &idp.SAMLConfig{
				Metadata: []byte(`not xml at all`),
			}},
			wantErr: true,
		},
		{
			name: "saml metadata url",
			provider: idp.Provider{Type: domain.IDPTypeSAML, SAML: &idp.SAMLConfig{
				MetadataURL: "https://idp.example.com/metadata",
			}},
		},
		{
			name: "ldap needs filters",
			provider: idp.Provider{Type: domain.IDPTypeLDAP, LDAP: &idp.LDAPConfig{
				Servers: []string{"ldaps://dir.example.com"}, BaseDN: "dc=example,dc=com",
			}},
			wantErr: true,
		},
		{
			name: "valid apple",
			provider: idp.Provider{Type: domain.IDPTypeApple, Apple: &idp.AppleConfig{
				ClientID: "com.example.app", TeamID: "TEAM", KeyID: "KEY", PrivateKey: secret,
			}},
		},
		{
			name:     "config missing for type",
			provider: idp.Provider{Type: domain.IDPTypeOIDC},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.provider.Validate()
			if tt.wantErr {
				assert.True(t, apperr.IsInvalidArgument(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newSession(tokenStatus int, userinfo string) (*idp.Session, *httptest.Server) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(userinfo))
	})
	srv := httptest.NewServer(mux)

	cfg := &idp.OAuthConfig{
		ClientID:              "client",
		AuthorizationEndpoint: srv.URL + "/auth",
		TokenEndpoint:         srv.URL + "/token",
		UserEndpoint:          srv.URL + "/userinfo",
		IDAttribute:           "sub",
	}
	return &idp.Session{
		Config:       cfg.OAuth2Config("secret", "https://rp.example.com/callback"),
		HTTPClient:   srv.Client(),
		UserEndpoint: cfg.UserEndpoint,
		IDAttribute:  cfg.IDAttribute,
	}, srv
}

func TestExchangeCodeAndUserInfo(t *testing.T) {
	session, srv := newSession(http.StatusOK,
		`{"sub":"ext-1","email":"alice@example.com","email_verified":true,"given_name":"Alice","family_name":"L","name":"Alice L"}`)
	defer srv.Close()

	token, err := session.ExchangeCode(context.Background(), "code-123", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "at-123", token.AccessToken)

	claims, err := session.FetchUserInfo(context.Background(), token)
	require.NoError(t, err)

	user, err := idp.NormalizeClaims("idp-1", claims, session.IDAttribute)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", user.ExternalUserID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "Alice", user.FirstName)
	// No preferred_username claim: falls back to the email.
	assert.Equal(t, "alice@example.com", user.Username)
}

func TestExchangeCodeRejected(t *testing.T) {
	session, srv := newSession(http.StatusBadRequest, "{}")
	defer srv.Close()

	_, err := session.ExchangeCode(context.Background(), "bad-code", "")
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestExchangeCodeProviderDown(t *testing.T) {
	session, srv := newSession(http.StatusBadGateway, "{}")
	defer srv.Close()

	_, err := session.ExchangeCode(context.Background(), "code", "")
	assert.True(t, apperr.IsUnavailable(err))
}

func TestExchangeCodeHonoursDeadline(t *testing.T) {
	session, srv := newSession(http.StatusOK, "{}")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.ExchangeCode(ctx, "code", "")
	assert.True(t, apperr.IsDeadlineExceeded(err))
}

func TestNormalizeClaimsMissingID(t *testing.T) {
	_, err := idp.NormalizeClaims("idp-1", map[string]any{"email": "a@b.c"}, "sub")
	assert.True(t, apperr.IsInvalidArgument(err))
}

func signedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestValidateIDTokenClaims(t *testing.T) {
	now := time.Now()
	valid := jwt.MapClaims{
		"iss":   "https://issuer.example.com",
		"aud":   "client-1",
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": "n-123",
		"sub":   "ext-1",
	}

	claims, err := idp.ValidateIDTokenClaims(signedIDToken(t, valid),
		"https://issuer.example.com", "client-1", "n-123")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", claims["sub"])

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "other-client" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Minute).Unix() }},
		{"nonce mismatch", func(c jwt.MapClaims) { c["nonce"] = "other" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := jwt.MapClaims{}
			for k, v := range valid {
				bad[k] = v
			}
			tt.mutate(bad)
			_, err := idp.ValidateIDTokenClaims(signedIDToken(t, bad),
				"https://issuer.example.com", "client-1", "n-123")
			assert.True(t, apperr.IsUnauthenticated(err))
		})
	}
}

func TestValidateIDTokenMalformed(t *testing.T) {
	_, err := idp.ValidateIDTokenClaims("not.a.jwt", "iss", "aud", "")
	assert.True(t, apperr.IsUnauthenticated(err))
}
