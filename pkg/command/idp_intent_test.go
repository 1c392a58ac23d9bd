package command_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/command"
	"github.com/nordlys-id/nordlys/pkg/domain"
)

// fakeProvider is a minimal OAuth2 provider: a token endpoint answering any
// code with a bearer token and a userinfo endpoint serving fixed claims.
type fakeProvider struct {
	*httptest.Server

	claims map[string]any
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		claims: map[string]any{
			"id":                 "ext-1",
			"email":              "grace@example.com",
			"email_verified":     true,
			"preferred_username": "grace",
			"given_name":         "Grace",
			"family_name":        "Hopper",
			"name":               "Grace Hopper",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.claims)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) register(t *testing.T, f *fixture, orgID string, options domain.IDPOptions) string {
	t.Helper()
	idpID, _, err := f.AddOAuthIDP(f.ctx, &command.AddOAuthIDP{
		OwnerID:               orgID,
		Name:                  "acme-oauth",
		ClientID:              "client-1",
		ClientSecret:          "secret-1",
		AuthorizationEndpoint: p.URL + "/authorize",
		TokenEndpoint:         p.URL + "/token",
		UserEndpoint:          p.URL + "/userinfo",
		Scopes:                []string{"profile", "email"},
		IDAttribute:           "id",
		Options:               options,
	})
	require.NoError(t, err)
	return idpID
}

func startIntent(t *testing.T, f *fixture, idpID string) *command.StartedIDPIntent {
	t.Helper()
	started, err := f.StartIDPIntent(f.ctx, &command.StartIDPIntent{
		IDPID:       idpID,
		SuccessURL:  "https://app.example.com/login/ok",
		FailureURL:  "https://app.example.com/login/failed",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	require.NoError(t, err)
	return started
}

func TestOAuthIntentProvisionsUser(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{IsCreationAllowed: true})

	started := startIntent(t, f, idpID)
	assert.NotEmpty(t, started.StateToken)
	assert.NotEmpty(t, started.CodeVerifier)
	assert.Empty(t, started.Nonce) // plain OAuth, no OIDC nonce
	assert.Contains(t, started.AuthURL, provider.URL+"/authorize")
	assert.Contains(t, started.AuthURL, "state="+started.StateToken)
	assert.Contains(t, started.AuthURL, "code_challenge=")

	result, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	require.NoError(t, err)
	assert.True(t, result.NewUser)
	assert.NotEmpty(t, result.UserID)
	assert.Equal(t, "ext-1", result.User.ExternalUserID)

	// The provisioned user carries the preferred username and the link.
	require.NoError(t, f.queries.TriggerAll(f.ctx))
	user, err := f.queries.UserByUsername(f.ctx, testInstance, orgID, "grace")
	require.NoError(t, err)
	assert.Equal(t, result.UserID, user.ID)
	assert.Equal(t, "grace@example.com", user.Email)

	linked, err := f.queries.IDPUserLink(f.ctx, testInstance, idpID, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, result.UserID, linked)

	// An intent redeems exactly once.
	_, err = f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestOAuthIntentLinksExistingUser(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{IsCreationAllowed: true})

	userID := f.addUser(t, orgID, "grace")
	_, err := f.AddUserIDPLink(f.ctx, orgID, userID, &domain.UserIDPLink{
		IDPConfigID:    idpID,
		ExternalUserID: "ext-1",
		DisplayName:    "Grace Hopper",
	})
	require.NoError(t, err)

	started := startIntent(t, f, idpID)
	result, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	require.NoError(t, err)
	assert.False(t, result.NewUser)
	assert.Equal(t, userID, result.UserID)
}

func TestOAuthIntentCallbackForNamedUser(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{})

	userID := f.addUser(t, orgID, "grace")

	// Naming the user links the identity even though the provider does
	// not allow provisioning.
	started := startIntent(t, f, idpID)
	result, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:     started.StateToken,
		Code:           "code-1",
		RedirectURI:    "https://app.example.com/idp/callback",
		ExistingUserID: userID,
	})
	require.NoError(t, err)
	assert.False(t, result.NewUser)
	assert.Equal(t, userID, result.UserID)

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	linked, err := f.queries.IDPUserLink(f.ctx, testInstance, idpID, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, userID, linked)

	// A second callback for the same user reuses the link.
	started = startIntent(t, f, idpID)
	result, err = f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:     started.StateToken,
		Code:           "code-1",
		RedirectURI:    "https://app.example.com/idp/callback",
		ExistingUserID: userID,
	})
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)

	// The identity stays with grace: another account cannot claim it.
	otherID := f.addUser(t, orgID, "ada")
	started = startIntent(t, f, idpID)
	_, err = f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:     started.StateToken,
		Code:           "code-1",
		RedirectURI:    "https://app.example.com/idp/callback",
		ExistingUserID: otherID,
	})
	assert.True(t, apperr.IsAlreadyExists(err))
}

func TestIntentCarriesAuthRequestID(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{IsCreationAllowed: true})

	started, err := f.StartIDPIntent(f.ctx, &command.StartIDPIntent{
		IDPID:         idpID,
		SuccessURL:    "https://app.example.com/login/ok",
		FailureURL:    "https://app.example.com/login/failed",
		RedirectURI:   "https://app.example.com/idp/callback",
		AuthRequestID: "authreq-1",
	})
	require.NoError(t, err)

	result, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "authreq-1", result.AuthRequestID)
}

func TestOAuthIntentWithoutProvisioning(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{})

	started := startIntent(t, f, idpID)
	result, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	require.NoError(t, err)
	assert.Empty(t, result.UserID)
	assert.False(t, result.NewUser)
	assert.Equal(t, "ext-1", result.User.ExternalUserID)
}

func TestOAuthIntentProviderError(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t, command.WithHTTPClient(provider.Client()))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{IsCreationAllowed: true})

	started := startIntent(t, f, idpID)
	_, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:       started.StateToken,
		Error:            "access_denied",
		ErrorDescription: "user cancelled",
	})
	assert.True(t, apperr.IsUnauthenticated(err))

	// The intent transitioned to failed, so it cannot be failed again.
	_, err = f.FailIDPIntent(f.ctx, started.IntentID, "late")
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestOAuthIntentExpiry(t *testing.T) {
	provider := newFakeProvider(t)
	f := newFixture(t,
		command.WithHTTPClient(provider.Client()),
		command.WithIntentLifetime(time.Minute))
	orgID := f.addOrg(t, "Acme")
	idpID := provider.register(t, f, orgID, domain.IDPOptions{IsCreationAllowed: true})

	started := startIntent(t, f, idpID)
	f.clock.Advance(2 * time.Minute)

	_, err := f.HandleOAuthCallback(f.ctx, &command.OAuthCallback{
		StateToken:  started.StateToken,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/idp/callback",
	})
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestStartIntentValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.StartIDPIntent(f.ctx, &command.StartIDPIntent{
		IDPID:      "missing",
		SuccessURL: "https://app.example.com/ok",
		FailureURL: "https://app.example.com/failed",
	})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.StartIDPIntent(f.ctx, &command.StartIDPIntent{
		IDPID:      "idp-1",
		SuccessURL: "not a url",
		FailureURL: "https://app.example.com/failed",
	})
	assert.True(t, apperr.IsInvalidArgument(err))
}
