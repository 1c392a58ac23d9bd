package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/command"
	"github.com/nordlys-id/nordlys/pkg/domain"
)

func (f *fixture) addOIDCApp(t *testing.T, orgID, projectID string, authMethod domain.OIDCAuthMethodType) *command.AddedOIDCApp {
	t.Helper()
	app, err := f.AddOIDCApp(f.ctx, &command.AddOIDCApp{
		OrgID:           orgID,
		ProjectID:       projectID,
		Name:            "web-login",
		RedirectURIs:    []string{"https://rp.example.com/callback"},
		ResponseTypes:   []domain.OIDCResponseType{domain.OIDCResponseTypeCode},
		GrantTypes:      []domain.OIDCGrantType{domain.OIDCGrantTypeAuthorizationCode},
		ApplicationType: domain.OIDCApplicationTypeWeb,
		AuthMethodType:  authMethod,
	})
	require.NoError(t, err)
	return app
}

func TestAddOIDCApp(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	app := f.addOIDCApp(t, orgID, projectID, domain.OIDCAuthMethodTypeBasic)
	assert.NotEmpty(t, app.AppID)
	assert.NotEmpty(t, app.ClientID)
	assert.NotEmpty(t, app.ClientSecret)

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	row, err := f.queries.AppByClientID(f.ctx, testInstance, app.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "web-login", row.Name)
	assert.Equal(t, domain.AppStateActive, row.State)
}

func TestAddOIDCAppRedirectRules(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	add := func(appType domain.OIDCApplicationType, devMode bool, uri string) error {
		_, err := f.AddOIDCApp(f.ctx, &command.AddOIDCApp{
			OrgID:           orgID,
			ProjectID:       projectID,
			Name:            "app",
			RedirectURIs:    []string{uri},
			ResponseTypes:   []domain.OIDCResponseType{domain.OIDCResponseTypeCode},
			GrantTypes:      []domain.OIDCGrantType{domain.OIDCGrantTypeAuthorizationCode},
			ApplicationType: appType,
			AuthMethodType:  domain.OIDCAuthMethodTypeNone,
			DevMode:         devMode,
		})
		return err
	}

	assert.NoError(t, add(domain.OIDCApplicationTypeWeb, false, "https://rp.example.com/cb"))
	assert.NoError(t, add(domain.OIDCApplicationTypeWeb, false, "http://localhost:3000/cb"))
	assert.True(t, apperr.IsInvalidArgument(add(domain.OIDCApplicationTypeWeb, false, "http://rp.example.com/cb")))
	// Dev mode lifts the localhost restriction for plain http.
	assert.NoError(t, add(domain.OIDCApplicationTypeWeb, true, "http://rp.example.com/cb"))
	// Custom schemes are reserved for native apps.
	assert.True(t, apperr.IsInvalidArgument(add(domain.OIDCApplicationTypeWeb, false, "com.example.app:/cb")))
	assert.NoError(t, add(domain.OIDCApplicationTypeNative, false, "com.example.app:/cb"))
}

func TestRotateClientSecret(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	app := f.addOIDCApp(t, orgID, projectID, domain.OIDCAuthMethodTypeBasic)
	secret, _, err := f.RotateClientSecret(f.ctx, orgID, app.AppID)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, app.ClientSecret, secret)

	// A public client has no secret to rotate.
	public, err := f.AddOIDCApp(f.ctx, &command.AddOIDCApp{
		OrgID:           orgID,
		ProjectID:       projectID,
		Name:            "spa",
		RedirectURIs:    []string{"https://spa.example.com/cb"},
		ResponseTypes:   []domain.OIDCResponseType{domain.OIDCResponseTypeCode},
		GrantTypes:      []domain.OIDCGrantType{domain.OIDCGrantTypeAuthorizationCode},
		ApplicationType: domain.OIDCApplicationTypeUserAgent,
		AuthMethodType:  domain.OIDCAuthMethodTypeNone,
	})
	require.NoError(t, err)
	assert.Empty(t, public.ClientSecret)
	_, _, err = f.RotateClientSecret(f.ctx, orgID, public.AppID)
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestAppLifecycle(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")
	app := f.addOIDCApp(t, orgID, projectID, domain.OIDCAuthMethodTypeBasic)

	_, err := f.DeactivateApp(f.ctx, orgID, app.AppID)
	require.NoError(t, err)
	_, err = f.DeactivateApp(f.ctx, orgID, app.AppID)
	assert.True(t, apperr.IsPreconditionFailed(err))

	_, err = f.ReactivateApp(f.ctx, orgID, app.AppID)
	require.NoError(t, err)

	_, err = f.RemoveApp(f.ctx, orgID, app.AppID)
	require.NoError(t, err)
	_, err = f.DeactivateApp(f.ctx, orgID, app.AppID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestAddAPIApp(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	app, err := f.AddAPIApp(f.ctx, orgID, projectID, "backend", domain.OIDCAuthMethodTypeBasic)
	require.NoError(t, err)
	assert.NotEmpty(t, app.ClientSecret)

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	row, err := f.queries.AppByClientID(f.ctx, testInstance, app.ClientID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppTypeAPI, row.Type)
}
