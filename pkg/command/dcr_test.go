package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/command"
	"github.com/nordlys-id/nordlys/pkg/domain"
)

func (f *fixture) addProject(t *testing.T, orgID, name string) string {
	t.Helper()
	projectID, _, err := f.AddProject(f.ctx, &command.AddProject{OrgID: orgID, Name: name})
	require.NoError(t, err)
	return projectID
}

func TestRegisterClientDefaults(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	client, err := f.RegisterClient(f.ctx, orgID, projectID, &command.ClientMetadata{
		RedirectURIs: []string{"https://rp.example.com/callback"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID)
	// Defaulted auth method is client_secret_basic, so a secret is minted
	// and never expires.
	assert.NotEmpty(t, client.ClientSecret)
	assert.Zero(t, client.ClientSecretExpiresAt)

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	app, err := f.queries.AppByClientID(f.ctx, testInstance, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, projectID, app.ProjectID)
	assert.Equal(t, domain.AppTypeOIDC, app.Type)
	// Only the hash of the secret is stored.
	assert.NotEmpty(t, app.ClientSecretHash)
	assert.NotEqual(t, client.ClientSecret, app.ClientSecretHash)
}

func TestRegisterClientWebRequiresHTTPS(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	_, err := f.RegisterClient(f.ctx, orgID, projectID, &command.ClientMetadata{
		ApplicationType: "web",
		RedirectURIs:    []string{"http://rp.example.com/callback"},
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	// Localhost is the development exception.
	_, err = f.RegisterClient(f.ctx, orgID, projectID, &command.ClientMetadata{
		ApplicationType: "web",
		RedirectURIs:    []string{"http://localhost:8080/callback"},
	})
	assert.NoError(t, err)
}

func TestRegisterClientPublicHasNoSecret(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	client, err := f.RegisterClient(f.ctx, orgID, projectID, &command.ClientMetadata{
		ApplicationType:         "native",
		RedirectURIs:            []string{"com.example.app:/callback"},
		TokenEndpointAuthMethod: "none",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID)
	assert.Empty(t, client.ClientSecret)
}

func TestRegisterClientValidation(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	tests := []struct {
		name     string
		metadata *command.ClientMetadata
	}{
		{"no redirect uris", &command.ClientMetadata{}},
		{"unknown application type", &command.ClientMetadata{
			ApplicationType: "desktop",
			RedirectURIs:    []string{"https://rp.example.com/cb"},
		}},
		{"unknown auth method", &command.ClientMetadata{
			RedirectURIs:            []string{"https://rp.example.com/cb"},
			TokenEndpointAuthMethod: "tls_client_auth",
		}},
		{"code grant without code response", &command.ClientMetadata{
			RedirectURIs:  []string{"https://rp.example.com/cb"},
			GrantTypes:    []string{"authorization_code"},
			ResponseTypes: []string{"token"},
		}},
		{"implicit response without implicit grant", &command.ClientMetadata{
			RedirectURIs:  []string{"https://rp.example.com/cb"},
			GrantTypes:    []string{"authorization_code"},
			ResponseTypes: []string{"code", "id_token"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.RegisterClient(f.ctx, orgID, projectID, tt.metadata)
			assert.True(t, apperr.IsInvalidArgument(err))
		})
	}

	_, err := f.RegisterClient(f.ctx, orgID, "missing-project", &command.ClientMetadata{
		RedirectURIs: []string{"https://rp.example.com/cb"},
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestRegisterClientImplicit(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	projectID := f.addProject(t, orgID, "CRM")

	client, err := f.RegisterClient(f.ctx, orgID, projectID, &command.ClientMetadata{
		ClientName:    "spa",
		RedirectURIs:  []string{"https://spa.example.com/cb"},
		GrantTypes:    []string{"implicit"},
		ResponseTypes: []string{"id_token token"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID)
}
