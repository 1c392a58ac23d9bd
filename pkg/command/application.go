package command

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type appWriteModel struct {
	eventstore.WriteModel

	State      domain.AppState
	Type       domain.AppType
	ProjectID  string
	Name       string
	ClientID   string
	OIDCConfig *repository.ApplicationOIDCConfigPayload
	APIConfig  *repository.ApplicationAPIConfigPayload
}

func newAppWriteModel(instanceID, orgID, appID string) *appWriteModel {
	return &appWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   appID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *appWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.ApplicationAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *appWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.ApplicationAddedType:
			var payload repository.ApplicationAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.AppStateActive
			wm.ProjectID = payload.ProjectID
			wm.Name = payload.Name

		case repository.ApplicationChangedType:
			var payload repository.ApplicationChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name

		case repository.ApplicationDeactivatedType:
			wm.State = domain.AppStateInactive
		case repository.ApplicationReactivatedType:
			wm.State = domain.AppStateActive
		case repository.ApplicationRemovedType:
			wm.State = domain.AppStateRemoved

		case repository.ApplicationOIDCConfigAddedType, repository.ApplicationOIDCConfigChangedType:
			var payload repository.ApplicationOIDCConfigPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Type = domain.AppTypeOIDC
			wm.ClientID = payload.ClientID
			wm.OIDCConfig = &payload

		case repository.ApplicationAPIConfigAddedType, repository.ApplicationAPIConfigChangedType:
			var payload repository.ApplicationAPIConfigPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Type = domain.AppTypeAPI
			wm.ClientID = payload.ClientID
			wm.APIConfig = &payload

		case repository.ApplicationSecretChangedType:
			var payload repository.ApplicationSecretChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			switch {
			case wm.OIDCConfig != nil:
				wm.OIDCConfig.ClientSecretHash = payload.ClientSecretHash
			case wm.APIConfig != nil:
				wm.APIConfig.ClientSecretHash = payload.ClientSecretHash
			}
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *appWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.ApplicationAggregate)
}

// AddOIDCApp is the input for creating an OIDC application on a project.
type AddOIDCApp struct {
	OrgID                    string
	ProjectID                string
	Name                     string
	RedirectURIs             []string
	PostLogoutRedirectURIs   []string
	ResponseTypes            []domain.OIDCResponseType
	GrantTypes               []domain.OIDCGrantType
	ApplicationType          domain.OIDCApplicationType
	AuthMethodType           domain.OIDCAuthMethodType
	DevMode                  bool
	AccessTokenRoleAssertion bool
	IDTokenRoleAssertion     bool
	IDTokenUserinfoAssertion bool
}

// AddedOIDCApp carries the generated credentials back to the caller. The
// client secret plaintext is returned exactly once, only its hash is stored.
type AddedOIDCApp struct {
	AppID        string
	ClientID     string
	ClientSecret string
	Details      *domain.ObjectDetails
}

// AddOIDCApp creates an application and its OIDC configuration in one push.
// The client id is claimed instance-wide.
func (c *Commands) AddOIDCApp(ctx context.Context, app *AddOIDCApp) (*AddedOIDCApp, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, app.OrgID); err != nil {
		return nil, err
	}
	app.Name = strings.TrimSpace(app.Name)
	if err := validators.Required(app.Name, "name", "APP-001"); err != nil {
		return nil, err
	}
	if len(app.ResponseTypes) == 0 || len(app.GrantTypes) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "APP-002", "response and grant types must not be empty")
	}
	if err := validateRedirectURIs(app.RedirectURIs, app.ApplicationType, app.DevMode); err != nil {
		return nil, err
	}
	if _, err := c.existingProject(ctx, app.OrgID, app.ProjectID); err != nil {
		return nil, err
	}
	clientID := uuid.NewString()
	secret, secretHash, err := c.generateClientSecret(app.AuthMethodType)
	if err != nil {
		return nil, err
	}
	appID := c.nextID()
	model := newAppWriteModel(authz.GetInstance(ctx), app.OrgID, appID)
	creator := authz.GetCtxData(ctx).UserID
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ApplicationAddedType, creator,
			repository.ApplicationAddedPayload{ProjectID: app.ProjectID, Name: app.Name}),
		eventstore.NewCommand(model.aggregate(), repository.ApplicationOIDCConfigAddedType, creator,
			repository.ApplicationOIDCConfigPayload{
				ClientID:                 clientID,
				ClientSecretHash:         secretHash,
				RedirectURIs:             app.RedirectURIs,
				PostLogoutRedirectURIs:   app.PostLogoutRedirectURIs,
				ResponseTypes:            app.ResponseTypes,
				GrantTypes:               app.GrantTypes,
				ApplicationType:          app.ApplicationType,
				AuthMethodType:           app.AuthMethodType,
				DevMode:                  app.DevMode,
				AccessTokenRoleAssertion: app.AccessTokenRoleAssertion,
				IDTokenRoleAssertion:     app.IDTokenRoleAssertion,
				IDTokenUserinfoAssertion: app.IDTokenUserinfoAssertion,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueAppClientID, clientID, "APP-003")))
	if err != nil {
		return nil, err
	}
	return &AddedOIDCApp{
		AppID:        appID,
		ClientID:     clientID,
		ClientSecret: secret,
		Details:      eventstore.WriteModelToObjectDetails(&model.WriteModel),
	}, nil
}

// ChangeOIDCConfig replaces the OIDC configuration. Client id and secret
// are preserved from the current config.
func (c *Commands) ChangeOIDCConfig(ctx context.Context, orgID, appID string, config *repository.ApplicationOIDCConfigPayload) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	app, err := c.existingApp(ctx, orgID, appID)
	if err != nil {
		return nil, err
	}
	if app.OIDCConfig == nil {
		return nil, apperr.ThrowPreconditionFailed(nil, "APP-010", "application has no oidc configuration")
	}
	if len(config.ResponseTypes) == 0 || len(config.GrantTypes) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "APP-011", "response and grant types must not be empty")
	}
	if err := validateRedirectURIs(config.RedirectURIs, config.ApplicationType, config.DevMode); err != nil {
		return nil, err
	}
	config.ClientID = app.OIDCConfig.ClientID
	config.ClientSecretHash = app.OIDCConfig.ClientSecretHash
	err = c.pushAppendAndReduce(ctx, app,
		eventstore.NewCommand(app.aggregate(), repository.ApplicationOIDCConfigChangedType, authz.GetCtxData(ctx).UserID, config))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
}

// AddAPIApp creates an application with an API (machine) configuration.
func (c *Commands) AddAPIApp(ctx context.Context, orgID, projectID, name string, authMethod domain.OIDCAuthMethodType) (*AddedOIDCApp, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validators.Required(name, "name", "APP-020"); err != nil {
		return nil, err
	}
	if _, err := c.existingProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	clientID := uuid.NewString()
	secret, secretHash, err := c.generateClientSecret(authMethod)
	if err != nil {
		return nil, err
	}
	appID := c.nextID()
	model := newAppWriteModel(authz.GetInstance(ctx), orgID, appID)
	creator := authz.GetCtxData(ctx).UserID
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ApplicationAddedType, creator,
			repository.ApplicationAddedPayload{ProjectID: projectID, Name: name}),
		eventstore.NewCommand(model.aggregate(), repository.ApplicationAPIConfigAddedType, creator,
			repository.ApplicationAPIConfigPayload{
				ClientID:         clientID,
				ClientSecretHash: secretHash,
				AuthMethodType:   authMethod,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueAppClientID, clientID, "APP-021")))
	if err != nil {
		return nil, err
	}
	return &AddedOIDCApp{
		AppID:        appID,
		ClientID:     clientID,
		ClientSecret: secret,
		Details:      eventstore.WriteModelToObjectDetails(&model.WriteModel),
	}, nil
}

// ChangeApp renames the application.
func (c *Commands) ChangeApp(ctx context.Context, orgID, appID, name string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validators.Required(name, "name", "APP-030"); err != nil {
		return nil, err
	}
	app, err := c.existingApp(ctx, orgID, appID)
	if err != nil {
		return nil, err
	}
	if app.Name == name {
		return eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
	}
	err = c.pushAppendAndReduce(ctx, app,
		eventstore.NewCommand(app.aggregate(), repository.ApplicationChangedType, authz.GetCtxData(ctx).UserID,
			repository.ApplicationChangedPayload{Name: name}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
}

// RotateClientSecret issues a fresh client secret and returns the plaintext
// once. Applications whose auth method needs no secret are refused.
func (c *Commands) RotateClientSecret(ctx context.Context, orgID, appID string) (string, *domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return "", nil, err
	}
	app, err := c.existingApp(ctx, orgID, appID)
	if err != nil {
		return "", nil, err
	}
	var authMethod domain.OIDCAuthMethodType
	switch {
	case app.OIDCConfig != nil:
		authMethod = app.OIDCConfig.AuthMethodType
	case app.APIConfig != nil:
		authMethod = app.APIConfig.AuthMethodType
	default:
		return "", nil, apperr.ThrowPreconditionFailed(nil, "APP-040", "application has no configuration")
	}
	if !authMethod.NeedsSecret() {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "APP-041", "auth method uses no client secret")
	}
	secret := uuid.NewString()
	hash, err := c.hasher.Hash(secret)
	if err != nil {
		return "", nil, err
	}
	err = c.pushAppendAndReduce(ctx, app,
		eventstore.NewCommand(app.aggregate(), repository.ApplicationSecretChangedType, authz.GetCtxData(ctx).UserID,
			repository.ApplicationSecretChangedPayload{ClientSecretHash: hash}))
	if err != nil {
		return "", nil, err
	}
	return secret, eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
}

// DeactivateApp transitions active → inactive.
func (c *Commands) DeactivateApp(ctx context.Context, orgID, appID string) (*domain.ObjectDetails, error) {
	return c.appLifecycle(ctx, orgID, appID, repository.ApplicationDeactivatedType, func(state domain.AppState) error {
		if state == domain.AppStateInactive {
			return apperr.ThrowPreconditionFailed(nil, "APP-050", "application already inactive")
		}
		return nil
	})
}

// ReactivateApp transitions inactive → active.
func (c *Commands) ReactivateApp(ctx context.Context, orgID, appID string) (*domain.ObjectDetails, error) {
	return c.appLifecycle(ctx, orgID, appID, repository.ApplicationReactivatedType, func(state domain.AppState) error {
		if state != domain.AppStateInactive {
			return apperr.ThrowPreconditionFailed(nil, "APP-051", "application is not inactive")
		}
		return nil
	})
}

// RemoveApp removes the application and releases its client id claim.
func (c *Commands) RemoveApp(ctx context.Context, orgID, appID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	app, err := c.existingApp(ctx, orgID, appID)
	if err != nil {
		return nil, err
	}
	constraints := []*eventstore.UniqueConstraint{}
	if app.ClientID != "" {
		constraints = append(constraints,
			eventstore.NewRemoveUniqueConstraint(repository.UniqueAppClientID, app.ClientID))
	}
	err = c.pushAppendAndReduce(ctx, app,
		eventstore.NewCommand(app.aggregate(), repository.ApplicationRemovedType, authz.GetCtxData(ctx).UserID, nil, constraints...))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
}

func (c *Commands) appLifecycle(ctx context.Context, orgID, appID string, eventType eventstore.EventType, check func(domain.AppState) error) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	app, err := c.existingApp(ctx, orgID, appID)
	if err != nil {
		return nil, err
	}
	if err := check(app.State); err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, app,
		eventstore.NewCommand(app.aggregate(), eventType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&app.WriteModel), nil
}

func (c *Commands) existingApp(ctx context.Context, orgID, appID string) (*appWriteModel, error) {
	app := newAppWriteModel(authz.GetInstance(ctx), orgID, appID)
	if err := app.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !app.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "APP-000", "application does not exist")
	}
	return app, nil
}

func (c *Commands) generateClientSecret(authMethod domain.OIDCAuthMethodType) (plain, hash string, err error) {
	if !authMethod.NeedsSecret() {
		return "", "", nil
	}
	plain = uuid.NewString()
	hash, err = c.hasher.Hash(plain)
	if err != nil {
		return "", "", err
	}
	return plain, hash, nil
}

// validateRedirectURIs enforces the scheme rules for login redirects:
// https always passes, http only for localhost or when dev mode is on, and
// custom schemes only for native apps.
func validateRedirectURIs(uris []string, appType domain.OIDCApplicationType, devMode bool) error {
	if len(uris) == 0 {
		return apperr.ThrowInvalidArgument(nil, "APP-060", "at least one redirect uri is required")
	}
	for _, raw := range uris {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" {
			return apperr.ThrowInvalidArgument(nil, "APP-061", "invalid redirect uri").WithDetail("uri", raw)
		}
		switch parsed.Scheme {
		case "https":
		case "http":
			if !devMode && !isLocalhost(parsed.Hostname()) {
				return apperr.ThrowInvalidArgument(nil, "APP-062", "http redirect uris are only allowed for localhost").WithDetail("uri", raw)
			}
		default:
			if appType != domain.OIDCApplicationTypeNative {
				return apperr.ThrowInvalidArgument(nil, "APP-063", "custom scheme redirect uris are only allowed for native apps").WithDetail("uri", raw)
			}
		}
	}
	return nil
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
