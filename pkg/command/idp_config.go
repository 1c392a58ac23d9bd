package command

import (
	"context"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idp"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type idpWriteModel struct {
	eventstore.WriteModel

	State domain.IDPState
	Type  domain.IDPType
	Name  string

	OIDC  *repository.IDPOIDCPayload
	OAuth *repository.IDPOAuthPayload
	JWT   *repository.IDPJWTPayload
	SAML  *repository.IDPSAMLPayload
	LDAP  *repository.IDPLDAPPayload
	Apple *repository.IDPApplePayload
}

func newIDPWriteModel(instanceID, ownerID, idpID string) *idpWriteModel {
	return &idpWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   idpID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *idpWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.IDPAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *idpWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.IDPOIDCAddedType, repository.IDPOIDCChangedType:
			var payload repository.IDPOIDCPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeOIDC
			wm.Name = payload.Name
			wm.OIDC = &payload

		case repository.IDPOAuthAddedType, repository.IDPOAuthChangedType:
			var payload repository.IDPOAuthPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeOAuth
			wm.Name = payload.Name
			wm.OAuth = &payload

		case repository.IDPJWTAddedType, repository.IDPJWTChangedType:
			var payload repository.IDPJWTPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeJWT
			wm.Name = payload.Name
			wm.JWT = &payload

		case repository.IDPSAMLAddedType, repository.IDPSAMLChangedType:
			var payload repository.IDPSAMLPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeSAML
			wm.Name = payload.Name
			wm.SAML = &payload

		case repository.IDPLDAPAddedType, repository.IDPLDAPChangedType:
			var payload repository.IDPLDAPPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeLDAP
			wm.Name = payload.Name
			wm.LDAP = &payload

		case repository.IDPAppleAddedType, repository.IDPAppleChangedType:
			var payload repository.IDPApplePayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPStateActive
			wm.Type = domain.IDPTypeApple
			wm.Name = payload.Name
			wm.Apple = &payload

		case repository.IDPRemovedType:
			wm.State = domain.IDPStateRemoved
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *idpWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.IDPAggregate)
}

// provider rebuilds the resolved config for flows that need it.
func (wm *idpWriteModel) provider() *idp.Provider {
	p := &idp.Provider{ID: wm.AggregateID, Name: wm.Name, Type: wm.Type}
	switch wm.Type {
	case domain.IDPTypeOIDC:
		p.Options = wm.OIDC.Options
		p.OIDC = &idp.OIDCConfig{
			Issuer:           wm.OIDC.Issuer,
			ClientID:         wm.OIDC.ClientID,
			ClientSecret:     wm.OIDC.ClientSecret,
			Scopes:           wm.OIDC.Scopes,
			IsIDTokenMapping: wm.OIDC.IsIDTokenMapping,
		}
	case domain.IDPTypeOAuth:
		p.Options = wm.OAuth.Options
		p.OAuth = &idp.OAuthConfig{
			ClientID:              wm.OAuth.ClientID,
			ClientSecret:          wm.OAuth.ClientSecret,
			AuthorizationEndpoint: wm.OAuth.AuthorizationEndpoint,
			TokenEndpoint:         wm.OAuth.TokenEndpoint,
			UserEndpoint:          wm.OAuth.UserEndpoint,
			Scopes:                wm.OAuth.Scopes,
			IDAttribute:           wm.OAuth.IDAttribute,
		}
	case domain.IDPTypeJWT:
		p.Options = wm.JWT.Options
		p.JWT = &idp.JWTConfig{
			Issuer:       wm.JWT.Issuer,
			JWTEndpoint:  wm.JWT.JWTEndpoint,
			KeysEndpoint: wm.JWT.KeysEndpoint,
			HeaderName:   wm.JWT.HeaderName,
		}
	case domain.IDPTypeSAML:
		p.Options = wm.SAML.Options
		p.SAML = &idp.SAMLConfig{
			Metadata:          wm.SAML.Metadata,
			MetadataURL:       wm.SAML.MetadataURL,
			Binding:           wm.SAML.Binding,
			WithSignedRequest: wm.SAML.WithSignedRequest,
		}
	case domain.IDPTypeLDAP:
		p.Options = wm.LDAP.Options
		p.LDAP = &idp.LDAPConfig{
			Servers:           wm.LDAP.Servers,
			StartTLS:          wm.LDAP.StartTLS,
			BaseDN:            wm.LDAP.BaseDN,
			BindDN:            wm.LDAP.BindDN,
			BindPassword:      wm.LDAP.BindPassword,
			UserBase:          wm.LDAP.UserBase,
			UserObjectClasses: wm.LDAP.UserObjectClasses,
			UserFilters:       wm.LDAP.UserFilters,
			IDAttribute:       wm.LDAP.IDAttribute,
		}
	case domain.IDPTypeApple:
		p.Options = wm.Apple.Options
		p.Apple = &idp.AppleConfig{
			ClientID:   wm.Apple.ClientID,
			TeamID:     wm.Apple.TeamID,
			KeyID:      wm.Apple.KeyID,
			PrivateKey: wm.Apple.PrivateKey,
			Scopes:     wm.Apple.Scopes,
		}
	}
	return p
}

// AddOIDCIDP registers an issuer-discovered provider. The client secret is
// encrypted before it enters the event payload.
type AddOIDCIDP struct {
	OwnerID          string
	Name             string
	Issuer           string
	ClientID         string
	ClientSecret     string
	Scopes           []string
	IsIDTokenMapping bool
	Options          domain.IDPOptions
}

func (c *Commands) AddOIDCIDP(ctx context.Context, provider *AddOIDCIDP) (string, *domain.ObjectDetails, error) {
	secret, err := c.encryptIDPSecret(ctx, provider.ClientSecret)
	if err != nil {
		return "", nil, err
	}
	payload := &repository.IDPOIDCPayload{
		Name:             strings.TrimSpace(provider.Name),
		Issuer:           provider.Issuer,
		ClientID:         provider.ClientID,
		ClientSecret:     secret,
		Scopes:           provider.Scopes,
		IsIDTokenMapping: provider.IsIDTokenMapping,
		Options:          provider.Options,
	}
	validate := (&idp.OIDCConfig{Issuer: payload.Issuer, ClientID: payload.ClientID}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPOIDCAddedType, payload, validate)
}

func (c *Commands) ChangeOIDCIDP(ctx context.Context, ownerID, idpID string, provider *AddOIDCIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeOIDC)
	if err != nil {
		return nil, err
	}
	secret, err := c.encryptIDPSecret(ctx, provider.ClientSecret)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		secret = existing.OIDC.ClientSecret
	}
	payload := &repository.IDPOIDCPayload{
		Name:             strings.TrimSpace(provider.Name),
		Issuer:           provider.Issuer,
		ClientID:         provider.ClientID,
		ClientSecret:     secret,
		Scopes:           provider.Scopes,
		IsIDTokenMapping: provider.IsIDTokenMapping,
		Options:          provider.Options,
	}
	validate := (&idp.OIDCConfig{Issuer: payload.Issuer, ClientID: payload.ClientID}).Validate
	return c.changeIDP(ctx, existing, repository.IDPOIDCChangedType, payload, validate)
}

// AddOAuthIDP registers a plain OAuth2 provider with explicit endpoints.
type AddOAuthIDP struct {
	OwnerID               string
	Name                  string
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserEndpoint          string
	Scopes                []string
	IDAttribute           string
	Options               domain.IDPOptions
}

func (c *Commands) AddOAuthIDP(ctx context.Context, provider *AddOAuthIDP) (string, *domain.ObjectDetails, error) {
	secret, err := c.encryptIDPSecret(ctx, provider.ClientSecret)
	if err != nil {
		return "", nil, err
	}
	payload := &repository.IDPOAuthPayload{
		Name:                  strings.TrimSpace(provider.Name),
		ClientID:              provider.ClientID,
		ClientSecret:          secret,
		AuthorizationEndpoint: provider.AuthorizationEndpoint,
		TokenEndpoint:         provider.TokenEndpoint,
		UserEndpoint:          provider.UserEndpoint,
		Scopes:                provider.Scopes,
		IDAttribute:           provider.IDAttribute,
		Options:               provider.Options,
	}
	validate := (&idp.OAuthConfig{
		ClientID:              payload.ClientID,
		AuthorizationEndpoint: payload.AuthorizationEndpoint,
		TokenEndpoint:         payload.TokenEndpoint,
		UserEndpoint:          payload.UserEndpoint,
		IDAttribute:           payload.IDAttribute,
	}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPOAuthAddedType, payload, validate)
}

func (c *Commands) ChangeOAuthIDP(ctx context.Context, ownerID, idpID string, provider *AddOAuthIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeOAuth)
	if err != nil {
		return nil, err
	}
	secret, err := c.encryptIDPSecret(ctx, provider.ClientSecret)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		secret = existing.OAuth.ClientSecret
	}
	payload := &repository.IDPOAuthPayload{
		Name:                  strings.TrimSpace(provider.Name),
		ClientID:              provider.ClientID,
		ClientSecret:          secret,
		AuthorizationEndpoint: provider.AuthorizationEndpoint,
		TokenEndpoint:         provider.TokenEndpoint,
		UserEndpoint:          provider.UserEndpoint,
		Scopes:                provider.Scopes,
		IDAttribute:           provider.IDAttribute,
		Options:               provider.Options,
	}
	validate := (&idp.OAuthConfig{
		ClientID:              payload.ClientID,
		AuthorizationEndpoint: payload.AuthorizationEndpoint,
		TokenEndpoint:         payload.TokenEndpoint,
		UserEndpoint:          payload.UserEndpoint,
		IDAttribute:           payload.IDAttribute,
	}).Validate
	return c.changeIDP(ctx, existing, repository.IDPOAuthChangedType, payload, validate)
}

// AddJWTIDP registers a provider presenting pre-issued JWTs.
type AddJWTIDP struct {
	OwnerID      string
	Name         string
	Issuer       string
	JWTEndpoint  string
	KeysEndpoint string
	HeaderName   string
	Options      domain.IDPOptions
}

func (c *Commands) AddJWTIDP(ctx context.Context, provider *AddJWTIDP) (string, *domain.ObjectDetails, error) {
	payload := &repository.IDPJWTPayload{
		Name:         strings.TrimSpace(provider.Name),
		Issuer:       provider.Issuer,
		JWTEndpoint:  provider.JWTEndpoint,
		KeysEndpoint: provider.KeysEndpoint,
		HeaderName:   provider.HeaderName,
		Options:      provider.Options,
	}
	validate := (&idp.JWTConfig{
		Issuer:       payload.Issuer,
		JWTEndpoint:  payload.JWTEndpoint,
		KeysEndpoint: payload.KeysEndpoint,
		HeaderName:   payload.HeaderName,
	}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPJWTAddedType, payload, validate)
}

func (c *Commands) ChangeJWTIDP(ctx context.Context, ownerID, idpID string, provider *AddJWTIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeJWT)
	if err != nil {
		return nil, err
	}
	payload := &repository.IDPJWTPayload{
		Name:         strings.TrimSpace(provider.Name),
		Issuer:       provider.Issuer,
		JWTEndpoint:  provider.JWTEndpoint,
		KeysEndpoint: provider.KeysEndpoint,
		HeaderName:   provider.HeaderName,
		Options:      provider.Options,
	}
	validate := (&idp.JWTConfig{
		Issuer:       payload.Issuer,
		JWTEndpoint:  payload.JWTEndpoint,
		KeysEndpoint: payload.KeysEndpoint,
		HeaderName:   payload.HeaderName,
	}).Validate
	return c.changeIDP(ctx, existing, repository.IDPJWTChangedType, payload, validate)
}

// AddSAMLIDP registers a SAML provider from metadata.
type AddSAMLIDP struct {
	OwnerID           string
	Name              string
	Metadata          []byte
	MetadataURL       string
	Binding           domain.SAMLBinding
	WithSignedRequest bool
	Options           domain.IDPOptions
}

func (c *Commands) AddSAMLIDP(ctx context.Context, provider *AddSAMLIDP) (string, *domain.ObjectDetails, error) {
	payload := &repository.IDPSAMLPayload{
		Name:              strings.TrimSpace(provider.Name),
		Metadata:          provider.Metadata,
		MetadataURL:       provider.MetadataURL,
		Binding:           provider.Binding,
		WithSignedRequest: provider.WithSignedRequest,
		Options:           provider.Options,
	}
	validate := (&idp.SAMLConfig{Metadata: payload.Metadata, MetadataURL: payload.MetadataURL}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPSAMLAddedType, payload, validate)
}

func (c *Commands) ChangeSAMLIDP(ctx context.Context, ownerID, idpID string, provider *AddSAMLIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeSAML)
	if err != nil {
		return nil, err
	}
	payload := &repository.IDPSAMLPayload{
		Name:              strings.TrimSpace(provider.Name),
		Metadata:          provider.Metadata,
		MetadataURL:       provider.MetadataURL,
		Binding:           provider.Binding,
		WithSignedRequest: provider.WithSignedRequest,
		Options:           provider.Options,
	}
	validate := (&idp.SAMLConfig{Metadata: payload.Metadata, MetadataURL: payload.MetadataURL}).Validate
	return c.changeIDP(ctx, existing, repository.IDPSAMLChangedType, payload, validate)
}

// AddLDAPIDP registers a directory-backed provider.
type AddLDAPIDP struct {
	OwnerID           string
	Name              string
	Servers           []string
	StartTLS          bool
	BaseDN            string
	BindDN            string
	BindPassword      string
	UserBase          string
	UserObjectClasses []string
	UserFilters       []string
	IDAttribute       string
	Options           domain.IDPOptions
}

func (c *Commands) AddLDAPIDP(ctx context.Context, provider *AddLDAPIDP) (string, *domain.ObjectDetails, error) {
	bindPassword, err := c.encryptIDPSecret(ctx, provider.BindPassword)
	if err != nil {
		return "", nil, err
	}
	payload := &repository.IDPLDAPPayload{
		Name:              strings.TrimSpace(provider.Name),
		Servers:           provider.Servers,
		StartTLS:          provider.StartTLS,
		BaseDN:            provider.BaseDN,
		BindDN:            provider.BindDN,
		BindPassword:      bindPassword,
		UserBase:          provider.UserBase,
		UserObjectClasses: provider.UserObjectClasses,
		UserFilters:       provider.UserFilters,
		IDAttribute:       provider.IDAttribute,
		Options:           provider.Options,
	}
	validate := (&idp.LDAPConfig{
		Servers:     payload.Servers,
		BaseDN:      payload.BaseDN,
		UserFilters: payload.UserFilters,
	}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPLDAPAddedType, payload, validate)
}

func (c *Commands) ChangeLDAPIDP(ctx context.Context, ownerID, idpID string, provider *AddLDAPIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeLDAP)
	if err != nil {
		return nil, err
	}
	bindPassword, err := c.encryptIDPSecret(ctx, provider.BindPassword)
	if err != nil {
		return nil, err
	}
	if bindPassword == nil {
		bindPassword = existing.LDAP.BindPassword
	}
	payload := &repository.IDPLDAPPayload{
		Name:              strings.TrimSpace(provider.Name),
		Servers:           provider.Servers,
		StartTLS:          provider.StartTLS,
		BaseDN:            provider.BaseDN,
		BindDN:            provider.BindDN,
		BindPassword:      bindPassword,
		UserBase:          provider.UserBase,
		UserObjectClasses: provider.UserObjectClasses,
		UserFilters:       provider.UserFilters,
		IDAttribute:       provider.IDAttribute,
		Options:           provider.Options,
	}
	validate := (&idp.LDAPConfig{
		Servers:     payload.Servers,
		BaseDN:      payload.BaseDN,
		UserFilters: payload.UserFilters,
	}).Validate
	return c.changeIDP(ctx, existing, repository.IDPLDAPChangedType, payload, validate)
}

// AddAppleIDP registers Sign in with Apple; the EC private key is held
// encrypted and used to mint the ES256 client secret per request.
type AddAppleIDP struct {
	OwnerID    string
	Name       string
	ClientID   string
	TeamID     string
	KeyID      string
	PrivateKey []byte
	Scopes     []string
	Options    domain.IDPOptions
}

func (c *Commands) AddAppleIDP(ctx context.Context, provider *AddAppleIDP) (string, *domain.ObjectDetails, error) {
	var privateKey *crypto.Value
	if len(provider.PrivateKey) > 0 {
		var err error
		privateKey, err = c.keeper.Encrypt(ctx, provider.PrivateKey)
		if err != nil {
			return "", nil, err
		}
	}
	payload := &repository.IDPApplePayload{
		Name:       strings.TrimSpace(provider.Name),
		ClientID:   provider.ClientID,
		TeamID:     provider.TeamID,
		KeyID:      provider.KeyID,
		PrivateKey: privateKey,
		Scopes:     provider.Scopes,
		Options:    provider.Options,
	}
	validate := (&idp.AppleConfig{
		ClientID:   payload.ClientID,
		TeamID:     payload.TeamID,
		KeyID:      payload.KeyID,
		PrivateKey: payload.PrivateKey,
	}).Validate
	return c.addIDP(ctx, provider.OwnerID, payload.Name, repository.IDPAppleAddedType, payload, validate)
}

func (c *Commands) ChangeAppleIDP(ctx context.Context, ownerID, idpID string, provider *AddAppleIDP) (*domain.ObjectDetails, error) {
	existing, err := c.existingIDP(ctx, ownerID, idpID, domain.IDPTypeApple)
	if err != nil {
		return nil, err
	}
	privateKey := existing.Apple.PrivateKey
	if len(provider.PrivateKey) > 0 {
		privateKey, err = c.keeper.Encrypt(ctx, provider.PrivateKey)
		if err != nil {
			return nil, err
		}
	}
	payload := &repository.IDPApplePayload{
		Name:       strings.TrimSpace(provider.Name),
		ClientID:   provider.ClientID,
		TeamID:     provider.TeamID,
		KeyID:      provider.KeyID,
		PrivateKey: privateKey,
		Scopes:     provider.Scopes,
		Options:    provider.Options,
	}
	validate := (&idp.AppleConfig{
		ClientID:   payload.ClientID,
		TeamID:     payload.TeamID,
		KeyID:      payload.KeyID,
		PrivateKey: payload.PrivateKey,
	}).Validate
	return c.changeIDP(ctx, existing, repository.IDPAppleChangedType, payload, validate)
}

// RemoveIDP removes a provider. Removing an unknown or already removed
// provider is a no-op; user links are cleaned up by the projection.
func (c *Commands) RemoveIDP(ctx context.Context, ownerID, idpID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionIDPWrite, ownerID); err != nil {
		return nil, err
	}
	existing := newIDPWriteModel(authz.GetInstance(ctx), ownerID, idpID)
	if err := existing.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !existing.State.Exists() {
		return eventstore.WriteModelToObjectDetails(&existing.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, existing,
		eventstore.NewCommand(existing.aggregate(), repository.IDPRemovedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&existing.WriteModel), nil
}

func (c *Commands) addIDP(ctx context.Context, ownerID, name string, eventType eventstore.EventType, payload any, validate func() error) (string, *domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionIDPWrite, ownerID); err != nil {
		return "", nil, err
	}
	if err := validators.Required(name, "name", "IDP-070"); err != nil {
		return "", nil, err
	}
	if err := validate(); err != nil {
		return "", nil, err
	}
	idpID := c.nextID()
	model := newIDPWriteModel(authz.GetInstance(ctx), ownerID, idpID)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), eventType, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return "", nil, err
	}
	return idpID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) changeIDP(ctx context.Context, existing *idpWriteModel, eventType eventstore.EventType, payload any, validate func() error) (*domain.ObjectDetails, error) {
	if err := validate(); err != nil {
		return nil, err
	}
	err := c.pushAppendAndReduce(ctx, existing,
		eventstore.NewCommand(existing.aggregate(), eventType, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&existing.WriteModel), nil
}

func (c *Commands) existingIDP(ctx context.Context, ownerID, idpID string, idpType domain.IDPType) (*idpWriteModel, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionIDPWrite, ownerID); err != nil {
		return nil, err
	}
	existing := newIDPWriteModel(authz.GetInstance(ctx), ownerID, idpID)
	if err := existing.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !existing.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "IDP-071", "identity provider does not exist")
	}
	if existing.Type != idpType {
		return nil, apperr.ThrowPreconditionFailed(nil, "IDP-072", "identity provider type mismatch")
	}
	return existing, nil
}

func (c *Commands) encryptIDPSecret(ctx context.Context, plain string) (*crypto.Value, error) {
	if plain == "" {
		return nil, nil
	}
	return c.keeper.EncryptString(ctx, plain)
}
