package command

import (
	"context"
	"net/url"
	"slices"

	"github.com/google/uuid"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// ClientMetadata is the RFC 7591 registration request, restricted to the
// fields the platform supports.
type ClientMetadata struct {
	ClientName              string   `json:"client_name"`
	ApplicationType         string   `json:"application_type"`
	RedirectURIs            []string `json:"redirect_uris"`
	PostLogoutRedirectURIs  []string `json:"post_logout_redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// RegisteredClient is the RFC 7591 registration response.
// ClientSecretExpiresAt of 0 means the secret never expires.
type RegisteredClient struct {
	AppID                 string   `json:"-"`
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at"`
	RedirectURIs          []string `json:"redirect_uris"`
	GrantTypes            []string `json:"grant_types"`
	ResponseTypes         []string `json:"response_types"`

	Details *domain.ObjectDetails `json:"-"`
}

// RegisterClient creates a project application from dynamic client
// registration metadata. Validation follows RFC 7591: at least one redirect
// uri, https for web apps except localhost, and consistent grant and
// response type sets.
func (c *Commands) RegisterClient(ctx context.Context, orgID, projectID string, metadata *ClientMetadata) (*RegisteredClient, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionAppWrite, orgID); err != nil {
		return nil, err
	}
	applyMetadataDefaults(metadata)
	appType, err := parseApplicationType(metadata.ApplicationType)
	if err != nil {
		return nil, err
	}
	authMethod, err := parseTokenEndpointAuthMethod(metadata.TokenEndpointAuthMethod)
	if err != nil {
		return nil, err
	}
	if len(metadata.RedirectURIs) == 0 {
		return nil, apperr.ThrowInvalidArgument(nil, "DCR-010", "redirect_uris is required")
	}
	if appType == domain.OIDCApplicationTypeWeb {
		if err := validateWebRedirectURIs(metadata.RedirectURIs); err != nil {
			return nil, err
		}
	}
	grantTypes, responseTypes, err := parseGrantAndResponseTypes(metadata.GrantTypes, metadata.ResponseTypes)
	if err != nil {
		return nil, err
	}
	if _, err := c.existingProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}

	name := metadata.ClientName
	if name == "" {
		name = "client-" + c.nextID()
	}
	clientID := uuid.NewString()
	var secret, secretHash string
	if authMethod.NeedsSecret() {
		secret = uuid.NewString()
		secretHash, err = c.hasher.Hash(secret)
		if err != nil {
			return nil, err
		}
	}

	appID := c.nextID()
	model := newAppWriteModel(authz.GetInstance(ctx), orgID, appID)
	creator := authz.GetCtxData(ctx).UserID
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ApplicationAddedType, creator,
			repository.ApplicationAddedPayload{ProjectID: projectID, Name: name}),
		eventstore.NewCommand(model.aggregate(), repository.ApplicationOIDCConfigAddedType, creator,
			repository.ApplicationOIDCConfigPayload{
				ClientID:               clientID,
				ClientSecretHash:       secretHash,
				RedirectURIs:           metadata.RedirectURIs,
				PostLogoutRedirectURIs: metadata.PostLogoutRedirectURIs,
				ResponseTypes:          responseTypes,
				GrantTypes:             grantTypes,
				ApplicationType:        appType,
				AuthMethodType:         authMethod,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueAppClientID, clientID, "DCR-011")))
	if err != nil {
		return nil, err
	}
	return &RegisteredClient{
		AppID:                 appID,
		ClientID:              clientID,
		ClientSecret:          secret,
		ClientSecretExpiresAt: 0,
		RedirectURIs:          metadata.RedirectURIs,
		GrantTypes:            metadata.GrantTypes,
		ResponseTypes:         metadata.ResponseTypes,
		Details:               eventstore.WriteModelToObjectDetails(&model.WriteModel),
	}, nil
}

// RFC 7591 §2: omitted grant_types defaults to authorization_code, omitted
// response_types to code, omitted auth method to client_secret_basic.
func applyMetadataDefaults(metadata *ClientMetadata) {
	if metadata.ApplicationType == "" {
		metadata.ApplicationType = "web"
	}
	if len(metadata.GrantTypes) == 0 {
		metadata.GrantTypes = []string{"authorization_code"}
	}
	if len(metadata.ResponseTypes) == 0 {
		metadata.ResponseTypes = []string{"code"}
	}
	if metadata.TokenEndpointAuthMethod == "" {
		metadata.TokenEndpointAuthMethod = "client_secret_basic"
	}
}

func parseApplicationType(value string) (domain.OIDCApplicationType, error) {
	switch value {
	case "web":
		return domain.OIDCApplicationTypeWeb, nil
	case "native":
		return domain.OIDCApplicationTypeNative, nil
	case "user_agent":
		return domain.OIDCApplicationTypeUserAgent, nil
	}
	return 0, apperr.ThrowInvalidArgument(nil, "DCR-020", "unsupported application_type").WithDetail("application_type", value)
}

func parseTokenEndpointAuthMethod(value string) (domain.OIDCAuthMethodType, error) {
	switch value {
	case "client_secret_basic":
		return domain.OIDCAuthMethodTypeBasic, nil
	case "client_secret_post":
		return domain.OIDCAuthMethodTypePost, nil
	case "none":
		return domain.OIDCAuthMethodTypeNone, nil
	case "private_key_jwt":
		return domain.OIDCAuthMethodTypePrivateKeyJWT, nil
	}
	return 0, apperr.ThrowInvalidArgument(nil, "DCR-021", "unsupported token_endpoint_auth_method").WithDetail("token_endpoint_auth_method", value)
}

// Web applications must redirect to https, except to localhost during
// development.
func validateWebRedirectURIs(uris []string) error {
	for _, raw := range uris {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" {
			return apperr.ThrowInvalidArgument(nil, "DCR-030", "invalid redirect_uri").WithDetail("uri", raw)
		}
		if parsed.Scheme == "https" {
			continue
		}
		if parsed.Scheme == "http" && isLocalhost(parsed.Hostname()) {
			continue
		}
		return apperr.ThrowInvalidArgument(nil, "DCR-031", "web clients require https redirect_uris").WithDetail("uri", raw)
	}
	return nil
}

// parseGrantAndResponseTypes maps the metadata strings onto the domain
// enums and checks mutual consistency: authorization_code pairs with the
// code response type, implicit needs token or id_token, and vice versa.
func parseGrantAndResponseTypes(grants, responses []string) ([]domain.OIDCGrantType, []domain.OIDCResponseType, error) {
	grantTypes := make([]domain.OIDCGrantType, 0, len(grants))
	for _, grant := range grants {
		switch grant {
		case "authorization_code":
			grantTypes = append(grantTypes, domain.OIDCGrantTypeAuthorizationCode)
		case "implicit":
			grantTypes = append(grantTypes, domain.OIDCGrantTypeImplicit)
		case "refresh_token":
			grantTypes = append(grantTypes, domain.OIDCGrantTypeRefreshToken)
		case "urn:ietf:params:oauth:grant-type:device_code":
			grantTypes = append(grantTypes, domain.OIDCGrantTypeDeviceCode)
		case "urn:ietf:params:oauth:grant-type:token-exchange":
			grantTypes = append(grantTypes, domain.OIDCGrantTypeTokenExchange)
		default:
			return nil, nil, apperr.ThrowInvalidArgument(nil, "DCR-040", "unsupported grant_type").WithDetail("grant_type", grant)
		}
	}
	responseTypes := make([]domain.OIDCResponseType, 0, len(responses))
	for _, response := range responses {
		switch response {
		case "code":
			responseTypes = append(responseTypes, domain.OIDCResponseTypeCode)
		case "id_token":
			responseTypes = append(responseTypes, domain.OIDCResponseTypeIDToken)
		case "id_token token", "token":
			responseTypes = append(responseTypes, domain.OIDCResponseTypeIDTokenToken)
		default:
			return nil, nil, apperr.ThrowInvalidArgument(nil, "DCR-041", "unsupported response_type").WithDetail("response_type", response)
		}
	}

	hasCodeGrant := slices.Contains(grantTypes, domain.OIDCGrantTypeAuthorizationCode)
	hasImplicitGrant := slices.Contains(grantTypes, domain.OIDCGrantTypeImplicit)
	hasCodeResponse := slices.Contains(responseTypes, domain.OIDCResponseTypeCode)
	hasImplicitResponse := slices.Contains(responseTypes, domain.OIDCResponseTypeIDToken) ||
		slices.Contains(responseTypes, domain.OIDCResponseTypeIDTokenToken)

	if hasCodeGrant != hasCodeResponse {
		return nil, nil, apperr.ThrowInvalidArgument(nil, "DCR-042", "authorization_code grant requires the code response type and vice versa")
	}
	if hasImplicitGrant && !hasImplicitResponse {
		return nil, nil, apperr.ThrowInvalidArgument(nil, "DCR-043", "implicit grant requires the token or id_token response type")
	}
	if hasImplicitResponse && !hasImplicitGrant {
		return nil, nil, apperr.ThrowInvalidArgument(nil, "DCR-044", "token and id_token response types require the implicit grant")
	}
	return grantTypes, responseTypes, nil
}
