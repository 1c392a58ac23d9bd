package repository

import (
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const ApplicationAggregate eventstore.AggregateType = "application"

const (
	ApplicationAddedType             eventstore.EventType = "application.added"
	ApplicationChangedType           eventstore.EventType = "application.changed"
	ApplicationDeactivatedType       eventstore.EventType = "application.deactivated"
	ApplicationReactivatedType       eventstore.EventType = "application.reactivated"
	ApplicationRemovedType           eventstore.EventType = "application.removed"
	ApplicationOIDCConfigAddedType   eventstore.EventType = "application.config.oidc.added"
	ApplicationOIDCConfigChangedType eventstore.EventType = "application.config.oidc.changed"
	ApplicationAPIConfigAddedType    eventstore.EventType = "application.config.api.added"
	ApplicationAPIConfigChangedType  eventstore.EventType = "application.config.api.changed"
	ApplicationSecretChangedType     eventstore.EventType = "application.secret.changed"
)

// UniqueAppClientID claims OIDC client ids per instance.
const UniqueAppClientID = "app_client_id"

type ApplicationAddedPayload struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

type ApplicationChangedPayload struct {
	Name string `json:"name"`
}

type ApplicationOIDCConfigPayload struct {
	ClientID                 string                     `json:"clientId"`
	ClientSecretHash         string                     `json:"clientSecretHash,omitempty"`
	RedirectURIs             []string                   `json:"redirectUris"`
	PostLogoutRedirectURIs   []string                   `json:"postLogoutRedirectUris,omitempty"`
	ResponseTypes            []domain.OIDCResponseType  `json:"responseTypes"`
	GrantTypes               []domain.OIDCGrantType     `json:"grantTypes"`
	ApplicationType          domain.OIDCApplicationType `json:"applicationType"`
	AuthMethodType           domain.OIDCAuthMethodType  `json:"authMethodType"`
	DevMode                  bool                       `json:"devMode,omitempty"`
	AccessTokenRoleAssertion bool                       `json:"accessTokenRoleAssertion,omitempty"`
	IDTokenRoleAssertion     bool                       `json:"idTokenRoleAssertion,omitempty"`
	IDTokenUserinfoAssertion bool                       `json:"idTokenUserinfoAssertion,omitempty"`
}

type ApplicationAPIConfigPayload struct {
	ClientID         string                    `json:"clientId"`
	ClientSecretHash string                    `json:"clientSecretHash,omitempty"`
	AuthMethodType   domain.OIDCAuthMethodType `json:"authMethodType"`
}

type ApplicationSecretChangedPayload struct {
	ClientSecretHash string `json:"clientSecretHash"`
}
