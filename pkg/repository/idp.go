package repository

import (
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const IDPAggregate eventstore.AggregateType = "idp"

const (
	IDPOIDCAddedType    eventstore.EventType = "idp.oidc.added"
	IDPOIDCChangedType  eventstore.EventType = "idp.oidc.changed"
	IDPOAuthAddedType   eventstore.EventType = "idp.oauth.added"
	IDPOAuthChangedType eventstore.EventType = "idp.oauth.changed"
	IDPJWTAddedType     eventstore.EventType = "idp.jwt.added"
	IDPJWTChangedType   eventstore.EventType = "idp.jwt.changed"
	IDPSAMLAddedType    eventstore.EventType = "idp.saml.added"
	IDPSAMLChangedType  eventstore.EventType = "idp.saml.changed"
	IDPLDAPAddedType    eventstore.EventType = "idp.ldap.added"
	IDPLDAPChangedType  eventstore.EventType = "idp.ldap.changed"
	IDPAppleAddedType   eventstore.EventType = "idp.apple.added"
	IDPAppleChangedType eventstore.EventType = "idp.apple.changed"
	IDPRemovedType      eventstore.EventType = "idp.removed"
)

type IDPOIDCPayload struct {
	Name             string            `json:"name"`
	Issuer           string            `json:"issuer"`
	ClientID         string            `json:"clientId"`
	ClientSecret     *crypto.Value     `json:"clientSecret,omitempty"`
	Scopes           []string          `json:"scopes,omitempty"`
	IsIDTokenMapping bool              `json:"isIdTokenMapping,omitempty"`
	Options          domain.IDPOptions `json:"options"`
}

type IDPOAuthPayload struct {
	Name                  string            `json:"name"`
	ClientID              string            `json:"clientId"`
	ClientSecret          *crypto.Value     `json:"clientSecret,omitempty"`
	AuthorizationEndpoint string            `json:"authorizationEndpoint"`
	TokenEndpoint         string            `json:"tokenEndpoint"`
	UserEndpoint          string            `json:"userEndpoint"`
	Scopes                []string          `json:"scopes,omitempty"`
	IDAttribute           string            `json:"idAttribute"`
	Options               domain.IDPOptions `json:"options"`
}

type IDPJWTPayload struct {
	Name         string            `json:"name"`
	Issuer       string            `json:"issuer"`
	JWTEndpoint  string            `json:"jwtEndpoint"`
	KeysEndpoint string            `json:"keysEndpoint"`
	HeaderName   string            `json:"headerName"`
	Options      domain.IDPOptions `json:"options"`
}

type IDPSAMLPayload struct {
	Name              string             `json:"name"`
	Metadata          []byte             `json:"metadata,omitempty"`
	MetadataURL       string             `json:"metadataUrl,omitempty"`
	Binding           domain.SAMLBinding `json:"binding,omitempty"`
	WithSignedRequest bool               `json:"withSignedRequest,omitempty"`
	Options           domain.IDPOptions  `json:"options"`
}

type IDPLDAPPayload struct {
	Name              string            `json:"name"`
	Servers           []string          `json:"servers"`
	StartTLS          bool              `json:"startTls,omitempty"`
	BaseDN            string            `json:"baseDn"`
	BindDN            string            `json:"bindDn,omitempty"`
	BindPassword      *crypto.Value     `json:"bindPassword,omitempty"`
	UserBase          string            `json:"userBase,omitempty"`
	UserObjectClasses []string          `json:"userObjectClasses,omitempty"`
	UserFilters       []string          `json:"userFilters"`
	IDAttribute       string            `json:"idAttribute,omitempty"`
	Options           domain.IDPOptions `json:"options"`
}

type IDPApplePayload struct {
	Name       string            `json:"name"`
	ClientID   string            `json:"clientId"`
	TeamID     string            `json:"teamId"`
	KeyID      string            `json:"keyId"`
	PrivateKey *crypto.Value     `json:"privateKey,omitempty"`
	Scopes     []string          `json:"scopes,omitempty"`
	Options    domain.IDPOptions `json:"options"`
}
