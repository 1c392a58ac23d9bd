// Package idp holds the federated identity provider configurations and the
// outbound OAuth/OIDC flow: code exchange, userinfo retrieval and claim
// normalisation into the domain's external user shape.
package idp

import (
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// Provider is a resolved identity provider config. Exactly one of the
// per-type configs is set, matching Type.
type Provider struct {
	ID      string
	Name    string
	Type    domain.IDPType
	Options domain.IDPOptions

	OIDC  *OIDCConfig
	OAuth *OAuthConfig
	JWT   *JWTConfig
	SAML  *SAMLConfig
	LDAP  *LDAPConfig
	Apple *AppleConfig
}

// OIDCConfig for providers discovered through an issuer.
type OIDCConfig struct {
	Issuer           string
	ClientID         string
	ClientSecret     *crypto.Value
	Scopes           []string
	IsIDTokenMapping bool
}

func (c *OIDCConfig) Validate() error {
	if err := validators.Required(c.Issuer, "issuer", "IDP-010"); err != nil {
		return err
	}
	if err := validators.URL(c.Issuer, "IDP-011"); err != nil {
		return err
	}
	return validators.Required(c.ClientID, "clientId", "IDP-012")
}

// OAuthConfig for plain OAuth2 providers without discovery.
type OAuthConfig struct {
	ClientID              string
	ClientSecret          *crypto.Value
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserEndpoint          string
	Scopes                []string
	// IDAttribute names the userinfo claim holding the stable external id.
	IDAttribute string
}

func (c *OAuthConfig) Validate() error {
	if err := validators.Required(c.ClientID, "clientId", "IDP-020"); err != nil {
		return err
	}
	for _, endpoint := range []struct {
		value string
		errID string
	}{
		{c.AuthorizationEndpoint, "IDP-021"},
		{c.TokenEndpoint, "IDP-022"},
		{c.UserEndpoint, "IDP-023"},
	} {
		if err := validators.URL(endpoint.value, endpoint.errID); err != nil {
			return err
		}
	}
	return validators.Required(c.IDAttribute, "idAttribute", "IDP-024")
}

// JWTConfig for providers presenting a pre-issued JWT in a header.
type JWTConfig struct {
	Issuer       string
	JWTEndpoint  string
	KeysEndpoint string
	HeaderName   string
}

func (c *JWTConfig) Validate() error {
	if err := validators.Required(c.Issuer, "issuer", "IDP-030"); err != nil {
		return err
	}
	if err := validators.URL(c.JWTEndpoint, "IDP-031"); err != nil {
		return err
	}
	if err := validators.URL(c.KeysEndpoint, "IDP-032"); err != nil {
		return err
	}
	return validators.Required(c.HeaderName, "headerName", "IDP-033")
}

// SAMLConfig carries either inline metadata XML or a metadata URL.
type SAMLConfig struct {
	Metadata          []byte
	MetadataURL       string
	Binding           domain.SAMLBinding
	WithSignedRequest bool
}

func (c *SAMLConfig) Validate() error {
	if len(c.Metadata) == 0 && c.MetadataURL == "" {
		return apperr.ThrowInvalidArgument(nil, "IDP-040", "metadata or metadata url required")
	}
	if len(c.Metadata) > 0 && !strings.Contains(string(c.Metadata), "EntityDescriptor") {
		return apperr.ThrowInvalidArgument(nil, "IDP-041", "metadata is not a SAML entity descriptor")
	}
	if c.MetadataURL != "" {
		return validators.URL(c.MetadataURL, "IDP-042")
	}
	return nil
}

// LDAPConfig for directory-backed logins.
type LDAPConfig struct {
	Servers           []string
	StartTLS          bool
	BaseDN            string
	BindDN            string
	BindPassword      *crypto.Value
	UserBase          string
	UserObjectClasses []string
	UserFilters       []string
	IDAttribute       string
}

func (c *LDAPConfig) Validate() error {
	if len(c.Servers) == 0 {
		return apperr.ThrowInvalidArgument(nil, "IDP-050", "at least one server required")
	}
	if err := validators.Required(c.BaseDN, "baseDn", "IDP-051"); err != nil {
		return err
	}
	if len(c.UserFilters) == 0 {
		return apperr.ThrowInvalidArgument(nil, "IDP-052", "at least one user filter required")
	}
	return nil
}

// AppleConfig signs in with Apple; the client secret is an ES256 JWT
// derived from the private key at request time.
type AppleConfig struct {
	ClientID   string
	TeamID     string
	KeyID      string
	PrivateKey *crypto.Value
	Scopes     []string
}

func (c *AppleConfig) Validate() error {
	if err := validators.Required(c.ClientID, "clientId", "IDP-060"); err != nil {
		return err
	}
	if err := validators.Required(c.TeamID, "teamId", "IDP-061"); err != nil {
		return err
	}
	if err := validators.Required(c.KeyID, "keyId", "IDP-062"); err != nil {
		return err
	}
	if c.PrivateKey.IsZero() {
		return apperr.ThrowInvalidArgument(nil, "IDP-063", "private key required")
	}
	return nil
}

// Validate checks the config matching the provider type.
func (p *Provider) Validate() error {
	switch p.Type {
	case domain.IDPTypeOIDC:
		if p.OIDC == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-001", "oidc config missing")
		}
		return p.OIDC.Validate()
	case domain.IDPTypeOAuth:
		if p.OAuth == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-002", "oauth config missing")
		}
		return p.OAuth.Validate()
	case domain.IDPTypeJWT:
		if p.JWT == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-003", "jwt config missing")
		}
		return p.JWT.Validate()
	case domain.IDPTypeSAML:
		if p.SAML == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-004", "saml config missing")
		}
		return p.SAML.Validate()
	case domain.IDPTypeLDAP:
		if p.LDAP == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-005", "ldap config missing")
		}
		return p.LDAP.Validate()
	case domain.IDPTypeApple:
		if p.Apple == nil {
			return apperr.ThrowInvalidArgument(nil, "IDP-006", "apple config missing")
		}
		return p.Apple.Validate()
	default:
		return apperr.ThrowInvalidArgument(nil, "IDP-007", "unknown provider type")
	}
}
