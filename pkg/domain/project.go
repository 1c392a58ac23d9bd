package domain

// ProjectState is the lifecycle state of a project.
type ProjectState int32

const (
	ProjectStateUnspecified ProjectState = iota
	ProjectStateActive
	ProjectStateInactive
	ProjectStateRemoved
)

func (s ProjectState) Exists() bool {
	return s == ProjectStateActive || s == ProjectStateInactive
}

// PrivateLabelingSetting controls which branding an app login shows.
type PrivateLabelingSetting int32

const (
	PrivateLabelingSettingUnspecified PrivateLabelingSetting = iota
	PrivateLabelingSettingEnforceProjectResourceOwnerPolicy
	PrivateLabelingSettingAllowLoginUserResourceOwnerPolicy
)

// AppState is the lifecycle state of an application.
type AppState int32

const (
	AppStateUnspecified AppState = iota
	AppStateActive
	AppStateInactive
	AppStateRemoved
)

func (s AppState) Exists() bool {
	return s == AppStateActive || s == AppStateInactive
}

// AppType discriminates the application config variants on a project.
type AppType int32

const (
	AppTypeUnspecified AppType = iota
	AppTypeOIDC
	AppTypeAPI
)

// OIDCApplicationType per the OIDC spec registration.
type OIDCApplicationType int32

const (
	OIDCApplicationTypeWeb OIDCApplicationType = iota
	OIDCApplicationTypeUserAgent
	OIDCApplicationTypeNative
)

// OIDCAuthMethodType is the token endpoint auth method.
type OIDCAuthMethodType int32

const (
	OIDCAuthMethodTypeBasic OIDCAuthMethodType = iota
	OIDCAuthMethodTypePost
	OIDCAuthMethodTypeNone
	OIDCAuthMethodTypePrivateKeyJWT
)

// NeedsSecret reports whether this auth method requires a client secret.
func (t OIDCAuthMethodType) NeedsSecret() bool {
	return t == OIDCAuthMethodTypeBasic || t == OIDCAuthMethodTypePost
}

// OIDCGrantType values supported by applications.
type OIDCGrantType int32

const (
	OIDCGrantTypeAuthorizationCode OIDCGrantType = iota
	OIDCGrantTypeImplicit
	OIDCGrantTypeRefreshToken
	OIDCGrantTypeDeviceCode
	OIDCGrantTypeTokenExchange
)

// OIDCResponseType values supported by applications.
type OIDCResponseType int32

const (
	OIDCResponseTypeCode OIDCResponseType = iota
	OIDCResponseTypeIDToken
	OIDCResponseTypeIDTokenToken
)
