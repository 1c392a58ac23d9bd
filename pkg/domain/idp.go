package domain

// IDPState is the lifecycle state of an identity provider config.
type IDPState int32

const (
	IDPStateUnspecified IDPState = iota
	IDPStateActive
	IDPStateRemoved
)

func (s IDPState) Exists() bool {
	return s == IDPStateActive
}

// IDPType discriminates the provider config variants.
type IDPType int32

const (
	IDPTypeUnspecified IDPType = iota
	IDPTypeOIDC
	IDPTypeOAuth
	IDPTypeJWT
	IDPTypeSAML
	IDPTypeLDAP
	IDPTypeApple
)

// IDPIntentState is the lifecycle of a federated-login intent.
type IDPIntentState int32

const (
	IDPIntentStateUnspecified IDPIntentState = iota
	IDPIntentStateStarted
	IDPIntentStateSucceeded
	IDPIntentStateFailed
)

// IDPOptions are the provisioning toggles shared by all provider types.
type IDPOptions struct {
	IsCreationAllowed bool
	IsLinkingAllowed  bool
	IsAutoCreation    bool
	IsAutoUpdate      bool
}

// SAMLBinding of a request or response.
type SAMLBinding int32

const (
	SAMLBindingUnspecified SAMLBinding = iota
	SAMLBindingPost
	SAMLBindingRedirect
)

// SAMLRequestState per the request one-shot state machine.
type SAMLRequestState int32

const (
	SAMLRequestStateUnspecified SAMLRequestState = iota
	SAMLRequestStateAdded
	SAMLRequestStateSucceeded
	SAMLRequestStateFailed
)

// SAMLSessionState for active provider sessions.
type SAMLSessionState int32

const (
	SAMLSessionStateUnspecified SAMLSessionState = iota
	SAMLSessionStateActive
	SAMLSessionStateTerminated
)

// AuthRequestState for the OIDC auth request bookkeeping aggregate.
type AuthRequestState int32

const (
	AuthRequestStateUnspecified AuthRequestState = iota
	AuthRequestStateAdded
	AuthRequestStateCodeAdded
	AuthRequestStateCodeExchanged
	AuthRequestStateSucceeded
	AuthRequestStateFailed
)
