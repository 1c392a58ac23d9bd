package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const IDPIntentAggregate eventstore.AggregateType = "idp.intent"

const (
	IDPIntentStartedType   eventstore.EventType = "idp.intent.started"
	IDPIntentSucceededType eventstore.EventType = "idp.intent.succeeded"
	IDPIntentFailedType    eventstore.EventType = "idp.intent.failed"
)

type IDPIntentStartedPayload struct {
	IDPID      string `json:"idpId"`
	SuccessURL string `json:"successUrl"`
	FailureURL string `json:"failureUrl"`
	// AuthRequestID ties the intent back to the OIDC auth request that
	// initiated the federated login, when there is one.
	AuthRequestID string `json:"authRequestId,omitempty"`
	// State correlates the callback; at least 32 bytes of entropy.
	State        string        `json:"state"`
	Nonce        string        `json:"nonce,omitempty"`
	CodeVerifier *crypto.Value `json:"codeVerifier,omitempty"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

type IDPIntentSucceededPayload struct {
	IDPID          string        `json:"idpId"`
	ExternalUserID string        `json:"externalUserId"`
	Username       string        `json:"username,omitempty"`
	Email          string        `json:"email,omitempty"`
	EmailVerified  bool          `json:"emailVerified,omitempty"`
	FirstName      string        `json:"firstName,omitempty"`
	LastName       string        `json:"lastName,omitempty"`
	DisplayName    string        `json:"displayName,omitempty"`
	UserID         string        `json:"userId,omitempty"`
	IDPAccessToken *crypto.Value `json:"idpAccessToken,omitempty"`
	IDPIDToken     string        `json:"idpIdToken,omitempty"`
}

type IDPIntentFailedPayload struct {
	Reason string `json:"reason"`
}
