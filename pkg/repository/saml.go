package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const (
	SAMLRequestAggregate eventstore.AggregateType = "saml_request"
	SAMLSessionAggregate eventstore.AggregateType = "saml_session"
)

const (
	SAMLRequestAddedType         eventstore.EventType = "saml_request.added"
	SAMLRequestSessionLinkedType eventstore.EventType = "saml_request.session.linked"
	SAMLRequestSucceededType     eventstore.EventType = "saml_request.succeeded"
	SAMLRequestFailedType        eventstore.EventType = "saml_request.failed"

	SAMLSessionAddedType      eventstore.EventType = "saml_session.added"
	SAMLSessionTerminatedType eventstore.EventType = "saml_session.terminated"
)

type SAMLRequestAddedPayload struct {
	LoginClient string             `json:"loginClient"`
	Issuer      string             `json:"issuer"`
	ACSURL      string             `json:"acsUrl"`
	RelayState  string             `json:"relayState,omitempty"`
	RequestID   string             `json:"requestId"`
	Binding     domain.SAMLBinding `json:"binding"`
}

type SAMLRequestSessionLinkedPayload struct {
	SessionID string `json:"sessionId"`
}

type SAMLRequestFailedPayload struct {
	Reason string `json:"reason"`
}

type SAMLSessionAddedPayload struct {
	SAMLRequestID string    `json:"samlRequestId"`
	UserID        string    `json:"userId"`
	EntityID      string    `json:"entityId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}
