package repository

import (
	"time"

	"github.com/nordlys-id/nordlys/pkg/eventstore"
)

const AuthRequestAggregate eventstore.AggregateType = "auth_request"

const (
	AuthRequestAddedType         eventstore.EventType = "auth_request.added"
	AuthRequestSessionLinkedType eventstore.EventType = "auth_request.session.linked"
	AuthRequestCodeAddedType     eventstore.EventType = "auth_request.code.added"
	AuthRequestSucceededType     eventstore.EventType = "auth_request.succeeded"
	AuthRequestFailedType        eventstore.EventType = "auth_request.failed"

	AuthRequestPARRequestedType eventstore.EventType = "auth_request.par.requested"
	AuthRequestPARConsumedType  eventstore.EventType = "auth_request.par.consumed"
)

// UniquePARRequestURI makes pushed authorization request URIs single-use:
// claimed on create, released on consume.
const UniquePARRequestURI = "par_request_uri"

type AuthRequestAddedPayload struct {
	LoginClient         string   `json:"loginClient"`
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	State               string   `json:"state,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	Scope               []string `json:"scope,omitempty"`
	ResponseType        string   `json:"responseType,omitempty"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
}

type AuthRequestSessionLinkedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

type AuthRequestCodeAddedPayload struct {
	Code string `json:"code"`
}

type AuthRequestFailedPayload struct {
	Reason string `json:"reason"`
}

type AuthRequestPARRequestedPayload struct {
	RequestURI          string    `json:"requestUri"`
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectUri"`
	Scope               []string  `json:"scope,omitempty"`
	State               string    `json:"state,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	ResponseType        string    `json:"responseType,omitempty"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
	ExpiresAt           time.Time `json:"expiresAt"`
}
