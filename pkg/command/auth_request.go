package command

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idgen"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// parRequestURIPrefix per RFC 9126; the suffix doubles as the aggregate id.
const parRequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

type authRequestWriteModel struct {
	eventstore.WriteModel

	State       domain.AuthRequestState
	ClientID    string
	RedirectURI string
	SessionID   string
	UserID      string
	Code        string

	PAR         *repository.AuthRequestPARRequestedPayload
	PARConsumed bool
}

func newAuthRequestWriteModel(instanceID, ownerID, requestID string) *authRequestWriteModel {
	return &authRequestWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   requestID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *authRequestWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.AuthRequestAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *authRequestWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.AuthRequestAddedType:
			var payload repository.AuthRequestAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.AuthRequestStateAdded
			wm.ClientID = payload.ClientID
			wm.RedirectURI = payload.RedirectURI

		case repository.AuthRequestSessionLinkedType:
			var payload repository.AuthRequestSessionLinkedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.SessionID = payload.SessionID
			wm.UserID = payload.UserID

		case repository.AuthRequestCodeAddedType:
			var payload repository.AuthRequestCodeAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.AuthRequestStateCodeAdded
			wm.Code = payload.Code

		case repository.AuthRequestSucceededType:
			wm.State = domain.AuthRequestStateSucceeded
		case repository.AuthRequestFailedType:
			wm.State = domain.AuthRequestStateFailed

		case repository.AuthRequestPARRequestedType:
			var payload repository.AuthRequestPARRequestedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.PAR = &payload

		case repository.AuthRequestPARConsumedType:
			wm.PARConsumed = true
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *authRequestWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.AuthRequestAggregate)
}

// AddAuthRequest is the input for the OIDC authorization bookkeeping.
type AddAuthRequest struct {
	OrgID               string
	LoginClient         string
	ClientID            string
	RedirectURI         string
	State               string
	Nonce               string
	Scope               []string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AddAuthRequest records an authorization request in state added.
func (c *Commands) AddAuthRequest(ctx context.Context, request *AddAuthRequest) (string, *domain.ObjectDetails, error) {
	if err := validators.Required(request.ClientID, "clientId", "AUTHR-001"); err != nil {
		return "", nil, err
	}
	if err := validators.URL(request.RedirectURI, "AUTHR-002"); err != nil {
		return "", nil, err
	}
	id := c.nextID()
	model := newAuthRequestWriteModel(authz.GetInstance(ctx), request.OrgID, id)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.AuthRequestAddedType, authz.GetCtxData(ctx).UserID,
			repository.AuthRequestAddedPayload{
				LoginClient:         request.LoginClient,
				ClientID:            request.ClientID,
				RedirectURI:         request.RedirectURI,
				State:               request.State,
				Nonce:               request.Nonce,
				Scope:               request.Scope,
				ResponseType:        request.ResponseType,
				CodeChallenge:       request.CodeChallenge,
				CodeChallengeMethod: request.CodeChallengeMethod,
			}))
	if err != nil {
		return "", nil, err
	}
	return id, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// LinkSessionToAuthRequest attaches the authenticated session.
func (c *Commands) LinkSessionToAuthRequest(ctx context.Context, requestID, sessionID, userID string) (*domain.ObjectDetails, error) {
	if err := validators.Required(sessionID, "sessionId", "AUTHR-010"); err != nil {
		return nil, err
	}
	request, err := c.existingAuthRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State != domain.AuthRequestStateAdded {
		return nil, apperr.ThrowPreconditionFailed(nil, "AUTHR-011", "request already completed")
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestSessionLinkedType, authz.GetCtxData(ctx).UserID,
			repository.AuthRequestSessionLinkedPayload{SessionID: sessionID, UserID: userID}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

// AddAuthRequestCode issues the authorization code for a linked request and
// returns the plaintext once.
func (c *Commands) AddAuthRequestCode(ctx context.Context, requestID string) (string, *domain.ObjectDetails, error) {
	request, err := c.existingAuthRequest(ctx, requestID)
	if err != nil {
		return "", nil, err
	}
	if request.State != domain.AuthRequestStateAdded {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "AUTHR-020", "request already completed")
	}
	if request.SessionID == "" {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "AUTHR-021", "request has no linked session")
	}
	code, err := idgen.RandomToken(32)
	if err != nil {
		return "", nil, err
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestCodeAddedType, authz.GetCtxData(ctx).UserID,
			repository.AuthRequestCodeAddedPayload{Code: code}))
	if err != nil {
		return "", nil, err
	}
	return code, eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

// SucceedAuthRequest completes the flow after code exchange. The presented
// code must match the issued one; exchanging twice is refused by the state
// check.
func (c *Commands) SucceedAuthRequest(ctx context.Context, requestID, code string) (*domain.ObjectDetails, error) {
	request, err := c.existingAuthRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State != domain.AuthRequestStateCodeAdded {
		return nil, apperr.ThrowPreconditionFailed(nil, "AUTHR-030", "no code issued for request")
	}
	if subtle.ConstantTimeCompare([]byte(request.Code), []byte(code)) != 1 {
		return nil, apperr.ThrowUnauthenticated(nil, "AUTHR-031", "invalid authorization code")
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestSucceededType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

// FailAuthRequest marks the request failed with a reason.
func (c *Commands) FailAuthRequest(ctx context.Context, requestID, reason string) (*domain.ObjectDetails, error) {
	request, err := c.existingAuthRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State == domain.AuthRequestStateSucceeded || request.State == domain.AuthRequestStateFailed {
		return nil, apperr.ThrowPreconditionFailed(nil, "AUTHR-040", "request already completed")
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestFailedType, authz.GetCtxData(ctx).UserID,
			repository.AuthRequestFailedPayload{Reason: reason}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

func (c *Commands) existingAuthRequest(ctx context.Context, requestID string) (*authRequestWriteModel, error) {
	request := newAuthRequestWriteModel(authz.GetInstance(ctx), "", requestID)
	if err := request.load(ctx, c.es); err != nil {
		return nil, err
	}
	if request.State == domain.AuthRequestStateUnspecified {
		return nil, apperr.ThrowNotFound(nil, "AUTHR-000", "request does not exist")
	}
	return request, nil
}

// PushedAuthRequest is the input for RFC 9126 pushed authorization.
type PushedAuthRequest struct {
	OrgID               string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	Nonce               string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CreatePushedAuthRequest stores the authorization parameters ahead of the
// authorize call and returns the single-use request URI. The URI suffix is
// the aggregate id, and the full URI is claimed so a duplicate push cannot
// mint the same handle.
func (c *Commands) CreatePushedAuthRequest(ctx context.Context, request *PushedAuthRequest) (requestURI string, expiresIn time.Duration, err error) {
	if err := validators.Required(request.ClientID, "clientId", "PAR-001"); err != nil {
		return "", 0, err
	}
	if err := validators.URL(request.RedirectURI, "PAR-002"); err != nil {
		return "", 0, err
	}
	suffix, err := idgen.RandomHex(16)
	if err != nil {
		return "", 0, err
	}
	requestURI = parRequestURIPrefix + suffix
	model := newAuthRequestWriteModel(authz.GetInstance(ctx), request.OrgID, suffix)
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.AuthRequestPARRequestedType, authz.GetCtxData(ctx).UserID,
			repository.AuthRequestPARRequestedPayload{
				RequestURI:          requestURI,
				ClientID:            request.ClientID,
				RedirectURI:         request.RedirectURI,
				Scope:               request.Scope,
				State:               request.State,
				Nonce:               request.Nonce,
				ResponseType:        request.ResponseType,
				CodeChallenge:       request.CodeChallenge,
				CodeChallengeMethod: request.CodeChallengeMethod,
				ExpiresAt:           c.now().Add(c.parLifetime),
			},
			eventstore.NewAddUniqueConstraint(repository.UniquePARRequestURI, requestURI, "PAR-003")))
	if err != nil {
		return "", 0, err
	}
	return requestURI, c.parLifetime, nil
}

// ConsumePushedAuthRequest redeems a request URI exactly once: the stored
// parameters become a regular auth request on the same aggregate and the
// claim is released. Reuse and expired handles are refused.
func (c *Commands) ConsumePushedAuthRequest(ctx context.Context, requestURI, clientID string) (string, *domain.ObjectDetails, error) {
	suffix, ok := strings.CutPrefix(requestURI, parRequestURIPrefix)
	if !ok || suffix == "" {
		return "", nil, apperr.ThrowInvalidArgument(nil, "PAR-010", "malformed request uri")
	}
	request := newAuthRequestWriteModel(authz.GetInstance(ctx), "", suffix)
	if err := request.load(ctx, c.es); err != nil {
		return "", nil, err
	}
	if request.PAR == nil {
		return "", nil, apperr.ThrowNotFound(nil, "PAR-011", "unknown request uri")
	}
	if request.PARConsumed {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "PAR-012", "request uri already used")
	}
	if c.now().After(request.PAR.ExpiresAt) {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "PAR-013", "request uri expired")
	}
	if request.PAR.ClientID != clientID {
		return "", nil, apperr.ThrowUnauthenticated(nil, "PAR-014", "request uri belongs to another client")
	}
	creator := authz.GetCtxData(ctx).UserID
	err := c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestPARConsumedType, creator, nil,
			eventstore.NewRemoveUniqueConstraint(repository.UniquePARRequestURI, requestURI)),
		eventstore.NewCommand(request.aggregate(), repository.AuthRequestAddedType, creator,
			repository.AuthRequestAddedPayload{
				ClientID:            request.PAR.ClientID,
				RedirectURI:         request.PAR.RedirectURI,
				State:               request.PAR.State,
				Nonce:               request.PAR.Nonce,
				Scope:               request.PAR.Scope,
				ResponseType:        request.PAR.ResponseType,
				CodeChallenge:       request.PAR.CodeChallenge,
				CodeChallengeMethod: request.PAR.CodeChallengeMethod,
			}))
	if err != nil {
		return "", nil, err
	}
	return suffix, eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}
